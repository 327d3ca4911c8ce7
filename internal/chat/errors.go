package chat

import "errors"

// Error taxonomy surfaced to the API layer. Validation failures are caught
// before any store round-trip; the remaining sentinels classify why a remote
// mutation was rejected.
var (
	ErrValidation   = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidKey   = errors.New("invalid access key")
	ErrRemote       = errors.New("remote call failed")
)

func validationf(msg string) error {
	return &taggedError{sentinel: ErrValidation, msg: msg}
}

func notFoundf(msg string) error {
	return &taggedError{sentinel: ErrNotFound, msg: msg}
}

func unauthorizedf(msg string) error {
	return &taggedError{sentinel: ErrUnauthorized, msg: msg}
}

// taggedError carries a user-facing reason while matching its sentinel
// through errors.Is.
type taggedError struct {
	sentinel error
	msg      string
}

func (e *taggedError) Error() string { return e.msg }
func (e *taggedError) Unwrap() error { return e.sentinel }

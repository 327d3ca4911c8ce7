package chat

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Room ids and access keys are read over voice and typed by hand, so the
// alphabet drops the visually ambiguous characters (I, L, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	roomIDPrefix    = "RM-"
	roomIDLength    = 5
	accessKeyLength = 6
)

func newRoomID() (string, error) {
	code, err := randomCode(roomIDLength)
	if err != nil {
		return "", err
	}
	return roomIDPrefix + code, nil
}

func newAccessKey() (string, error) {
	return randomCode(accessKeyLength)
}

// randomCode draws n characters from the code alphabet using crypto/rand.
// At 31 symbols a 6-character key carries just under 30 bits, enough to make
// guessing a live key impractical.
func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	var b strings.Builder
	b.Grow(n)
	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// validCode reports whether every character of a caller-supplied key belongs
// to the code alphabet. Comparison elsewhere is exact and case-sensitive;
// this only rejects keys that could never have been issued.
func validCode(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

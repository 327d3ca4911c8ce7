package models

import "time"

// User is a registered account. The ID is immutable; DisplayName may be
// edited and the password rotated, but only by the account owner.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

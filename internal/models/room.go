package models

import "time"

// Room is a key-protected message partition. ID and OwnerID never change
// after creation; AccessKey is overwritten in place when the owner rotates
// it, no history of prior keys is kept.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AccessKey string    `json:"access_key,omitempty"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

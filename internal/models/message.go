package models

import "time"

// Message is one chat entry. RoomID is empty for the shared public channel.
// Rows are append/delete only: body, author, scope and timestamp never
// change once written.
type Message struct {
	ID          int64     `json:"id"`
	AuthorID    int64     `json:"author_id"`
	DisplayName string    `json:"display_name"`
	Body        string    `json:"body"`
	RoomID      string    `json:"room_id"`
	CreatedAt   time.Time `json:"created_at"`
	IsAssistant bool      `json:"is_assistant"`
}

// Scope identifies the message partition a client is viewing. The zero
// value is the public channel.
type Scope struct {
	RoomID string `json:"room_id"`
}

// Public reports whether the scope is the shared public channel.
func (s Scope) Public() bool { return s.RoomID == "" }

// Contains reports whether the message belongs to this scope.
func (s Scope) Contains(m *Message) bool {
	return m != nil && m.RoomID == s.RoomID
}

package chat

import (
	"database/sql"

	"termchat/internal/feed"
)

// Service owns the accounts, rooms, and messages collections and publishes
// message mutations to the change feed.
type Service struct {
	db   *sql.DB
	feed feed.Feed
}

// NewService builds a chat service on top of the database and change feed.
func NewService(db *sql.DB, f feed.Feed) *Service {
	return &Service{db: db, feed: f}
}

// Feed exposes the change feed the service publishes to, for wiring a
// client-side synchronizer against the same stream.
func (s *Service) Feed() feed.Feed {
	return s.feed
}

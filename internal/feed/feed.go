// Package feed carries insert/delete notifications from the message store
// to live clients. The server publishes one event per mutation; each client
// synchronizer holds exactly one subscription at a time.
package feed

import (
	"context"

	"github.com/google/uuid"

	"termchat/internal/models"
)

// Op labels the mutation an event describes.
type Op string

const (
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Event is one change-feed notification. Delete events carry the full former
// row so subscribers can filter on the scope of a message they may never
// have seen inserted.
type Event struct {
	ID      string         `json:"id"`
	Op      Op             `json:"op"`
	Message models.Message `json:"message"`
}

// NewEvent stamps a fresh event id so duplicate deliveries can be detected
// downstream.
func NewEvent(op Op, msg models.Message) Event {
	return Event{ID: uuid.NewString(), Op: op, Message: msg}
}

// Feed is a publish/subscribe stream of message store mutations. Subscribe
// returns a cancel function that must be called to release the subscription;
// events stop arriving once it returns.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, fn func(Event)) (cancel func(), err error)
}

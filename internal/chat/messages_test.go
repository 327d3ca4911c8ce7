package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"termchat/internal/feed"
	"termchat/internal/models"
)

// collectEvents subscribes to the broker and drains events into a channel
// the test can receive from with a deadline.
func collectEvents(t *testing.T, broker *feed.Memory) <-chan feed.Event {
	t.Helper()
	out := make(chan feed.Event, 16)
	cancel, err := broker.Subscribe(context.Background(), func(ev feed.Event) {
		out <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(cancel)
	return out
}

func nextEvent(t *testing.T, events <-chan feed.Event) feed.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for feed event")
		return feed.Event{}
	}
}

func TestSendMessagePublishesInsert(t *testing.T) {
	svc, broker, _ := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")
	events := collectEvents(t, broker)

	msg, err := svc.SendMessage(ctx, models.AccountSender(user.ID, user.DisplayName), models.Scope{}, "hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.ID == 0 || msg.RoomID != "" || msg.IsAssistant {
		t.Fatalf("unexpected stored message: %+v", msg)
	}

	ev := nextEvent(t, events)
	if ev.Op != feed.OpInsert {
		t.Fatalf("expected insert event, got %s", ev.Op)
	}
	if ev.Message.ID != msg.ID || ev.Message.Body != "hello" {
		t.Fatalf("event does not carry the stored row: %+v", ev.Message)
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")
	sender := models.AccountSender(user.ID, user.DisplayName)

	if _, err := svc.SendMessage(ctx, sender, models.Scope{}, "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank body, got %v", err)
	}
	if _, err := svc.SendMessage(ctx, sender, models.Scope{RoomID: "RM-ZZZZZ"}, "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown room scope, got %v", err)
	}
	if _, err := svc.SendMessage(ctx, models.Sender{}, models.Scope{}, "hi"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero sender, got %v", err)
	}
}

func TestListMessagesScopedAndOrdered(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")
	sender := models.AccountSender(user.ID, user.DisplayName)

	room, err := svc.CreateRoom(ctx, user.ID, "ops")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	roomScope := models.Scope{RoomID: room.ID}

	for i := 0; i < 3; i++ {
		if _, err := svc.SendMessage(ctx, sender, models.Scope{}, fmt.Sprintf("public %d", i)); err != nil {
			t.Fatalf("send public: %v", err)
		}
		if _, err := svc.SendMessage(ctx, sender, roomScope, fmt.Sprintf("room %d", i)); err != nil {
			t.Fatalf("send room: %v", err)
		}
	}

	public, err := svc.ListMessages(ctx, models.Scope{})
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(public) != 3 {
		t.Fatalf("expected 3 public messages, got %d", len(public))
	}
	for i, m := range public {
		if m.Body != fmt.Sprintf("public %d", i) {
			t.Fatalf("public messages out of order: %q at %d", m.Body, i)
		}
		if m.RoomID != "" {
			t.Fatalf("room message leaked into public snapshot: %+v", m)
		}
	}

	inRoom, err := svc.ListMessages(ctx, roomScope)
	if err != nil {
		t.Fatalf("list room: %v", err)
	}
	if len(inRoom) != 3 {
		t.Fatalf("expected 3 room messages, got %d", len(inRoom))
	}
	for i, m := range inRoom {
		if m.Body != fmt.Sprintf("room %d", i) || m.RoomID != room.ID {
			t.Fatalf("unexpected room snapshot entry at %d: %+v", i, m)
		}
	}
}

func TestDeleteMessageAuthorOnly(t *testing.T) {
	svc, broker, _ := newTestService(t)
	ctx := context.Background()
	author := registerTestUser(t, svc, "alice")
	other := registerTestUser(t, svc, "bob")

	msg, err := svc.SendMessage(ctx, models.AccountSender(author.ID, author.DisplayName), models.Scope{}, "to remove")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.DeleteMessage(ctx, other.ID, msg.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-author, got %v", err)
	}
	if err := svc.DeleteMessage(ctx, author.ID, msg.ID+999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	events := collectEvents(t, broker)
	if err := svc.DeleteMessage(ctx, author.ID, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ev := nextEvent(t, events)
	if ev.Op != feed.OpDelete {
		t.Fatalf("expected delete event, got %s", ev.Op)
	}
	if ev.Message.ID != msg.ID || ev.Message.RoomID != msg.RoomID {
		t.Fatalf("delete event must carry the former row: %+v", ev.Message)
	}

	remaining, err := svc.ListMessages(ctx, models.Scope{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("message still present after delete: %+v", remaining)
	}
}

func TestAssistantMessagesUndeletable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	msg, err := svc.SendMessage(ctx, models.AssistantSender(), models.Scope{}, "assistant reply")
	if err != nil {
		t.Fatalf("send assistant message: %v", err)
	}
	if !msg.IsAssistant || msg.AuthorID != 0 {
		t.Fatalf("assistant message stored wrong: %+v", msg)
	}
	if err := svc.DeleteMessage(ctx, user.ID, msg.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized deleting assistant message, got %v", err)
	}
}

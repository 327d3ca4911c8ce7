package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"termchat/internal/feed"
	"termchat/internal/models"
)

// ListMessages returns the point-in-time snapshot for a scope, ascending by
// creation time. This is the fetch a synchronizer performs on activation.
func (s *Service) ListMessages(ctx context.Context, scope models.Scope) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, display_name, body, room_id, created_at, is_assistant
		 FROM messages WHERE room_id = ? ORDER BY created_at ASC, id ASC`,
		scope.RoomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.DisplayName, &m.Body, &m.RoomID, &m.CreatedAt, &m.IsAssistant); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SendMessage appends a message to the scope and publishes the insert event.
// The sender must already be resolved; account senders carry their id, the
// assistant and system sentinels write author_id 0.
func (s *Service) SendMessage(ctx context.Context, sender models.Sender, scope models.Scope, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationf("message body cannot be empty")
	}
	switch sender.Kind {
	case models.SenderAccount:
		if sender.AccountID <= 0 {
			return nil, validationf("invalid sender account")
		}
	case models.SenderSystem, models.SenderAssistant:
	default:
		return nil, validationf("unresolved sender")
	}
	if !scope.Public() {
		if _, err := s.getRoom(ctx, scope.RoomID); err != nil {
			return nil, err
		}
	}

	msg := models.Message{
		AuthorID:    sender.AccountID,
		DisplayName: sender.DisplayName,
		Body:        body,
		RoomID:      scope.RoomID,
		CreatedAt:   time.Now().UTC(),
		IsAssistant: sender.Kind == models.SenderAssistant,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (author_id, display_name, body, room_id, created_at, is_assistant)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.AuthorID, msg.DisplayName, msg.Body, msg.RoomID, msg.CreatedAt, msg.IsAssistant,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	msg.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	s.publish(ctx, feed.OpInsert, msg)
	return &msg, nil
}

// DeleteMessage removes a message, but only for its author. The delete event
// carries the full former row so scoped subscribers can filter it.
func (s *Service) DeleteMessage(ctx context.Context, requesterID, messageID int64) error {
	if messageID <= 0 {
		return validationf("invalid message id")
	}
	var msg models.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, display_name, body, room_id, created_at, is_assistant
		 FROM messages WHERE id = ?`, messageID,
	).Scan(&msg.ID, &msg.AuthorID, &msg.DisplayName, &msg.Body, &msg.RoomID, &msg.CreatedAt, &msg.IsAssistant)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundf("message not found")
		}
		return fmt.Errorf("query message: %w", err)
	}
	if msg.AuthorID == 0 || msg.AuthorID != requesterID {
		return unauthorizedf("only the author may delete a message")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	s.publish(ctx, feed.OpDelete, msg)
	return nil
}

// publish pushes a mutation onto the change feed. A feed failure is logged,
// not returned: the row is already committed and readers will converge on
// their next snapshot.
func (s *Service) publish(ctx context.Context, op feed.Op, msg models.Message) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, feed.NewEvent(op, msg)); err != nil {
		log.Printf("publish %s event for message %d failed: %v", op, msg.ID, err)
	}
}

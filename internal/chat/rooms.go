package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"termchat/internal/models"
	"termchat/internal/storage"
)

// CreateRoom registers a new key-protected room owned by the caller. The
// room id and access key are freshly generated; the id retries on the rare
// collision against the unique primary key.
func (s *Service) CreateRoom(ctx context.Context, ownerID int64, name string) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("room name cannot be empty")
	}
	if ownerID <= 0 {
		return nil, validationf("invalid owner id")
	}

	key, err := newAccessKey()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		id, err := newRoomID()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO rooms (id, name, access_key, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, name, key, ownerID, now,
		)
		if err == nil {
			return &models.Room{ID: id, Name: name, AccessKey: key, OwnerID: ownerID, CreatedAt: now}, nil
		}
		// Only an id collision is worth another draw.
		if !storage.IsUniqueViolation(err) {
			return nil, fmt.Errorf("create room: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("allocate room id: %w", lastErr)
}

// RotateKey overwrites the room access key. Only the owner may rotate; the
// previous key stops working immediately and is not retained anywhere.
func (s *Service) RotateKey(ctx context.Context, roomID string, requesterID int64, newKey string) (*models.Room, error) {
	newKey = strings.TrimSpace(newKey)
	if !validCode(newKey) {
		return nil, validationf("access key must use the room code alphabet")
	}

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.OwnerID != requesterID {
		return nil, unauthorizedf("only the room owner may rotate the key")
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET access_key = ? WHERE id = ?`, newKey, room.ID,
	); err != nil {
		return nil, fmt.Errorf("rotate key: %w", err)
	}
	room.AccessKey = newKey
	return room, nil
}

// JoinRoom checks the supplied key against the authoritative stored key.
// The comparison is exact and case-sensitive, and reads the current row on
// every attempt so a rotation takes effect immediately; nothing about a
// prior successful join is consulted here.
func (s *Service) JoinRoom(ctx context.Context, roomID, suppliedKey string) (*models.Room, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if suppliedKey != room.AccessKey {
		return nil, fmt.Errorf("%w for room %s", ErrInvalidKey, room.ID)
	}
	return room, nil
}

// GetRoom loads a room without any key check, for owner-facing views.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.getRoom(ctx, roomID)
}

func (s *Service) getRoom(ctx context.Context, roomID string) (*models.Room, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, validationf("room id is required")
	}
	var room models.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, access_key, owner_id, created_at FROM rooms WHERE id = ?`, roomID,
	).Scan(&room.ID, &room.Name, &room.AccessKey, &room.OwnerID, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundf("room not found")
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return &room, nil
}

// ListRoomsOwnedBy returns the rooms created by the user, newest first.
func (s *Service) ListRoomsOwnedBy(ctx context.Context, ownerID int64) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, access_key, owner_id, created_at FROM rooms WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.AccessKey, &r.OwnerID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"termchat/internal/config"
	"termchat/internal/feed"
	"termchat/internal/models"
	"termchat/internal/storage"
)

func newTestService(t *testing.T) (*Service, *feed.Memory, *sql.DB) {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	broker := feed.NewMemory()
	return NewService(db, broker), broker, db
}

func registerTestUser(t *testing.T, svc *Service, username string) *models.User {
	t.Helper()
	user, err := svc.RegisterUser(context.Background(), username, "pass123", "")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "alice")
	if user.DisplayName != "alice" {
		t.Fatalf("expected display name to default to username, got %q", user.DisplayName)
	}

	got, err := svc.Login(ctx, "alice", "pass123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("login returned wrong user: %d vs %d", got.ID, user.ID)
	}

	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad password, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "pass123"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown user, got %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "", "pass123", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty username, got %v", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	registerTestUser(t, svc, "alice")

	_, err := svc.RegisterUser(ctx, "alice", "other-pass", "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for taken username, got %v", err)
	}
}

func TestUpdateDisplayNameAndPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice")

	if err := svc.UpdateDisplayName(ctx, user.ID, "Alice A."); err != nil {
		t.Fatalf("update display name: %v", err)
	}
	got, err := svc.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.DisplayName != "Alice A." {
		t.Fatalf("display name not updated: %q", got.DisplayName)
	}
	if err := svc.UpdateDisplayName(ctx, user.ID, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong", "next123"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on wrong current password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "pass123", "next123"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "pass123"); err == nil {
		t.Fatalf("expected old password to stop working")
	}
	if _, err := svc.Login(ctx, "alice", "next123"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestRoomCodeFormat(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := registerTestUser(t, svc, "alice")

	room, err := svc.CreateRoom(context.Background(), owner.ID, "ops")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if !strings.HasPrefix(room.ID, "RM-") || len(room.ID) != len("RM-")+roomIDLength {
		t.Fatalf("unexpected room id format: %q", room.ID)
	}
	if len(room.AccessKey) != accessKeyLength {
		t.Fatalf("unexpected key length: %q", room.AccessKey)
	}
	for _, code := range []string{room.ID[len("RM-"):], room.AccessKey} {
		for i := 0; i < len(code); i++ {
			if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
				t.Fatalf("code %q uses character outside the alphabet", code)
			}
		}
	}
}

func TestJoinRoomChecksCurrentKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	owner := registerTestUser(t, svc, "alice")

	room, err := svc.CreateRoom(ctx, owner.ID, "ops")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	oldKey := room.AccessKey

	if _, err := svc.JoinRoom(ctx, room.ID, oldKey); err != nil {
		t.Fatalf("join with current key: %v", err)
	}
	wrongCase := strings.ToLower(oldKey)
	if wrongCase == oldKey {
		wrongCase = "abcdef"
	}
	if _, err := svc.JoinRoom(ctx, room.ID, wrongCase); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected case-sensitive mismatch, got %v", err)
	}
	if _, err := svc.JoinRoom(ctx, "RM-ZZZZZ", oldKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown room, got %v", err)
	}

	// Rotation invalidates the old key immediately for new joins.
	rotated, err := svc.RotateKey(ctx, room.ID, owner.ID, "NEWKEY")
	if err != nil {
		t.Fatalf("rotate key: %v", err)
	}
	if rotated.AccessKey != "NEWKEY" {
		t.Fatalf("rotated key not stored: %q", rotated.AccessKey)
	}
	if _, err := svc.JoinRoom(ctx, room.ID, oldKey); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected old key to fail after rotation, got %v", err)
	}
	if _, err := svc.JoinRoom(ctx, room.ID, "NEWKEY"); err != nil {
		t.Fatalf("join with rotated key: %v", err)
	}
}

func TestRotateKeyOwnerOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	owner := registerTestUser(t, svc, "alice")
	other := registerTestUser(t, svc, "bob")

	room, err := svc.CreateRoom(ctx, owner.ID, "ops")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, err := svc.RotateKey(ctx, room.ID, other.ID, "NEWKEY"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner, got %v", err)
	}
	current, err := svc.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if current.AccessKey != room.AccessKey {
		t.Fatalf("key changed by rejected rotation: %q vs %q", current.AccessKey, room.AccessKey)
	}

	if _, err := svc.RotateKey(ctx, room.ID, owner.ID, "bad key"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for malformed key, got %v", err)
	}
	if _, err := svc.RotateKey(ctx, "RM-ZZZZZ", owner.ID, "NEWKEY"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRoomSurfacesStorageError(t *testing.T) {
	svc, _, db := newTestService(t)
	owner := registerTestUser(t, svc, "alice")
	db.Close()

	_, err := svc.CreateRoom(context.Background(), owner.ID, "ops")
	if err == nil {
		t.Fatal("expected error from closed database")
	}
	// A non-collision failure must carry its cause, not pose as an
	// exhausted id retry.
	if !strings.Contains(err.Error(), "database is closed") {
		t.Fatalf("storage failure not surfaced: %v", err)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := registerTestUser(t, svc, "alice")

	if _, err := svc.CreateRoom(context.Background(), owner.ID, "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty name, got %v", err)
	}
}

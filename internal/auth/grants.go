package auth

import (
	"context"
	"log"
	"sync"
	"time"

	"termchat/internal/redis"
)

// Grants records which rooms a session (one auth token) has joined. A grant
// is written only after the access controller accepted the supplied key, and
// lives as long as the token does. Rotating a room key never revokes a grant
// that already exists: admitted sessions keep their access.
//
// With redis configured the grants survive process restarts and are shared
// across replicas; without it they live in process memory, which is all the
// mock deployment needs.
type Grants struct {
	cache *redis.Client
	ttl   time.Duration

	mu    sync.Mutex
	local map[string]map[string]struct{}
}

// NewGrants builds the grant store. The cache client may be nil.
func NewGrants(cache *redis.Client, ttl time.Duration) *Grants {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Grants{
		cache: cache,
		ttl:   ttl,
		local: make(map[string]map[string]struct{}),
	}
}

// Grant records that the session may read and post in the room.
func (g *Grants) Grant(ctx context.Context, authToken, roomID string) {
	if authToken == "" || roomID == "" {
		return
	}
	if g.cache != nil {
		if err := g.cache.SAdd(ctx, grantKey(authToken), g.ttl, roomID); err != nil {
			log.Printf("store room grant failed: %v", err)
		}
		return
	}
	g.mu.Lock()
	rooms := g.local[authToken]
	if rooms == nil {
		rooms = make(map[string]struct{})
		g.local[authToken] = rooms
	}
	rooms[roomID] = struct{}{}
	g.mu.Unlock()
}

// Allowed reports whether the session joined the room earlier.
func (g *Grants) Allowed(ctx context.Context, authToken, roomID string) bool {
	if authToken == "" || roomID == "" {
		return false
	}
	if g.cache != nil {
		ok, err := g.cache.SIsMember(ctx, grantKey(authToken), roomID)
		if err != nil {
			log.Printf("room grant lookup failed: %v", err)
			return false
		}
		return ok
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.local[authToken][roomID]
	return ok
}

// Revoke drops every grant held by the session, for logout.
func (g *Grants) Revoke(ctx context.Context, authToken string) {
	if authToken == "" {
		return
	}
	if g.cache != nil {
		if err := g.cache.Del(ctx, grantKey(authToken)); err != nil {
			log.Printf("revoke room grants failed: %v", err)
		}
		return
	}
	g.mu.Lock()
	delete(g.local, authToken)
	g.mu.Unlock()
}

func grantKey(authToken string) string {
	return "auth:grants:" + authToken
}

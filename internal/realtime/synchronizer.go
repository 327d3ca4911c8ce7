// Package realtime keeps a client's live message view consistent with the
// message store for one scope at a time, merging a snapshot fetch with the
// change-feed stream.
package realtime

import (
	"context"
	"sync"

	"termchat/internal/feed"
	"termchat/internal/models"
)

// Snapshotter supplies the ordered point-in-time fetch for a scope.
type Snapshotter interface {
	ListMessages(ctx context.Context, scope models.Scope) ([]models.Message, error)
}

// recentEventCap bounds the ring of event ids kept for duplicate detection.
const recentEventCap = 256

// Synchronizer owns one live view and at most one feed subscription. All
// feed callbacks and API calls funnel through a single mutex, mirroring the
// single event-loop execution context of a browser client.
type Synchronizer struct {
	store Snapshotter
	feed  feed.Feed

	mu       sync.Mutex
	active   bool
	scope    models.Scope
	epoch    uint64
	view     []models.Message
	unsub    func()
	seen     map[string]struct{}
	seenRing []string
}

// New builds an inactive synchronizer over the snapshot source and feed.
func New(store Snapshotter, f feed.Feed) *Synchronizer {
	return &Synchronizer{
		store: store,
		feed:  f,
		seen:  make(map[string]struct{}),
	}
}

// Activate switches the live view to the given scope: it tears down any
// previous subscription, fetches the snapshot, and opens the new
// subscription. If another Activate supersedes this one while the snapshot
// fetch is in flight, the stale completion is discarded wholesale and the
// later scope wins.
func (s *Synchronizer) Activate(ctx context.Context, scope models.Scope) error {
	s.mu.Lock()
	s.epoch++
	token := s.epoch
	s.teardownLocked()
	s.mu.Unlock()

	snapshot, err := s.store.ListMessages(ctx, scope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.epoch != token {
		// A newer Activate won the race; drop this snapshot.
		s.mu.Unlock()
		return nil
	}
	s.active = true
	s.scope = scope
	s.view = snapshot
	s.mu.Unlock()

	unsub, err := s.feed.Subscribe(ctx, func(ev feed.Event) {
		s.apply(token, ev)
	})
	if err != nil {
		s.mu.Lock()
		if s.epoch == token {
			s.active = false
			s.view = nil
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.epoch != token {
		// Deactivate or a newer Activate ran while subscribing.
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsub = unsub
	s.mu.Unlock()
	return nil
}

// Deactivate closes the subscription and clears the view.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	s.epoch++
	s.teardownLocked()
	s.mu.Unlock()
}

func (s *Synchronizer) teardownLocked() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.active = false
	s.view = nil
}

// Active reports whether a scope is currently live, and which.
func (s *Synchronizer) Active() (models.Scope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope, s.active
}

// View returns a copy of the current live view in display order.
func (s *Synchronizer) View() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.view))
	copy(out, s.view)
	return out
}

// apply folds one feed event into the view. Events from a superseded
// subscription, duplicate deliveries, and events for other scopes are all
// dropped. Inserts append in stream-delivery order; the snapshot already
// carried the ordered history and a single append-mostly channel rarely
// races, so no re-sort happens here.
func (s *Synchronizer) apply(token uint64, ev feed.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.epoch != token {
		return
	}
	if ev.ID != "" {
		if _, dup := s.seen[ev.ID]; dup {
			return
		}
		s.remember(ev.ID)
	}
	if !s.scope.Contains(&ev.Message) {
		return
	}

	switch ev.Op {
	case feed.OpInsert:
		s.view = append(s.view, ev.Message)
	case feed.OpDelete:
		for i := range s.view {
			if s.view[i].ID == ev.Message.ID {
				s.view = append(s.view[:i], s.view[i+1:]...)
				break
			}
		}
	}
}

func (s *Synchronizer) remember(id string) {
	s.seen[id] = struct{}{}
	s.seenRing = append(s.seenRing, id)
	if len(s.seenRing) > recentEventCap {
		delete(s.seen, s.seenRing[0])
		s.seenRing = s.seenRing[1:]
	}
}

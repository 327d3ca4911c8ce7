package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process feed broker backing the mock deployment and the
// tests. Delivery order matches publish order per subscriber.
type Memory struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

// NewMemory builds an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]chan Event)}
}

// Publish fans the event out to every live subscriber. A subscriber that
// stopped draining is skipped rather than blocking the publisher.
func (m *Memory) Publish(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Sends stay under the lock so a concurrent cancel cannot close a
	// channel mid-publish. They are non-blocking, so a stalled subscriber
	// only loses its own events.
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber and pumps its events into fn from a
// dedicated goroutine until cancel is called.
func (m *Memory) Subscribe(ctx context.Context, fn func(Event)) (func(), error) {
	id := uuid.NewString()
	ch := make(chan Event, 64)

	m.mu.Lock()
	m.subs[id] = ch
	m.mu.Unlock()

	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return cancel, nil
}

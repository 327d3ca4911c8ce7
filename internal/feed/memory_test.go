package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"termchat/internal/models"
)

func TestMemoryFanOut(t *testing.T) {
	broker := NewMemory()
	ctx := context.Background()

	var mu sync.Mutex
	got := map[string][]Event{}
	record := func(name string) func(Event) {
		return func(ev Event) {
			mu.Lock()
			got[name] = append(got[name], ev)
			mu.Unlock()
		}
	}

	cancelA, err := broker.Subscribe(ctx, record("a"))
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer cancelA()
	cancelB, err := broker.Subscribe(ctx, record("b"))
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer cancelB()

	first := NewEvent(OpInsert, models.Message{ID: 1, Body: "one"})
	second := NewEvent(OpInsert, models.Message{ID: 2, Body: "two"})
	broker.Publish(ctx, first)
	broker.Publish(ctx, second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(got["a"]) == 2 && len(got["b"]) == 2
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, name := range []string{"a", "b"} {
		events := got[name]
		if len(events) != 2 {
			t.Fatalf("subscriber %s got %d events", name, len(events))
		}
		if events[0].ID != first.ID || events[1].ID != second.ID {
			t.Fatalf("subscriber %s received events out of order", name)
		}
	}
}

func TestMemoryCancelStopsDelivery(t *testing.T) {
	broker := NewMemory()
	ctx := context.Background()

	delivered := make(chan Event, 8)
	cancel, err := broker.Subscribe(ctx, func(ev Event) { delivered <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	// Cancel is idempotent.
	cancel()

	broker.Publish(ctx, NewEvent(OpInsert, models.Message{ID: 1}))
	select {
	case ev := <-delivered:
		t.Fatalf("event delivered after cancel: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryPublishDuringCancel(t *testing.T) {
	broker := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		cancel, err := broker.Subscribe(ctx, func(Event) {})
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			cancel()
		}()
		go func() {
			defer wg.Done()
			broker.Publish(ctx, NewEvent(OpInsert, models.Message{ID: int64(1)}))
		}()
	}
	wg.Wait()
}

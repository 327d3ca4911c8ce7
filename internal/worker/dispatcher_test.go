package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 2, MaxWorkers: 4, QueueSize: 16})
	defer d.Stop()

	var done int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := d.Submit(func() {
			atomic.AddInt32(&done, 1)
			wg.Done()
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()
	if got := atomic.LoadInt32(&done); got != 10 {
		t.Fatalf("ran %d jobs, want 10", got)
	}
}

func TestDispatcherBusy(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	defer d.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	if err := d.Submit(func() { close(started); <-block }); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-started

	// One slot in the queue, then saturation.
	if err := d.Submit(func() {}); err != nil {
		t.Fatalf("submit queued job: %v", err)
	}
	err := d.Submit(func() {})
	if !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
	close(block)
}

func TestDispatcherGrowsUnderLoad(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 3, QueueSize: 16, IdleTimeout: 50 * time.Millisecond})
	defer d.Stop()

	block := make(chan struct{})
	for i := 0; i < 6; i++ {
		if err := d.Submit(func() { <-block }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && d.Running() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := d.Running(); got != 3 {
		t.Fatalf("pool grew to %d workers, want 3", got)
	}
	close(block)

	// Idle workers above the minimum retire.
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && d.Running() > 1 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := d.Running(); got != 1 {
		t.Fatalf("pool shrank to %d workers, want 1", got)
	}
}

func TestDispatcherStopIdempotent(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 1})
	d.Stop()
	d.Stop()
}

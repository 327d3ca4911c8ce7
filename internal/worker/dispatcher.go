// Package worker runs assistant generation jobs on an elastic pool so a slow
// model call never blocks the request path.
package worker

import (
	"errors"
	"sync"
	"time"
)

// ErrDispatcherBusy is returned when the job queue is saturated. Callers do
// not retry; the user action simply fails visibly.
var ErrDispatcherBusy = errors.New("dispatcher queue is full")

// Job is one unit of background work.
type Job func()

// Config sizes the pool.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

const defaultWorkerIdle = 30 * time.Second

// Dispatcher feeds submitted jobs to a pool of workers. The pool grows up to
// MaxWorkers under load and shrinks back to MinWorkers as workers sit idle
// past the timeout.
type Dispatcher struct {
	jobs chan Job
	quit chan struct{}

	mu      sync.Mutex
	running int
	min     int
	max     int
	idle    time.Duration
	stopped bool
}

// NewDispatcher builds the dispatcher and warms up the minimum worker set.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.MinWorkers < 1 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 16
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultWorkerIdle
	}

	d := &Dispatcher{
		jobs: make(chan Job, cfg.QueueSize),
		quit: make(chan struct{}),
		min:  cfg.MinWorkers,
		max:  cfg.MaxWorkers,
		idle: cfg.IdleTimeout,
	}
	for i := 0; i < d.min; i++ {
		d.spawnWorker()
	}
	return d
}

// Submit enqueues a job, growing the pool if every worker is busy. Returns
// ErrDispatcherBusy when the queue is full.
func (d *Dispatcher) Submit(job Job) error {
	if job == nil {
		return nil
	}
	select {
	case d.jobs <- job:
		d.growIfBacklogged()
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Stop shuts down all workers. Queued jobs that have not started are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()
	close(d.quit)
}

// Running reports the current worker count.
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) growIfBacklogged() {
	if len(d.jobs) == 0 {
		return
	}
	d.mu.Lock()
	canGrow := d.running < d.max && !d.stopped
	d.mu.Unlock()
	if canGrow {
		d.spawnWorker()
	}
}

func (d *Dispatcher) spawnWorker() {
	d.mu.Lock()
	if d.running >= d.max || d.stopped {
		d.mu.Unlock()
		return
	}
	d.running++
	id := d.running
	d.mu.Unlock()

	debugLog("[dispatcher] spawn worker-%d", id)
	go d.workerLoop(id)
}

func (d *Dispatcher) workerLoop(id int) {
	idle := time.NewTimer(d.idle)
	defer idle.Stop()
	for {
		select {
		case job := <-d.jobs:
			job()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.idle)
		case <-idle.C:
			d.mu.Lock()
			if d.running > d.min {
				d.running--
				d.mu.Unlock()
				debugLog("[dispatcher] retire idle worker-%d", id)
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idle)
		case <-d.quit:
			d.mu.Lock()
			d.running--
			d.mu.Unlock()
			return
		}
	}
}

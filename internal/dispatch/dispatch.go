// Package dispatch provides the execution contexts that recognition and
// validation work runs on. Components take an Executor and a Clock instead of
// spawning goroutines or sleeping directly, so tests can drive them on the
// calling goroutine.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Executor runs tasks, possibly asynchronously.
type Executor interface {
	Submit(task func())
}

// Clock abstracts waiting so throttles can be tested without real delays.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration)
}

// Goroutines runs every task on a fresh goroutine. Panics inside tasks are
// recovered and logged so they never take the process down.
type Goroutines struct {
	Logger *slog.Logger

	wg sync.WaitGroup
}

// Submit runs task on a new goroutine.
func (g *Goroutines) Submit(task func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer Recover(g.Logger, "task")
		task()
	}()
}

// Wait blocks until every submitted task has returned.
func (g *Goroutines) Wait() { g.wg.Wait() }

// Inline runs tasks synchronously on the caller's goroutine.
type Inline struct{}

// Submit runs task immediately.
func (Inline) Submit(task func()) { task() }

// Pool runs tasks on a fixed number of worker goroutines.
type Pool struct {
	tasks  chan func()
	logger *slog.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool starts a pool with the given number of workers (at least one) and
// queue capacity.
func NewPool(workers, queue int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{tasks: make(chan func(), queue), logger: logger}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		func() {
			defer Recover(p.logger, "pool task")
			task()
		}()
	}
}

// Submit queues task, blocking while the queue is full.
func (p *Pool) Submit(task func()) { p.tasks <- task }

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.tasks) })
	p.wg.Wait()
}

// Recover logs a recovered panic. It must be called directly by defer.
func Recover(logger *slog.Logger, what string) {
	if r := recover(); r != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("recovered panic", "in", what, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	}
}

// RealClock uses the wall clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is done.
func (RealClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ManualClock is a Clock for tests. Sleep returns immediately and advances the
// clock by the requested duration.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock { return &ManualClock{now: start} }

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records d and advances the clock.
func (c *ManualClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns the durations passed to Sleep so far.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

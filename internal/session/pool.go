package session

import (
	"context"
	"errors"
	"sync"

	"github.com/MeKo-Tech/wordscan/internal/scanner"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("session: pool closed")

// Pool hands out single-frame sessions for still imports. Sessions are
// created lazily up to size and reused.
type Pool struct {
	factory *Factory
	slots   chan struct{}

	mu     sync.Mutex
	idle   []*Session
	all    []*Session
	closed bool
}

// NewPool returns a pool of at most size sessions.
func NewPool(factory *Factory, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{factory: factory, slots: make(chan struct{}, size)}
}

// Acquire returns an idle session or starts a new one, blocking while all
// sessions are busy.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	s, err := p.factory.New(ctx, scanner.ModeSingleFrame)
	if err != nil {
		<-p.slots
		return nil, err
	}
	p.mu.Lock()
	p.all = append(p.all, s)
	p.mu.Unlock()
	return s, nil
}

// Release returns s to the pool.
func (p *Pool) Release(s *Session) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		s.Close()
	} else {
		p.idle = append(p.idle, s)
		p.mu.Unlock()
	}
	<-p.slots
}

// Size returns the number of sessions created so far.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// Close stops every idle session; busy sessions stop on Release.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, s := range idle {
		s.Close()
	}
}

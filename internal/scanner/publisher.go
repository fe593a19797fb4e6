package scanner

import "sync"

// Publisher holds the latest State and fans it out to subscribers with watch
// semantics: a subscriber always receives the most recent snapshot, and
// snapshots it did not read in time are replaced rather than queued.
type Publisher struct {
	mu     sync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
}

// NewPublisher returns a publisher holding initial.
func NewPublisher(initial State) *Publisher {
	return &Publisher{state: initial, subs: make(map[int]chan State)}
}

// Publish stores s and offers it to every subscriber. It never blocks.
func (p *Publisher) Publish(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	for _, ch := range p.subs {
		offer(ch, s)
	}
}

// Current returns the latest snapshot.
func (p *Publisher) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe returns a channel primed with the current snapshot and a cancel
// function that closes it.
func (p *Publisher) Subscribe() (<-chan State, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan State, 1)
	ch <- p.state
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

// offer replaces an unread snapshot in ch with s. Only Publish sends on ch
// and it holds the lock, so after draining there is room.
func offer(ch chan State, s State) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

package scanner

import (
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/MeKo-Tech/wordscan/internal/common"
	"github.com/MeKo-Tech/wordscan/internal/frames"
)

// cycle is one scan-and-validate pass over one image. It settles once both
// recognition has completed and validation (if any) has finished; only then
// is the frame ticket resolved.
type cycle struct {
	id     string
	gen    uint64
	single bool
	ticket *frames.Ticket
	result chan State

	timerMu sync.Mutex
	timer   *common.Timer

	// reported is set once OnDetected or OnError arrived.
	reported atomic.Bool

	pending        atomic.Int32
	validationOnce sync.Once
	recognizedOnce sync.Once
	onSettled      func(*cycle)
}

func newCycle(gen uint64, single bool, ticket *frames.Ticket, onSettled func(*cycle)) *cycle {
	c := &cycle{
		id:        ulid.Make().String(),
		gen:       gen,
		single:    single,
		ticket:    ticket,
		timer:     common.NewNamedTimer("cycle"),
		onSettled: onSettled,
	}
	c.pending.Store(2)
	return c
}

func (c *cycle) recognitionDone() {
	c.recognizedOnce.Do(func() {
		c.lap("recognition")
		c.settleOne()
	})
}

func (c *cycle) validationDone() {
	c.validationOnce.Do(func() {
		c.lap("validation")
		c.settleOne()
	})
}

func (c *cycle) lap(name string) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.timer.Lap(name)
}

func (c *cycle) settleOne() {
	if c.pending.Add(-1) == 0 {
		c.timerMu.Lock()
		c.timer.Stop()
		c.timerMu.Unlock()
		c.ticket.Done()
		if c.onSettled != nil {
			c.onSettled(c)
		}
	}
}

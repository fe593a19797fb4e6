// Package common provides small helpers shared by the scanning packages.
package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures an operation and optional named laps within it, such as the
// recognition and validation halves of one scan cycle.
type Timer struct {
	start    time.Time
	last     time.Time
	name     string
	duration time.Duration
	laps     []Lap
}

// Lap is a named segment of a Timer.
type Lap struct {
	Name     string
	Duration time.Duration
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	now := time.Now()
	return &Timer{start: now, last: now}
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	t := NewTimer()
	t.name = name
	return t
}

// Lap records the time since the previous lap (or the start) under name.
func (t *Timer) Lap(name string) time.Duration {
	now := time.Now()
	d := now.Sub(t.last)
	t.last = now
	t.laps = append(t.laps, Lap{Name: name, Duration: d})
	return d
}

// Laps returns the recorded laps in order.
func (t *Timer) Laps() []Lap { return append([]Lap(nil), t.laps...) }

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// ObserveStop stops the timer and records the elapsed seconds on o.
func (t *Timer) ObserveStop(o prometheus.Observer) time.Duration {
	d := t.Stop()
	if o != nil {
		o.Observe(d.Seconds())
	}
	return d
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	var b strings.Builder
	if t.name != "" {
		fmt.Fprintf(&b, "%s: ", t.name)
	}
	fmt.Fprintf(&b, "%v", t.duration)
	for _, l := range t.laps {
		fmt.Fprintf(&b, " %s=%v", l.Name, l.Duration)
	}
	return b.String()
}

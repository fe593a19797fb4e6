package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/wordscan/internal/dispatch"
)

// Limits configures a RateLimiter. Zero disables a limit.
type Limits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// Enabled reports whether any limit is set.
func (l Limits) Enabled() bool {
	return l.RequestsPerMinute > 0 || l.RequestsPerHour > 0 || l.MaxRequestsPerDay > 0 || l.MaxDataPerDay > 0
}

// RateLimiter limits scan requests per client. Every scan may cost several
// calls to the validation service, so uploads are counted per client address.
type RateLimiter struct {
	mu     sync.Mutex
	limits Limits
	clock  dispatch.Clock
	usage  map[string]*ClientUsage
}

// ClientUsage tracks the windows of one client.
type ClientUsage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
}

// NewRateLimiter creates a rate limiter. A nil clock uses the wall clock.
func NewRateLimiter(limits Limits, clock dispatch.Clock) *RateLimiter {
	if clock == nil {
		clock = dispatch.RealClock{}
	}
	return &RateLimiter{limits: limits, clock: clock, usage: make(map[string]*ClientUsage)}
}

// Allow records a request of dataSize bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	u := rl.usage[client]
	if u == nil {
		u = &ClientUsage{minuteStart: now, hourStart: now, dayStart: startOfDay(now)}
		rl.usage[client] = u
	}
	u.roll(now)

	if err := rl.checkRates(u, now); err != nil {
		return err
	}
	if err := rl.checkQuotas(u, dataSize); err != nil {
		return err
	}

	u.RequestsLastMinute++
	u.RequestsLastHour++
	u.RequestsToday++
	u.DataToday += dataSize
	return nil
}

func (u *ClientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.RequestsLastMinute = 0
		u.minuteStart = now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.RequestsLastHour = 0
		u.hourStart = now
	}
	if day := startOfDay(now); !day.Equal(u.dayStart) {
		u.RequestsToday = 0
		u.DataToday = 0
		u.dayStart = day
	}
}

func (rl *RateLimiter) checkRates(u *ClientUsage, now time.Time) error {
	if rl.limits.RequestsPerMinute > 0 && u.RequestsLastMinute >= rl.limits.RequestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.limits.RequestsPerMinute,
			RetryAfter: time.Minute - now.Sub(u.minuteStart),
		}
	}
	if rl.limits.RequestsPerHour > 0 && u.RequestsLastHour >= rl.limits.RequestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.limits.RequestsPerHour,
			RetryAfter: time.Hour - now.Sub(u.hourStart),
		}
	}
	return nil
}

func (rl *RateLimiter) checkQuotas(u *ClientUsage, dataSize int64) error {
	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.limits.MaxRequestsPerDay > 0 && u.RequestsToday >= rl.limits.MaxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.limits.MaxRequestsPerDay),
			Used:   int64(u.RequestsToday),
			Resets: resets,
		}
	}
	if rl.limits.MaxDataPerDay > 0 && u.DataToday+dataSize > rl.limits.MaxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  rl.limits.MaxDataPerDay,
			Used:   u.DataToday,
			Resets: resets,
		}
	}
	return nil
}

// Usage returns a copy of the usage recorded for client.
func (rl *RateLimiter) Usage(client string) ClientUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok := rl.usage[client]; ok {
		return *u
	}
	return ClientUsage{}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}

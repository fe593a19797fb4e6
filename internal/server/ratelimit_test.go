package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/wordscan/internal/dispatch"
)

var noon = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func TestRateLimiter_NoLimits(t *testing.T) {
	rl := NewRateLimiter(Limits{}, dispatch.NewManualClock(noon))

	for range 50 {
		require.NoError(t, rl.Allow("client", 100))
	}
	usage := rl.Usage("client")
	assert.Equal(t, 50, usage.RequestsToday)
	assert.Equal(t, int64(5000), usage.DataToday)
	assert.False(t, Limits{}.Enabled())
}

func TestRateLimiter_RequestsPerMinute(t *testing.T) {
	clock := dispatch.NewManualClock(noon)
	rl := NewRateLimiter(Limits{RequestsPerMinute: 2}, clock)

	require.NoError(t, rl.Allow("a", 0))
	clock.Advance(10 * time.Second)
	require.NoError(t, rl.Allow("a", 0))

	err := rl.Allow("a", 0)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "minute", rateErr.Type)
	assert.Equal(t, 2, rateErr.Limit)
	assert.Equal(t, 50*time.Second, rateErr.RetryAfter)

	require.NoError(t, rl.Allow("b", 0), "clients are counted separately")

	clock.Advance(time.Minute)
	require.NoError(t, rl.Allow("a", 0))
}

func TestRateLimiter_RequestsPerHour(t *testing.T) {
	clock := dispatch.NewManualClock(noon)
	rl := NewRateLimiter(Limits{RequestsPerHour: 3}, clock)

	for range 3 {
		require.NoError(t, rl.Allow("a", 0))
		clock.Advance(2 * time.Minute)
	}
	err := rl.Allow("a", 0)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "hour", rateErr.Type)
	assert.Equal(t, 54*time.Minute, rateErr.RetryAfter)

	clock.Advance(time.Hour)
	assert.NoError(t, rl.Allow("a", 0))
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	clock := dispatch.NewManualClock(noon)
	rl := NewRateLimiter(Limits{MaxRequestsPerDay: 2, MaxDataPerDay: 1000}, clock)

	require.NoError(t, rl.Allow("a", 600))

	err := rl.Allow("a", 600)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "data", quotaErr.Type)
	assert.Equal(t, int64(600), quotaErr.Used)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), quotaErr.Resets)

	require.NoError(t, rl.Allow("a", 100))
	err = rl.Allow("a", 0)
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "requests", quotaErr.Type)
	assert.Contains(t, err.Error(), "quota exceeded for requests")

	clock.Advance(12 * time.Hour)
	require.NoError(t, rl.Allow("a", 900), "quotas reset at midnight")
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	rl := NewRateLimiter(Limits{RequestsPerMinute: 1}, dispatch.NewManualClock(noon))
	require.NoError(t, rl.Allow("a", 10))
	require.Error(t, rl.Allow("a", 10))
	assert.Equal(t, 1, rl.Usage("a").RequestsToday)
	assert.Equal(t, ClientUsage{}, rl.Usage("unknown"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(Limits{RequestsPerMinute: 10}, dispatch.NewManualClock(noon))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rl.Allow("a", 0); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			} else {
				var rateErr *RateLimitError
				assert.True(t, errors.As(err, &rateErr))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

package validation

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/metrics"
)

// DefaultCacheSize is the number of answers Cached keeps.
const DefaultCacheSize = 512

// Cached remembers successful answers of the wrapped client. Live scanning
// reads the same printed address many times a second; only the first read
// needs a round trip. Errors are never cached.
type Cached struct {
	next  Client
	cache *lru.Cache[string, []address.Confirmed]
}

// NewCached wraps next with an LRU cache of the given size.
func NewCached(next Client, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []address.Confirmed](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: c}, nil
}

// Validate implements Client.
func (c *Cached) Validate(ctx context.Context, candidate string, opts Options) ([]address.Confirmed, error) {
	key := address.Key(candidate) + "#" + opts.key()
	if hit, ok := c.cache.Get(key); ok {
		metrics.ValidationsTotal.WithLabelValues("cached").Inc()
		return append([]address.Confirmed(nil), hit...), nil
	}
	res, err := c.next.Validate(ctx, candidate, opts)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]address.Confirmed(nil), res...))
	return res, nil
}

// Len returns the number of cached answers.
func (c *Cached) Len() int { return c.cache.Len() }

// Purge drops every cached answer.
func (c *Cached) Purge() { c.cache.Purge() }

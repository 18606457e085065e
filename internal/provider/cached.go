package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/addresolve/internal/address"
)

// DefaultCacheSize is the number of lookups Cached keeps per provider.
const DefaultCacheSize = 10000

// CacheStats reports lookup cache effectiveness.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cached wraps a Provider with an LRU of search results. Misses ("no
// match") are cached too; errors never are.
type Cached struct {
	inner Provider
	cache *lru.Cache[string, *Result]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCached creates a caching decorator around inner.
func NewCached(inner Provider, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, *Result](size)
	return &Cached{inner: inner, cache: cache}
}

// Name implements Provider.
func (c *Cached) Name() string { return c.inner.Name() }

// IsEnabled implements Provider.
func (c *Cached) IsEnabled(item string, scope Scope) bool {
	return c.inner.IsEnabled(item, scope)
}

// Normalize implements Provider.
func (c *Cached) Normalize(res *Result) []address.Address {
	return c.inner.Normalize(res)
}

// Inner returns the wrapped provider.
func (c *Cached) Inner() Provider {
	return c.inner
}

// Stats returns hit and miss counters.
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.cache.Len(),
	}
}

// Purge drops every cached result.
func (c *Cached) Purge() {
	c.cache.Purge()
}

// cacheKey scopes entries by tenant and language since providers may
// answer differently for each.
func (c *Cached) cacheKey(scope Scope, q string) string {
	combined := c.inner.Name() + "\x00" + scope.TenantID + "\x00" + scope.Language + "\x00" + NormalizeQuery(q)
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Prepare implements Provider.
func (c *Cached) Prepare(ctx context.Context, scope Scope) (Searcher, error) {
	s, err := c.inner.Prepare(ctx, scope)
	if err != nil {
		return nil, err
	}
	return SearcherFunc(func(ctx context.Context, q string) (*Result, error) {
		key := c.cacheKey(scope, q)
		if res, ok := c.cache.Get(key); ok {
			c.hits.Add(1)
			return res, nil
		}
		c.misses.Add(1)

		res, err := s.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, res)
		return res, nil
	}), nil
}

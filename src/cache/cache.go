package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// -----------------------------------------------------------------------------
// Two-tier TTL cache with single-flight fetch coalescing
// -----------------------------------------------------------------------------

// Class selects the TTL tier for an entry.
type Class int

const (
	// Fast is for quote-like data that goes stale in seconds.
	Fast Class = iota
	// Slow is for instrument metadata and other slow-moving reference data.
	Slow
)

// FetchFunc produces the value for a missing key.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Stats tracks cache effectiveness counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// TTLCache stores values with per-class TTLs. Expired entries are evicted
// lazily on access; when the entry cap is hit a sweep removes expired
// entries and, failing that, the soonest-to-expire ones.
type TTLCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	fastTTL    time.Duration
	slowTTL    time.Duration
	maxEntries int

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
	evict  atomic.Int64

	now func() time.Time
}

// NewTTLCache creates a cache with the given tier TTLs and entry cap.
func NewTTLCache(fastTTL, slowTTL time.Duration, maxEntries int) *TTLCache {
	return &TTLCache{
		entries:    make(map[string]entry),
		fastTTL:    fastTTL,
		slowTTL:    slowTTL,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// -----------------------------------------------------------------------------

// Get returns the cached value for key or fetches it. Concurrent callers for
// the same missing key share one fetch. A failed fetch stores nothing and the
// error is returned to every waiter.
func (c *TTLCache) Get(ctx context.Context, key string, class Class, fetch FetchFunc) (interface{}, error) {
	if v, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another waiter may have populated the key while we queued.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, class, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Peek returns the cached value without fetching.
func (c *TTLCache) Peek(key string) (interface{}, bool) {
	return c.lookup(key)
}

// Invalidate drops a single key.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// GetStats returns a snapshot of the counters.
func (c *TTLCache) GetStats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evict.Load(),
		Entries:   n,
	}
}

// -----------------------------------------------------------------------------

func (c *TTLCache) lookup(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock, the entry may have been replaced.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
			c.evict.Add(1)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *TTLCache) store(key string, class Class, v interface{}) {
	ttl := c.fastTTL
	if class == Slow {
		ttl = c.slowTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	c.entries[key] = entry{value: v, expiresAt: c.now().Add(ttl)}
}

// sweepLocked removes expired entries, then the soonest-to-expire entry if
// the cache is still full. Caller holds the write lock.
func (c *TTLCache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			c.evict.Add(1)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey = k
			oldest = e.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evict.Add(1)
	}
}

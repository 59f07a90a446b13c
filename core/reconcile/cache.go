package reconcile

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// RunCache memoizes lookups for the lifetime of one run. Reads take a shared
// lock; concurrent misses for the same key share one load.
type RunCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	sf      singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRunCache returns an empty cache.
func NewRunCache[V any]() *RunCache[V] {
	return &RunCache[V]{entries: make(map[string]V)}
}

// Get returns the cached value for key, calling load on a miss. Errors are
// not cached.
//
// The shared load is detached from the caller's cancellation so one cancelled
// caller does not fail the others waiting on the same key; a cancelled caller
// stops waiting and gets its own ctx error.
func (c *RunCache[V]) Get(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	var zero V

	// Fast path: check if the value exists
	c.mu.RLock()
	value, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return value, nil
	}

	// Slow path: load using singleflight to prevent stampedes
	loadCtx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		// Double-check after acquiring singleflight lock
		c.mu.RLock()
		value, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return value, nil
		}

		c.misses.Add(1)
		loaded, err := load(loadCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = loaded
		c.mu.Unlock()

		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Invalidate removes key from the cache.
func (c *RunCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *RunCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts. A miss is a call to load.
func (c *RunCache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunCache_SingleLoadUnderConcurrency tests stampede protection.
func TestRunCache_SingleLoadUnderConcurrency(t *testing.T) {
	cache := NewRunCache[map[string]string]()
	var loads atomic.Int32

	load := func(context.Context) (map[string]string, error) {
		loads.Add(1)
		time.Sleep(5 * time.Millisecond)
		return map[string]string{"GBR": "pp-gbr"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Get(context.Background(), "pp-usa", load)
			assert.NoError(t, err)
			assert.Equal(t, "pp-gbr", v["GBR"])
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, cache.Len())

	_, misses := cache.Stats()
	assert.Equal(t, int64(1), misses)
}

// TestRunCache_ErrorsNotCached tests that a failed load is retried next time.
func TestRunCache_ErrorsNotCached(t *testing.T) {
	cache := NewRunCache[int]()
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("temporary")
		}
		return 42, nil
	}

	_, err := cache.Get(context.Background(), "k", load)
	require.Error(t, err)

	v, err := cache.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = cache.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)

	hits, _ := cache.Stats()
	assert.Equal(t, int64(1), hits)

	cache.Invalidate("k")
	assert.Zero(t, cache.Len())
}

// TestRunCache_CancelledCallerDoesNotFailOthers tests that a caller giving up
// leaves the shared load running for the callers still waiting.
func TestRunCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	cache := NewRunCache[int]()
	started := make(chan struct{})
	release := make(chan struct{})
	var loads atomic.Int32

	load := func(ctx context.Context) (int, error) {
		if loads.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(first, "pp-usa", load)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := cache.Get(context.Background(), "pp-usa", load)
		second <- result{v, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, 7, res.v)
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, cache.Len())
}

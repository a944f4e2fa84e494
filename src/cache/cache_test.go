package cache

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

func TestGetServesWithinTTL(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	clock := base
	c := NewTTLCache(10*time.Second, 300*time.Second, 16)
	c.now = func() time.Time { return clock }

	var fetches atomic.Int64
	fetch := func(ctx context.Context) (interface{}, error) {
		fetches.Add(1)
		return "v1", nil
	}

	v, err := c.Get(context.Background(), "k", Fast, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int64(1), fetches.Load())

	// Anywhere inside the window no new fetch happens.
	clock = base.Add(9 * time.Second)
	v, err = c.Get(context.Background(), "k", Fast, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int64(1), fetches.Load())

	// Past the window the entry is refetched.
	clock = base.Add(11 * time.Second)
	_, err = c.Get(context.Background(), "k", Fast, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetches.Load())
}

func TestGetSingleFlight(t *testing.T) {
	c := NewTTLCache(10*time.Second, 300*time.Second, 16)

	var fetches atomic.Int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) (interface{}, error) {
		fetches.Add(1)
		<-release
		return 42, nil
	}

	const readers = 16
	var wg sync.WaitGroup
	results := make([]interface{}, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "shared", Fast, fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give readers time to pile onto the pending fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), fetches.Load(), "concurrent readers must share one fetch")
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestGetFailedFetchNotCached(t *testing.T) {
	c := NewTTLCache(10*time.Second, 300*time.Second, 16)

	boom := errors.New("upstream down")
	var fetches atomic.Int64

	_, err := c.Get(context.Background(), "k", Fast, func(ctx context.Context) (interface{}, error) {
		fetches.Add(1)
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := c.Peek("k")
	assert.False(t, ok, "failed fetch must not populate the cache")

	// A later call fetches again and can succeed.
	v, err := c.Get(context.Background(), "k", Fast, func(ctx context.Context) (interface{}, error) {
		fetches.Add(1)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int64(2), fetches.Load())
}

func TestGetFailedFetchSharedByWaiters(t *testing.T) {
	c := NewTTLCache(10*time.Second, 300*time.Second, 16)

	boom := errors.New("no data")
	release := make(chan struct{})

	const readers = 8
	var wg sync.WaitGroup
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), "k", Fast, func(ctx context.Context) (interface{}, error) {
				<-release
				return nil, boom
			})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		assert.ErrorIs(t, err, boom, "waiter %d", i)
	}
}

func TestStoreEnforcesEntryCap(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	clock := base
	c := NewTTLCache(10*time.Second, 300*time.Second, 4)
	c.now = func() time.Time { return clock }

	fetch := func(v string) FetchFunc {
		return func(ctx context.Context) (interface{}, error) { return v, nil }
	}

	keys := []string{"a", "b", "c", "d", "e", "f"}
	for i, k := range keys {
		clock = base.Add(time.Duration(i) * time.Millisecond)
		_, err := c.Get(context.Background(), k, Fast, fetch(k))
		require.NoError(t, err)
	}

	stats := c.GetStats()
	assert.LessOrEqual(t, stats.Entries, 4, "cap must hold")
	assert.Greater(t, stats.Evictions, int64(0))
}

func TestInvalidate(t *testing.T) {
	c := NewTTLCache(10*time.Second, 300*time.Second, 16)

	_, err := c.Get(context.Background(), "k", Slow, func(ctx context.Context) (interface{}, error) {
		return 1, nil
	})
	require.NoError(t, err)

	c.Invalidate("k")
	_, ok := c.Peek("k")
	assert.False(t, ok)
}

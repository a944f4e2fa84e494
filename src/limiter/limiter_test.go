package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireBurstWithinCapacity(t *testing.T) {
	l := NewLimiter(5, 1, 100*time.Millisecond)

	for i := 0; i < 5; i++ {
		err := l.Acquire(context.Background())
		require.NoError(t, err, "token %d within capacity", i)
	}
}

func TestAcquireFailsFastBeyondBudget(t *testing.T) {
	// One token, negligible refill: the second acquire would wait far
	// past the budget and must fail immediately with a retry hint.
	l := NewLimiter(1, 0.001, 50*time.Millisecond)

	require.NoError(t, l.Acquire(context.Background()))

	start := time.Now()
	err := l.Acquire(context.Background())
	elapsed := time.Since(start)

	var be *ErrBudgetExceeded
	require.ErrorAs(t, err, &be)
	assert.Greater(t, be.RetryAfter, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond, "must fail fast, not block")
}

func TestAcquireWaitsWithinBudget(t *testing.T) {
	// Empty bucket refilling at 50/s: next token ~20ms away, inside the
	// 500ms budget, so Acquire blocks briefly and succeeds.
	l := NewLimiter(1, 50, 500*time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))

	start := time.Now()
	err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAcquireGrantBound(t *testing.T) {
	// Over a window of W seconds grants never exceed capacity + R*W.
	const capacity = 3
	const refill = 20.0
	l := NewLimiter(capacity, refill, 0)

	window := 300 * time.Millisecond
	deadline := time.Now().Add(window)
	granted := 0
	for time.Now().Before(deadline) {
		if err := l.Acquire(context.Background()); err == nil {
			granted++
		} else {
			time.Sleep(5 * time.Millisecond)
		}
	}

	bound := capacity + int(refill*window.Seconds()) + 1
	assert.LessOrEqual(t, granted, bound)
}

func TestAcquireRespectsContextCancel(t *testing.T) {
	l := NewLimiter(1, 2, 5*time.Second)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

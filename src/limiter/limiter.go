package limiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------
// Token bucket gate in front of the upstream client
// -----------------------------------------------------------------------------

// ErrBudgetExceeded is returned when a token cannot be obtained within the
// configured wait budget. RetryAfter tells the caller how long until the
// bucket would have a token.
type ErrBudgetExceeded struct {
	RetryAfter time.Duration
}

func (e *ErrBudgetExceeded) Error() string {
	return "rate limit budget exceeded"
}

// Limiter wraps a token bucket with a bounded acquisition wait.
type Limiter struct {
	bucket  *rate.Limiter
	maxWait time.Duration
}

// NewLimiter creates a bucket with the given capacity and refill rate.
// maxWait bounds how long Acquire may block before giving up.
func NewLimiter(capacity int, refillPerSec float64, maxWait time.Duration) *Limiter {
	return &Limiter{
		bucket:  rate.NewLimiter(rate.Limit(refillPerSec), capacity),
		maxWait: maxWait,
	}
}

// Acquire takes one token, waiting at most the configured budget.
// Returns *ErrBudgetExceeded when the wait would exceed the budget and
// the context error when ctx is cancelled first.
func (l *Limiter) Acquire(ctx context.Context) error {
	r := l.bucket.Reserve()
	if !r.OK() {
		return &ErrBudgetExceeded{RetryAfter: l.maxWait}
	}

	delay := r.Delay()
	if delay > l.maxWait {
		r.Cancel()
		return &ErrBudgetExceeded{RetryAfter: delay}
	}
	if delay == 0 {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Tokens reports the current token count, for metrics.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}

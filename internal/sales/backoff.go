package sales

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how a ledger write is retried after a version conflict
// or a transient store failure.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	// Max caps a single delay.
	Max time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 8, Base: 10 * time.Millisecond, Max: 500 * time.Millisecond}

// jitter spreads each delay over [0, 2x] of the current interval.
const jitter = 1.0

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.Base < 0 {
		p.Base = 0
	}
	if p.Max <= 0 {
		p.Max = DefaultRetryPolicy.Max
	}
	return p
}

// backOff builds a randomized exponential schedule allowing MaxAttempts
// calls in total and stopping early when ctx is done.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.Base),
		backoff.WithRandomizationFactor(jitter),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(p.Max),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

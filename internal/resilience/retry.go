package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/LavishGent/imgcache/internal/config"
)

// RetryPolicy retries retryable errors with exponential backoff.
type RetryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitter         bool

	onRetry func(attempt int, err error, backoff time.Duration)

	totalRetries atomic.Int64
	totalSuccess atomic.Int64
	totalFailure atomic.Int64
}

func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	rp := &RetryPolicy{
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff.Std(),
		maxBackoff:     cfg.MaxBackoff.Std(),
		multiplier:     cfg.Multiplier,
		jitter:         cfg.Jitter,
	}

	if rp.maxAttempts <= 0 {
		rp.maxAttempts = 3
	}
	if rp.initialBackoff <= 0 {
		rp.initialBackoff = 100 * time.Millisecond
	}
	if rp.maxBackoff <= 0 {
		rp.maxBackoff = 2 * time.Second
	}
	if rp.multiplier <= 0 {
		rp.multiplier = 2.0
	}

	return rp
}

// SetOnRetry registers a hook called before each backoff sleep.
func (rp *RetryPolicy) SetOnRetry(fn func(attempt int, err error, backoff time.Duration)) {
	rp.onRetry = fn
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted.
func (rp *RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= rp.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			rp.totalSuccess.Add(1)
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == rp.maxAttempts {
			break
		}

		rp.totalRetries.Add(1)
		backoff := rp.calculateBackoff(attempt)
		if rp.onRetry != nil {
			rp.onRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	rp.totalFailure.Add(1)
	return lastErr
}

func (rp *RetryPolicy) calculateBackoff(attempt int) time.Duration {
	backoff := float64(rp.initialBackoff) * math.Pow(rp.multiplier, float64(attempt-1))
	if backoff > float64(rp.maxBackoff) {
		backoff = float64(rp.maxBackoff)
	}

	// +/-25%
	if rp.jitter {
		jitterRange := backoff * 0.25
		backoff += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	return time.Duration(backoff)
}

func (rp *RetryPolicy) Stats() (retries, success, failure int64) {
	return rp.totalRetries.Load(), rp.totalSuccess.Load(), rp.totalFailure.Load()
}

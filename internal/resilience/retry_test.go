package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/types"
)

func testRetry(attempts int) *RetryPolicy {
	return NewRetryPolicy(config.RetryConfig{
		Enabled:        true,
		MaxAttempts:    attempts,
		InitialBackoff: config.Duration(time.Millisecond),
		MaxBackoff:     config.Duration(5 * time.Millisecond),
		Multiplier:     2,
	})
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	rp := testRetry(3)

	calls := 0
	err := rp.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errUpstream
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	retries, success, failure := rp.Stats()
	if retries != 2 || success != 1 || failure != 0 {
		t.Errorf("Stats() = %d/%d/%d, want 2/1/0", retries, success, failure)
	}
}

func TestRetryPolicy_StopsOnNonRetryable(t *testing.T) {
	rp := testRetry(5)

	calls := 0
	err := rp.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return types.ErrNotFound
	})

	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	rp := testRetry(3)

	var seen []int
	rp.SetOnRetry(func(attempt int, err error, backoff time.Duration) {
		seen = append(seen, attempt)
	})

	calls := 0
	err := rp.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errUpstream
	})

	if !errors.Is(err, errUpstream) {
		t.Errorf("error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(seen) != 2 {
		t.Errorf("onRetry called %d times, want 2", len(seen))
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	rp := NewRetryPolicy(config.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: config.Duration(time.Second),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rp.Do(ctx, func(ctx context.Context) error { return errUpstream })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	rp := NewRetryPolicy(config.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: config.Duration(100 * time.Millisecond),
		MaxBackoff:     config.Duration(300 * time.Millisecond),
		Multiplier:     2,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{4, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := rp.calculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	rp.jitter = true
	for i := 0; i < 50; i++ {
		got := rp.calculateBackoff(1)
		if got < 75*time.Millisecond || got > 125*time.Millisecond {
			t.Fatalf("jittered backoff %v outside +/-25%%", got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"bulkhead full", ErrBulkheadFull, false},
		{"circuit open", ErrCircuitOpen, false},
		{"not found", types.ErrNotFound, false},
		{"upstream 5xx", errUpstream, true},
		{"upstream 429", fmt.Errorf("%w: 429", types.ErrUpstreamStatus), true},
		{"upstream 403", fmt.Errorf("%w: 403", types.ErrUpstreamRejected), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/types"
)

func policyConfig() *config.Config {
	cfg := config.ForTesting()
	cfg.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:             true,
		FailureThreshold:    3,
		SuccessThreshold:    1,
		OpenDuration:        config.Duration(time.Hour),
		HalfOpenMaxRequests: 1,
	}
	cfg.Retry = config.RetryConfig{
		Enabled:        true,
		MaxAttempts:    3,
		InitialBackoff: config.Duration(time.Millisecond),
		MaxBackoff:     config.Duration(2 * time.Millisecond),
		Multiplier:     2,
	}
	cfg.Bulkhead = config.BulkheadConfig{
		Enabled:        true,
		MaxConcurrent:  4,
		MaxQueue:       4,
		AcquireTimeout: config.Duration(time.Second),
	}
	return cfg
}

func TestPolicy_EachRetryCountsTowardBreaker(t *testing.T) {
	p := NewPolicy("source", policyConfig(), nil)

	calls := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errUpstream
	})

	if !errors.Is(err, errUpstream) {
		t.Fatalf("error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if p.CircuitState() != StateOpen {
		t.Errorf("circuit = %v, want open after 3 failed attempts", p.CircuitState())
	}

	err = p.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, types.ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
}

func TestPolicy_NotFoundNotRetried(t *testing.T) {
	p := NewPolicy("source", policyConfig(), nil)

	calls := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return types.ErrNotFound
	})

	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if p.CircuitState() != StateClosed {
		t.Errorf("circuit = %v, want closed", p.CircuitState())
	}
}

func TestRun_ReturnsValue(t *testing.T) {
	p := NewPolicy("source", policyConfig(), nil)

	attempts := 0
	got, err := Run(context.Background(), p, func(ctx context.Context) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return nil, errUpstream
		}
		return []byte("ok"), nil
	})

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(got) != "ok" {
		t.Errorf("Run() = %q", got)
	}
}

func TestDisabledPolicy(t *testing.T) {
	p := NewDisabledPolicy()

	calls := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errUpstream
	})

	if !errors.Is(err, errUpstream) || calls != 1 {
		t.Errorf("disabled policy should call once and pass the error through, calls=%d err=%v", calls, err)
	}
	if p.CircuitBreaker() != nil {
		t.Error("disabled policy should have no breaker")
	}
	if p.CircuitState() != StateClosed {
		t.Error("disabled policy reports closed")
	}
	if (p.BulkheadStats() != BulkheadStats{}) {
		t.Error("disabled policy has empty bulkhead stats")
	}
	p.SetOnCircuitStateChange(func(string, State, State) {})
}

func TestPolicy_Stats(t *testing.T) {
	p := NewPolicy("source", policyConfig(), nil)

	_ = p.Execute(context.Background(), func(ctx context.Context) error { return errUpstream })

	s := p.Stats()
	if s.CircuitState != "open" {
		t.Errorf("CircuitState = %q, want open", s.CircuitState)
	}
	if s.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", s.ConsecutiveFailures)
	}
	if s.Retries != 2 || s.Failed != 1 || s.Succeeded != 0 {
		t.Errorf("retry stats = %d/%d/%d, want 2 retries, 1 failure", s.Retries, s.Succeeded, s.Failed)
	}
	if s.BulkheadActive != 0 || s.BulkheadRejected != 0 {
		t.Errorf("bulkhead stats = %+v", s)
	}

	if got := NewDisabledPolicy().Stats(); got != (types.UpstreamStats{CircuitState: "closed"}) {
		t.Errorf("disabled policy stats = %+v", got)
	}
}

package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/types"
)

// Policy wraps an upstream call in bulkhead, retry and circuit breaker.
// Any of the three may be disabled by config, in which case it is skipped.
type Policy struct {
	circuitBreaker *CircuitBreaker
	retry          *RetryPolicy
	bulkhead       *Bulkhead
}

func NewPolicy(name string, cfg *config.Config, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "resilience", "upstream", name)

	p := &Policy{}
	if cfg.CircuitBreaker.Enabled {
		p.circuitBreaker = NewCircuitBreaker(name, cfg.CircuitBreaker)
		p.circuitBreaker.SetOnStateChange(func(name string, from, to State) {
			logger.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		})
	}
	if cfg.Retry.Enabled {
		p.retry = NewRetryPolicy(cfg.Retry)
		p.retry.SetOnRetry(func(attempt int, err error, backoff time.Duration) {
			logger.Debug("Retrying upstream call", "attempt", attempt, "backoff", backoff, "error", err)
		})
	}
	if cfg.Bulkhead.Enabled {
		p.bulkhead = NewBulkhead(cfg.Bulkhead)
	}
	return p
}

// NewDisabledPolicy returns a policy that calls straight through.
func NewDisabledPolicy() *Policy {
	return &Policy{}
}

// Execute runs fn through the enabled patterns in the order
// bulkhead, retry, circuit breaker. Each retry attempt is seen by the breaker.
func (p *Policy) Execute(ctx context.Context, fn func(context.Context) error) error {
	attempt := fn
	if p.circuitBreaker != nil {
		attempt = func(ctx context.Context) error {
			return p.circuitBreaker.Execute(func() error { return fn(ctx) })
		}
	}

	withRetry := attempt
	if p.retry != nil {
		withRetry = func(ctx context.Context) error {
			return p.retry.Do(ctx, attempt)
		}
	}

	if p.bulkhead != nil {
		return p.bulkhead.Do(ctx, withRetry)
	}
	return withRetry(ctx)
}

// Run is Execute for calls that produce a value.
func Run[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// CircuitBreaker returns nil when the breaker is disabled.
func (p *Policy) CircuitBreaker() *CircuitBreaker {
	return p.circuitBreaker
}

func (p *Policy) CircuitState() State {
	if p.circuitBreaker == nil {
		return StateClosed
	}
	return p.circuitBreaker.State()
}

// SetOnCircuitStateChange replaces the breaker's transition callback.
func (p *Policy) SetOnCircuitStateChange(fn func(name string, from, to State)) {
	if p.circuitBreaker != nil {
		p.circuitBreaker.SetOnStateChange(fn)
	}
}

func (p *Policy) BulkheadStats() BulkheadStats {
	if p.bulkhead == nil {
		return BulkheadStats{}
	}
	return p.bulkhead.Stats()
}

// Stats reports breaker, retry and bulkhead counters for debug output.
func (p *Policy) Stats() types.UpstreamStats {
	s := types.UpstreamStats{CircuitState: p.CircuitState().String()}
	if p.circuitBreaker != nil {
		s.ConsecutiveFailures = p.circuitBreaker.Stats().ConsecutiveFails
	}
	if p.retry != nil {
		s.Retries, s.Succeeded, s.Failed = p.retry.Stats()
	}
	if p.bulkhead != nil {
		bs := p.bulkhead.Stats()
		s.BulkheadActive = bs.Active
		s.BulkheadQueued = bs.Queued
		s.BulkheadRejected = bs.TotalRejected
	}
	return s
}

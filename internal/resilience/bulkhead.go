package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/LavishGent/imgcache/internal/config"
)

// Bulkhead caps concurrent upstream fetches. Callers beyond maxConcurrent
// wait up to acquireTimeout, and at most maxQueue of them may wait.
type Bulkhead struct {
	maxConcurrent  int
	maxQueue       int
	acquireTimeout time.Duration
	semaphore      chan struct{}

	activeCount   atomic.Int32
	queuedCount   atomic.Int32
	rejectedCount atomic.Int64
	totalExecuted atomic.Int64
}

func NewBulkhead(cfg config.BulkheadConfig) *Bulkhead {
	maxConcurrent := cfg.MaxConcurrent
	maxQueue := cfg.MaxQueue
	acquireTimeout := cfg.AcquireTimeout.Std()

	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	if maxQueue <= 0 {
		maxQueue = 64
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 2 * time.Second
	}

	return &Bulkhead{
		maxConcurrent:  maxConcurrent,
		maxQueue:       maxQueue,
		acquireTimeout: acquireTimeout,
		semaphore:      make(chan struct{}, maxConcurrent),
	}
}

func (b *Bulkhead) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	b.activeCount.Add(1)
	defer b.activeCount.Add(-1)

	err := fn(ctx)
	b.totalExecuted.Add(1)
	return err
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.semaphore <- struct{}{}:
		return nil
	default:
	}

	if int(b.queuedCount.Add(1)) > b.maxQueue {
		b.queuedCount.Add(-1)
		b.rejectedCount.Add(1)
		return ErrBulkheadFull
	}
	defer b.queuedCount.Add(-1)

	timer := time.NewTimer(b.acquireTimeout)
	defer timer.Stop()

	select {
	case b.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		b.rejectedCount.Add(1)
		return ctx.Err()
	case <-timer.C:
		b.rejectedCount.Add(1)
		return ErrBulkheadTimeout
	}
}

func (b *Bulkhead) release() {
	<-b.semaphore
}

// BulkheadStats contains bulkhead statistics.
type BulkheadStats struct {
	MaxConcurrent int
	MaxQueue      int
	Active        int
	Queued        int
	TotalExecuted int64
	TotalRejected int64
}

func (b *Bulkhead) Stats() BulkheadStats {
	return BulkheadStats{
		MaxConcurrent: b.maxConcurrent,
		MaxQueue:      b.maxQueue,
		Active:        int(b.activeCount.Load()),
		Queued:        int(b.queuedCount.Load()),
		TotalExecuted: b.totalExecuted.Load(),
		TotalRejected: b.rejectedCount.Load(),
	}
}

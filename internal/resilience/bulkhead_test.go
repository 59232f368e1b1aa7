package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LavishGent/imgcache/internal/config"
)

func TestNewBulkhead(t *testing.T) {
	t.Run("creates with config values", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{
			MaxConcurrent:  20,
			MaxQueue:       10,
			AcquireTimeout: config.Duration(500 * time.Millisecond),
		})

		if b.maxConcurrent != 20 {
			t.Errorf("maxConcurrent = %v, want 20", b.maxConcurrent)
		}
		if b.maxQueue != 10 {
			t.Errorf("maxQueue = %v, want 10", b.maxQueue)
		}
		if b.acquireTimeout != 500*time.Millisecond {
			t.Errorf("acquireTimeout = %v, want 500ms", b.acquireTimeout)
		}
	})

	t.Run("applies defaults for zero values", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{})

		if b.maxConcurrent != 16 {
			t.Errorf("maxConcurrent = %v, want 16", b.maxConcurrent)
		}
		if b.maxQueue != 64 {
			t.Errorf("maxQueue = %v, want 64", b.maxQueue)
		}
	})
}

func TestBulkhead_LimitsConcurrency(t *testing.T) {
	b := NewBulkhead(config.BulkheadConfig{
		MaxConcurrent:  2,
		MaxQueue:       10,
		AcquireTimeout: config.Duration(time.Second),
	})

	var active, peak atomic.Int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Do(context.Background(), func(ctx context.Context) error {
				n := active.Add(1)
				mu.Lock()
				if n > peak.Load() {
					peak.Store(n)
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
	if got := b.Stats().TotalExecuted; got != 8 {
		t.Errorf("TotalExecuted = %d, want 8", got)
	}
}

func TestBulkhead_RejectsWhenQueueFull(t *testing.T) {
	b := NewBulkhead(config.BulkheadConfig{
		MaxConcurrent:  1,
		MaxQueue:       1,
		AcquireTimeout: config.Duration(time.Second),
	})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	queued := make(chan error, 1)
	go func() {
		queued <- b.Do(context.Background(), func(ctx context.Context) error { return nil })
	}()

	deadline := time.Now().Add(time.Second)
	for b.Stats().Queued == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	err := b.Do(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("error = %v, want ErrBulkheadFull", err)
	}

	close(release)
	if err := <-queued; err != nil {
		t.Errorf("queued call error = %v", err)
	}
	if b.Stats().TotalRejected != 1 {
		t.Errorf("TotalRejected = %d, want 1", b.Stats().TotalRejected)
	}
}

func TestBulkhead_AcquireTimeout(t *testing.T) {
	b := NewBulkhead(config.BulkheadConfig{
		MaxConcurrent:  1,
		MaxQueue:       5,
		AcquireTimeout: config.Duration(10 * time.Millisecond),
	})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	err := b.Do(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("error = %v, want ErrBulkheadTimeout", err)
	}
	if !IsBulkheadError(err) {
		t.Error("IsBulkheadError() = false")
	}
}

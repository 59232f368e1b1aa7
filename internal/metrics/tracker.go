// Package metrics provides image cache metrics collection and publishing.
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

const (
	defaultLatencyBufferSize = 10000
)

// Tracker counts cache events locally and, when a publisher is attached,
// forwards each event to it as a counter or timing.
type Tracker struct {
	publisher types.Publisher

	hits   atomic.Int64
	misses atomic.Int64

	produced         atomic.Int64
	producedBytes    atomic.Int64
	refreshed        atomic.Int64
	refreshUnchanged atomic.Int64
	evictions        atomic.Int64
	evictedBytes     atomic.Int64
	rejections       atomic.Int64
	errorCount       atomic.Int64
	cbStateChanges   atomic.Int64

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int
}

// NewTracker creates a tracker. publisher may be nil.
func NewTracker(publisher types.Publisher) *Tracker {
	return &Tracker{
		publisher:     publisher,
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
	}
}

func (t *Tracker) RecordHit(key string, latency time.Duration) {
	t.hits.Add(1)
	t.recordLatency(latency)
	if t.publisher != nil {
		t.publisher.Incr("cache.lookup", StatusTag("hit"))
		t.publisher.Timing("cache.lookup.latency", latency, StatusTag("hit"))
	}
}

func (t *Tracker) RecordMiss(key string, latency time.Duration) {
	t.misses.Add(1)
	t.recordLatency(latency)
	if t.publisher != nil {
		t.publisher.Incr("cache.lookup", StatusTag("miss"))
		t.publisher.Timing("cache.lookup.latency", latency, StatusTag("miss"))
	}
}

func (t *Tracker) RecordProduce(key string, size int, latency time.Duration) {
	t.produced.Add(1)
	t.producedBytes.Add(int64(size))
	if t.publisher != nil {
		t.publisher.Incr("artifact.produced")
		t.publisher.Histogram("artifact.size_bytes", float64(size))
		t.publisher.Timing("artifact.produce.latency", latency)
	}
}

func (t *Tracker) RecordRefresh(key string, changed bool) {
	if changed {
		t.refreshed.Add(1)
	} else {
		t.refreshUnchanged.Add(1)
	}
	if t.publisher != nil {
		status := "unchanged"
		if changed {
			status = "changed"
		}
		t.publisher.Incr("artifact.refreshed", StatusTag(status))
	}
}

func (t *Tracker) RecordEviction(key string, size int) {
	t.evictions.Add(1)
	t.evictedBytes.Add(int64(size))
	if t.publisher != nil {
		t.publisher.Incr("cache.evictions")
		t.publisher.Count("cache.evicted_bytes", int64(size))
	}
}

func (t *Tracker) RecordRejection(queue string, reason types.Admission) {
	t.rejections.Add(1)
	if t.publisher != nil {
		t.publisher.Incr("queue.rejected", QueueTag(queue), ReasonTag(reason.String()))
	}
}

func (t *Tracker) RecordError(stage string, operation string, err error) {
	t.errorCount.Add(1)
	if t.publisher != nil {
		t.publisher.Incr("errors", StageTag(stage), OperationTag(operation))
	}
}

func (t *Tracker) RecordCircuitBreakerStateChange(from, to string) {
	t.cbStateChanges.Add(1)
	if t.publisher != nil {
		t.publisher.Event("Circuit breaker state changed", from+" -> "+to, alertTypeFor(to), CircuitStateTag(to))
	}
}

func alertTypeFor(state string) string {
	if state == "open" {
		return "warning"
	}
	return "info"
}

// recordLatency writes into a fixed ring buffer without allocating.
func (t *Tracker) recordLatency(latency time.Duration) {
	t.latencyMu.Lock()
	t.latencyBuffer[t.latencyIndex] = latency
	t.latencyIndex = (t.latencyIndex + 1) % len(t.latencyBuffer)
	if t.latencyCount < len(t.latencyBuffer) {
		t.latencyCount++
	}
	t.latencyMu.Unlock()
}

func (t *Tracker) Snapshot() types.MetricsSnapshot {
	t.latencyMu.RLock()
	count := t.latencyCount
	latencyCopy := make([]time.Duration, count)
	if count > 0 {
		if count < len(t.latencyBuffer) {
			copy(latencyCopy, t.latencyBuffer[:count])
		} else {
			// oldest sample sits at latencyIndex
			firstPart := len(t.latencyBuffer) - t.latencyIndex
			copy(latencyCopy[:firstPart], t.latencyBuffer[t.latencyIndex:])
			copy(latencyCopy[firstPart:], t.latencyBuffer[:t.latencyIndex])
		}
	}
	t.latencyMu.RUnlock()

	snapshot := types.MetricsSnapshot{
		Timestamp:             time.Now(),
		Hits:                  t.hits.Load(),
		Misses:                t.misses.Load(),
		Produced:              t.produced.Load(),
		ProducedBytes:         t.producedBytes.Load(),
		Refreshed:             t.refreshed.Load(),
		RefreshUnchanged:      t.refreshUnchanged.Load(),
		Evictions:             t.evictions.Load(),
		EvictedBytes:          t.evictedBytes.Load(),
		Rejections:            t.rejections.Load(),
		ErrorCount:            t.errorCount.Load(),
		CircuitBreakerChanges: t.cbStateChanges.Load(),
	}

	if len(latencyCopy) > 0 {
		snapshot.AvgLatencyMs = durationMs(avgDuration(latencyCopy))
		slices.Sort(latencyCopy)
		snapshot.P50LatencyMs = durationMs(percentile(latencyCopy, 50))
		snapshot.P95LatencyMs = durationMs(percentile(latencyCopy, 95))
		snapshot.P99LatencyMs = durationMs(percentile(latencyCopy, 99))
	}

	return snapshot
}

func (t *Tracker) Reset() {
	t.hits.Store(0)
	t.misses.Store(0)
	t.produced.Store(0)
	t.producedBytes.Store(0)
	t.refreshed.Store(0)
	t.refreshUnchanged.Store(0)
	t.evictions.Store(0)
	t.evictedBytes.Store(0)
	t.rejections.Store(0)
	t.errorCount.Store(0)
	t.cbStateChanges.Store(0)

	t.latencyMu.Lock()
	t.latencyIndex = 0
	t.latencyCount = 0
	t.latencyMu.Unlock()
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func avgDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

var _ types.MetricsRecorder = (*Tracker)(nil)

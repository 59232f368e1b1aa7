package metrics

import (
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

// NoOpTracker discards every event. Used when metrics are disabled.
type NoOpTracker struct{}

func NewNoOpTracker() *NoOpTracker {
	return &NoOpTracker{}
}

func (t *NoOpTracker) RecordHit(key string, latency time.Duration)               {}
func (t *NoOpTracker) RecordMiss(key string, latency time.Duration)              {}
func (t *NoOpTracker) RecordProduce(key string, size int, latency time.Duration) {}
func (t *NoOpTracker) RecordRefresh(key string, changed bool)                    {}
func (t *NoOpTracker) RecordEviction(key string, size int)                       {}
func (t *NoOpTracker) RecordRejection(queue string, reason types.Admission)      {}
func (t *NoOpTracker) RecordError(stage string, operation string, err error)     {}
func (t *NoOpTracker) RecordCircuitBreakerStateChange(from, to string)           {}
func (t *NoOpTracker) Snapshot() types.MetricsSnapshot                           { return types.MetricsSnapshot{} }
func (t *NoOpTracker) Reset()                                                    {}

// NoOpPublisher is a publisher for tests or when no sink is configured.
type NoOpPublisher struct{}

func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (p *NoOpPublisher) Gauge(name string, value float64, tags ...string)                 {}
func (p *NoOpPublisher) Incr(name string, tags ...string)                                 {}
func (p *NoOpPublisher) Count(name string, value int64, tags ...string)                   {}
func (p *NoOpPublisher) Histogram(name string, value float64, tags ...string)             {}
func (p *NoOpPublisher) Timing(name string, duration time.Duration, tags ...string)       {}
func (p *NoOpPublisher) Event(title, text, alertType string, tags ...string)              {}
func (p *NoOpPublisher) PublishHealthMetrics(metrics *types.PublisherHealthMetrics)       {}
func (p *NoOpPublisher) Close() error                                                     { return nil }

var _ types.MetricsRecorder = (*NoOpTracker)(nil)
var _ types.Publisher = (*NoOpPublisher)(nil)

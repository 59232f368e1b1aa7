package types

import "time"

// HealthStatus represents the overall health state.
type HealthStatus int

const (
	// HealthStatusHealthy indicates all systems operating normally.
	HealthStatusHealthy HealthStatus = iota + 1
	// HealthStatusDegraded indicates partial functionality (e.g., the main queue is saturated).
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates the blob store is unreachable.
	HealthStatusUnhealthy
)

// String returns the string representation of health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MetricsSnapshot contains a point-in-time view of cache metrics.
//
//nolint:govet // Metrics struct with many counters - grouping by category improves readability
type MetricsSnapshot struct {
	Timestamp time.Time
	// Lookup counters
	Hits   int64
	Misses int64

	// Pipeline counters
	Produced         int64
	ProducedBytes    int64
	Refreshed        int64
	RefreshUnchanged int64
	Evictions        int64
	EvictedBytes     int64
	Rejections       int64
	ErrorCount       int64

	// Latency metrics (milliseconds)
	AvgLatencyMs float64
	P50LatencyMs float64
	P95LatencyMs float64
	P99LatencyMs float64

	CircuitBreakerChanges int64
}

// HitRatio calculates the artifact hit ratio.
func (s *MetricsSnapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Publisher ships metrics to an external sink.
type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Histogram(name string, value float64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Event(title, text string, alertType string, tags ...string)
	PublishHealthMetrics(metrics *PublisherHealthMetrics)
	Close() error
}

// PublisherHealthMetrics is the periodic gauge set emitted by a Publisher.
//
//nolint:govet // Metrics struct - logical grouping prioritized for readability
type PublisherHealthMetrics struct {
	CacheUsedBytes       int64
	CacheLimitBytes      int64
	CacheUsagePercentage float64
	TotalEntries         int64
	SizeCacheEntries     int64
	HitRatio             float64
	AverageLatencyMs     float64
	MainQueueLength      int
	RefreshQueueLength   int
	StoreAvailable       bool
}

package metrics

import (
	"log/slog"
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

// LoggingPublisher writes metrics to slog. Point metrics go to Debug,
// periodic health batches and events to Info.
type LoggingPublisher struct {
	logger   *slog.Logger
	baseTags []string
}

func NewLoggingPublisher(logger *slog.Logger, baseTags ...string) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{
		logger:   logger.With("component", "metrics"),
		baseTags: baseTags,
	}
}

func (p *LoggingPublisher) Gauge(name string, value float64, tags ...string) {
	p.logger.Debug("gauge", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Incr(name string, tags ...string) {
	p.logger.Debug("incr", "name", name, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Count(name string, value int64, tags ...string) {
	p.logger.Debug("count", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Histogram(name string, value float64, tags ...string) {
	p.logger.Debug("histogram", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Timing(name string, duration time.Duration, tags ...string) {
	p.logger.Debug("timing", "name", name, "duration_ms", duration.Milliseconds(), "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Event(title, text, alertType string, tags ...string) {
	p.logger.Info("event",
		"title", title,
		"text", text,
		"alert_type", alertType,
		"tags", p.mergeTags(tags),
	)
}

func (p *LoggingPublisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	if m == nil {
		return
	}

	p.logger.Info("health_metrics",
		"cache_used_bytes", m.CacheUsedBytes,
		"cache_limit_bytes", m.CacheLimitBytes,
		"cache_usage_pct", m.CacheUsagePercentage,
		"total_entries", m.TotalEntries,
		"size_cache_entries", m.SizeCacheEntries,
		"hit_ratio", m.HitRatio,
		"avg_latency_ms", m.AverageLatencyMs,
		"main_queue_length", m.MainQueueLength,
		"refresh_queue_length", m.RefreshQueueLength,
		"store_available", m.StoreAvailable,
	)
}

func (p *LoggingPublisher) Close() error {
	return nil
}

func (p *LoggingPublisher) mergeTags(tags []string) []string {
	if len(tags) == 0 {
		return p.baseTags
	}
	if len(p.baseTags) == 0 {
		return tags
	}
	merged := make([]string, 0, len(p.baseTags)+len(tags))
	merged = append(merged, p.baseTags...)
	return append(merged, tags...)
}

var _ types.Publisher = (*LoggingPublisher)(nil)

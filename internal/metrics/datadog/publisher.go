// Package datadog provides a DataDog StatsD metrics publisher.
package datadog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/metrics"
	"github.com/LavishGent/imgcache/internal/types"
)

// statsdClient is the subset of statsd.ClientInterface the publisher uses.
type statsdClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Event(e *statsd.Event) error
	Close() error
}

// Publisher implements types.Publisher using the DataDog StatsD client.
//
//nolint:govet // Small struct - minimal alignment benefit
type Publisher struct {
	baseTags []string
	client   statsdClient
	logger   *slog.Logger
}

// NewPublisher creates a DataDog publisher from config.
// If DataDog is not enabled, returns a no-op publisher instead.
func NewPublisher(cfg *config.DataDogConfig, logger *slog.Logger) (types.Publisher, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpPublisher(), nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	addr := fmt.Sprintf("%s:%d", cfg.AgentHost, cfg.Port)

	client, err := statsd.New(addr,
		statsd.WithNamespace(cfg.Prefix+"."),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}

	logger.Info("DataDog publisher initialized",
		"address", addr,
		"prefix", cfg.Prefix,
		"tags", cfg.Tags,
	)

	return newPublisher(client, nil, logger), nil
}

func newPublisher(client statsdClient, baseTags []string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:   client,
		baseTags: baseTags,
		logger:   logger.With("component", "datadog"),
	}
}

func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	if err := p.client.Gauge(name, value, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send gauge metric", "name", name, "error", err)
	}
}

func (p *Publisher) Incr(name string, tags ...string) {
	if err := p.client.Incr(name, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send incr metric", "name", name, "error", err)
	}
}

func (p *Publisher) Count(name string, value int64, tags ...string) {
	if err := p.client.Count(name, value, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send count metric", "name", name, "error", err)
	}
}

func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	if err := p.client.Histogram(name, value, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send histogram metric", "name", name, "error", err)
	}
}

func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	if err := p.client.Timing(name, duration, p.mergeTags(tags), 1); err != nil {
		p.logger.Debug("Failed to send timing metric", "name", name, "error", err)
	}
}

func (p *Publisher) Event(title, text, alertType string, tags ...string) {
	event := &statsd.Event{
		Title:     title,
		Text:      text,
		AlertType: statsd.EventAlertType(alertType),
		Tags:      p.mergeTags(tags),
	}
	if err := p.client.Event(event); err != nil {
		p.logger.Debug("Failed to send event", "title", title, "error", err)
	}
}

// PublishHealthMetrics emits the periodic gauge set.
func (p *Publisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	if m == nil {
		return
	}

	p.Gauge("cache.used_bytes", float64(m.CacheUsedBytes))
	p.Gauge("cache.limit_bytes", float64(m.CacheLimitBytes))
	p.Gauge("cache.usage_percentage", clamp(m.CacheUsagePercentage, 0, 100))
	p.Gauge("cache.entries", float64(m.TotalEntries))
	p.Gauge("size_cache.entries", float64(m.SizeCacheEntries))
	p.Gauge("performance.hit_ratio", clamp(m.HitRatio, 0, 1))
	p.Gauge("performance.average_latency_ms", max(0, m.AverageLatencyMs))
	p.Gauge("queue.length", float64(m.MainQueueLength), metrics.QueueTag("main"))
	p.Gauge("queue.length", float64(m.RefreshQueueLength), metrics.QueueTag("refresh"))

	available := 0.0
	if m.StoreAvailable {
		available = 1.0
	}
	p.Gauge("store.available", available)
}

func (p *Publisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *Publisher) mergeTags(tags []string) []string {
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

func clamp(val, minVal, maxVal float64) float64 {
	return min(max(val, minVal), maxVal)
}

var _ types.Publisher = (*Publisher)(nil)

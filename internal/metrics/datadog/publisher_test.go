package datadog

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/metrics"
	"github.com/LavishGent/imgcache/internal/types"
)

type gaugeCall struct {
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	mu     sync.Mutex
	gauges []gaugeCall
	events []*statsd.Event
	err    error
	closed bool
}

func (c *fakeClient) Gauge(name string, value float64, tags []string, _ float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges = append(c.gauges, gaugeCall{name: name, value: value, tags: tags})
	return c.err
}

func (c *fakeClient) Incr(string, []string, float64) error                   { return c.err }
func (c *fakeClient) Count(string, int64, []string, float64) error           { return c.err }
func (c *fakeClient) Histogram(string, float64, []string, float64) error     { return c.err }
func (c *fakeClient) Timing(string, time.Duration, []string, float64) error  { return c.err }

func (c *fakeClient) Event(e *statsd.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func (c *fakeClient) gauge(name string, tag string) (float64, bool) {
	for _, g := range c.gauges {
		if g.name != name {
			continue
		}
		if tag == "" {
			return g.value, true
		}
		for _, t := range g.tags {
			if t == tag {
				return g.value, true
			}
		}
	}
	return 0, false
}

func TestNewPublisherDisabled(t *testing.T) {
	p, err := NewPublisher(&config.DataDogConfig{Enabled: false}, nil)
	require.NoError(t, err)
	_, ok := p.(*metrics.NoOpPublisher)
	assert.True(t, ok, "disabled config should yield a no-op publisher")
}

func TestPublishHealthMetrics(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, []string{"env:test"}, nil)

	p.PublishHealthMetrics(&types.PublisherHealthMetrics{
		CacheUsedBytes:       512,
		CacheLimitBytes:      1024,
		CacheUsagePercentage: 150,
		TotalEntries:         4,
		SizeCacheEntries:     2,
		HitRatio:             0.5,
		AverageLatencyMs:     -1,
		MainQueueLength:      3,
		RefreshQueueLength:   1,
		StoreAvailable:       true,
	})

	v, ok := client.gauge("cache.used_bytes", "")
	require.True(t, ok)
	assert.Equal(t, 512.0, v)

	v, _ = client.gauge("cache.usage_percentage", "")
	assert.Equal(t, 100.0, v, "usage percentage is clamped")

	v, _ = client.gauge("performance.average_latency_ms", "")
	assert.Equal(t, 0.0, v, "negative latency is clamped")

	v, _ = client.gauge("queue.length", "queue:main")
	assert.Equal(t, 3.0, v)
	v, _ = client.gauge("queue.length", "queue:refresh")
	assert.Equal(t, 1.0, v)

	v, _ = client.gauge("store.available", "")
	assert.Equal(t, 1.0, v)

	for _, g := range client.gauges {
		assert.Contains(t, g.tags, "env:test")
	}
}

func TestPublishHealthMetricsNil(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, nil, nil)
	p.PublishHealthMetrics(nil)
	assert.Empty(t, client.gauges)
}

func TestClientErrorsAreSwallowed(t *testing.T) {
	client := &fakeClient{err: errors.New("agent down")}
	p := newPublisher(client, nil, nil)

	assert.NotPanics(t, func() {
		p.Gauge("g", 1)
		p.Incr("i")
		p.Count("c", 1)
		p.Histogram("h", 1)
		p.Timing("t", time.Millisecond)
		p.Event("title", "text", "warning")
	})
	require.Len(t, client.events, 1)
	assert.Equal(t, statsd.EventAlertType("warning"), client.events[0].AlertType)
}

func TestClose(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, nil, nil)
	require.NoError(t, p.Close())
	assert.True(t, client.closed)
}

package imgcache

import (
	"github.com/LavishGent/imgcache/internal/types"
)

type (
	// HealthStatus represents the overall health state.
	HealthStatus = types.HealthStatus
	// PublisherHealthMetrics is the gauge set handed to metrics publishers.
	PublisherHealthMetrics = types.PublisherHealthMetrics
	// MetricsSnapshot contains a point-in-time view of cache metrics.
	MetricsSnapshot = types.MetricsSnapshot
)

const (
	HealthStatusHealthy   = types.HealthStatusHealthy
	HealthStatusDegraded  = types.HealthStatusDegraded
	HealthStatusUnhealthy = types.HealthStatusUnhealthy
)

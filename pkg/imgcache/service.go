package imgcache

import (
	"context"

	"github.com/LavishGent/imgcache/internal/cache"
)

// Service serves transformed images from a size-bounded cache.
type Service interface {
	// Get returns the artifact for url rendered with s. On a cold cache it
	// returns the untransformed source bytes and produces the artifact in
	// the background.
	Get(ctx context.Context, url string, s Settings) ([]byte, error)
	// GetSize returns the natural dimensions of the source image.
	GetSize(ctx context.Context, url string) (Dimensions, error)
	DebugInfo() DebugInfo
	Health() HealthStatus
	HealthMetrics() *PublisherHealthMetrics
	// Close drains in-flight work, clears the cache and releases resources.
	Close() error
}

type service struct {
	manager *cache.Manager
}

func (s *service) Get(ctx context.Context, url string, settings Settings) ([]byte, error) {
	return s.manager.Get(ctx, url, settings)
}

func (s *service) GetSize(ctx context.Context, url string) (Dimensions, error) {
	return s.manager.GetSize(ctx, url)
}

func (s *service) DebugInfo() DebugInfo {
	return s.manager.DebugInfo()
}

func (s *service) Health() HealthStatus {
	return s.manager.Health()
}

func (s *service) HealthMetrics() *PublisherHealthMetrics {
	return s.manager.HealthMetrics()
}

func (s *service) Close() error {
	return s.manager.Destroy(context.Background())
}

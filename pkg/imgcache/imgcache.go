package imgcache

import (
	"context"
	"fmt"

	"github.com/LavishGent/imgcache/internal/cache"
	"github.com/LavishGent/imgcache/internal/config"
)

// New creates an initialized cache service with default configuration.
func New(opts ...Option) (Service, error) {
	return NewFromConfig(config.DefaultConfig(), opts...)
}

// NewFromConfig creates an initialized cache service from cfg.
// The blob store is cleared on start; every process begins with an empty cache.
func NewFromConfig(cfg *config.Config, opts ...Option) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	managerOpts := &ManagerOptions{}
	for _, opt := range opts {
		opt(managerOpts)
	}

	m, err := cache.NewManager(cfg, managerOpts)
	if err != nil {
		return nil, err
	}
	if err := m.Init(context.Background()); err != nil {
		_ = m.Destroy(context.Background())
		return nil, err
	}
	return &service{manager: m}, nil
}

// NewFromFile creates a cache service from a JSON config file with
// IMGCACHE_* environment overrides applied.
func NewFromFile(path string, opts ...Option) (Service, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// Config returns a default configuration that can be modified before creating a service.
func Config() *config.Config {
	return config.DefaultConfig()
}

// TestConfig returns a configuration suitable for unit tests.
func TestConfig() *config.Config {
	return config.ForTesting()
}

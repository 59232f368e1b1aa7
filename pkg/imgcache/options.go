package imgcache

import (
	"github.com/LavishGent/imgcache/internal/types"
)

type ManagerOptions = types.ManagerOptions

type Option func(*ManagerOptions)

func WithLogger(logger Logger) Option {
	return func(o *ManagerOptions) {
		o.Logger = logger
	}
}

func WithMetrics(metrics MetricsRecorder) Option {
	return func(o *ManagerOptions) {
		o.Metrics = metrics
	}
}

// WithSource replaces the built-in HTTP and local file fetcher.
func WithSource(source SourceProvider) Option {
	return func(o *ManagerOptions) {
		o.Source = source
	}
}

func WithTransformer(transformer Transformer) Option {
	return func(o *ManagerOptions) {
		o.Transformer = transformer
	}
}

// WithStore replaces the blob store selected by cache.storage.
func WithStore(store BlobStore) Option {
	return func(o *ManagerOptions) {
		o.Store = store
	}
}

func WithRedisAddress(addr string) Option {
	return func(o *ManagerOptions) {
		o.RedisAddress = addr
	}
}

func WithRedisPassword(password string) Option {
	return func(o *ManagerOptions) {
		o.RedisPassword = types.NewSecretString(password)
	}
}

func WithoutResilience() Option {
	return func(o *ManagerOptions) {
		o.DisableResilience = true
	}
}

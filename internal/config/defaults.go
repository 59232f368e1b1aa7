package config

import "time"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxSize:      20 * Megabyte,
			Storage:      StorageMemory,
			QueueSize:    1000,
			QueueTimeout: Duration(5 * time.Second),
		},
		AutoRefresh: AutoRefreshConfig{
			MaxAge:       Duration(30 * time.Minute),
			QueueSize:    10,
			QueueTimeout: Duration(5 * time.Second),
		},
		Maintenance: MaintenanceConfig{
			Interval: Duration(time.Second),
		},
		SizeCache: SizeCacheConfig{
			MaxCount: 1000,
		},
		Format: FormatConfig{
			Format:  "webp",
			Quality: 80,
			Width:   8192,
			Height:  8192,
		},
		Domains: []string{"all"},
		Fetch: FetchConfig{
			Timeout:       Duration(10 * time.Second),
			CacheTTL:      Duration(5 * time.Second),
			MaxSourceSize: 32 * Megabyte,
			MaxPixels:     50_000_000,
			LocalRoot:     "public",
			UserAgent:     "imgcache/1.0",
		},
		Memory: MemoryConfig{
			Shards: 64,
		},
		Redis: RedisConfig{
			Address:             "localhost:6379",
			Password:            SecretString{},
			DB:                  0,
			KeyPrefix:           "imgcache:",
			PoolSize:            20,
			MinIdleConns:        2,
			DialTimeout:         Duration(5 * time.Second),
			ReadTimeout:         Duration(3 * time.Second),
			WriteTimeout:        Duration(3 * time.Second),
			PoolTimeout:         Duration(4 * time.Second),
			EnableTLS:           false,
			TLSSkipVerify:       false,
			HealthCheckInterval: Duration(5 * time.Second),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             true,
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenDuration:        Duration(30 * time.Second),
			HalfOpenMaxRequests: 3,
		},
		Retry: RetryConfig{
			Enabled:        true,
			MaxAttempts:    3,
			InitialBackoff: Duration(100 * time.Millisecond),
			MaxBackoff:     Duration(2 * time.Second),
			Multiplier:     2.0,
			Jitter:         true,
		},
		Bulkhead: BulkheadConfig{
			Enabled:        true,
			MaxConcurrent:  16,
			MaxQueue:       64,
			AcquireTimeout: Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			PublishInterval: Duration(10 * time.Second),
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "imgcache",
				Tags:      []string{},
			},
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
	}
}

// ForTesting returns a small, fast configuration suitable for unit tests.
func ForTesting() *Config {
	cfg := DefaultConfig()
	cfg.Cache.MaxSize = 64 * Kilobyte
	cfg.Cache.QueueSize = 16
	cfg.Cache.QueueTimeout = 0
	cfg.AutoRefresh.MaxAge = Duration(time.Minute)
	cfg.AutoRefresh.QueueSize = 16
	cfg.AutoRefresh.QueueTimeout = 0
	cfg.Maintenance.Interval = Duration(time.Hour)
	cfg.SizeCache.MaxCount = 8
	cfg.Format = FormatConfig{Format: "png", Quality: 80, Width: 64, Height: 64}
	cfg.Fetch.Timeout = Duration(time.Second)
	cfg.Fetch.LocalRoot = ""
	cfg.Memory.Shards = 8
	cfg.Redis.KeyPrefix = "imgcache:test:"
	cfg.Redis.PoolSize = 5
	cfg.Redis.MinIdleConns = 1
	cfg.Redis.DialTimeout = Duration(time.Second)
	cfg.Redis.ReadTimeout = Duration(time.Second)
	cfg.Redis.WriteTimeout = Duration(time.Second)
	cfg.Redis.PoolTimeout = Duration(time.Second)
	cfg.Redis.HealthCheckInterval = 0
	cfg.CircuitBreaker.Enabled = false
	cfg.Retry.Enabled = false
	cfg.Retry.MaxAttempts = 1
	cfg.Bulkhead.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Metrics.PublishInterval = Duration(time.Second)
	return cfg
}

// ForTestingWithRedis returns a test config backed by Redis.
func ForTestingWithRedis(addr string) *Config {
	cfg := ForTesting()
	cfg.Cache.Storage = StorageRedis
	cfg.Redis.Address = addr
	return cfg
}

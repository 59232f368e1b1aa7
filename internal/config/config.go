// Package config provides configuration management for imgcache.
package config

import (
	"github.com/LavishGent/imgcache/internal/types"
)

// SecretString is a string type that redacts its value when marshaled to JSON.
type SecretString = types.SecretString

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config contains all configuration for the image cache service.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Cache          CacheConfig          `json:"cache"`
	AutoRefresh    AutoRefreshConfig    `json:"autoRefresh"`
	Maintenance    MaintenanceConfig    `json:"maintenance"`
	SizeCache      SizeCacheConfig      `json:"sizeCache"`
	Format         FormatConfig         `json:"format"`
	Domains        []string             `json:"domains"`
	Fetch          FetchConfig          `json:"fetch"`
	Memory         MemoryConfig         `json:"memory"`
	Redis          RedisConfig          `json:"redis"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker"`
	Retry          RetryConfig          `json:"retry"`
	Bulkhead       BulkheadConfig       `json:"bulkhead"`
	Metrics        MetricsConfig        `json:"metrics"`
	Server         ServerConfig         `json:"server"`
}

// CacheConfig bounds the artifact cache and its foreground production queue.
type CacheConfig struct {
	MaxSize      ByteSize `json:"maxSize"`
	Storage      string   `json:"storage"`
	QueueSize    int      `json:"queueSize"`
	QueueTimeout Duration `json:"queueTimeout"`
}

// AutoRefreshConfig controls background re-fetching of stale artifacts.
type AutoRefreshConfig struct {
	MaxAge       Duration `json:"maxAge"`
	QueueSize    int      `json:"queueSize"`
	QueueTimeout Duration `json:"queueTimeout"`
}

type MaintenanceConfig struct {
	Interval Duration `json:"interval"`
}

type SizeCacheConfig struct {
	MaxCount int `json:"maxCount"`
}

// FormatConfig holds the transform settings used when a request omits them.
type FormatConfig struct {
	Format  string `json:"format"`
	Quality int    `json:"quality"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Settings converts the defaults to transform settings.
func (f FormatConfig) Settings() types.Settings {
	format, err := types.ParseFormat(f.Format)
	if err != nil {
		format = types.FormatWebP
	}
	return types.Settings{
		Format:  format,
		Quality: f.Quality,
		Width:   f.Width,
		Height:  f.Height,
	}
}

// FetchConfig configures the source fetcher.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type FetchConfig struct {
	Timeout       Duration `json:"timeout"`
	CacheTTL      Duration `json:"cacheTTL"`
	MaxSourceSize ByteSize `json:"maxSourceSize"`
	MaxPixels     int      `json:"maxPixels"`
	LocalRoot     string   `json:"localRoot"`
	UserAgent     string   `json:"userAgent"`
}

// MemoryConfig tunes the in-memory blob store.
type MemoryConfig struct {
	Shards int `json:"shards"`
}

// RedisConfig contains configuration for the Redis blob store.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	DialTimeout         Duration     `json:"dialTimeout"`
	ReadTimeout         Duration     `json:"readTimeout"`
	WriteTimeout        Duration     `json:"writeTimeout"`
	PoolTimeout         Duration     `json:"poolTimeout"`
	HealthCheckInterval Duration     `json:"healthCheckInterval"`
	Password            SecretString `json:"password"`
	Address             string       `json:"address"`
	KeyPrefix           string       `json:"keyPrefix"`
	DB                  int          `json:"db"`
	PoolSize            int          `json:"poolSize"`
	MinIdleConns        int          `json:"minIdleConns"`
	EnableTLS           bool         `json:"enableTLS"`
	TLSSkipVerify       bool         `json:"tlsSkipVerify"`
}

// CircuitBreakerConfig contains configuration for the circuit breaker pattern.
type CircuitBreakerConfig struct {
	Enabled             bool     `json:"enabled"`
	FailureThreshold    int      `json:"failureThreshold"`
	SuccessThreshold    int      `json:"successThreshold"`
	OpenDuration        Duration `json:"openDuration"`
	HalfOpenMaxRequests int      `json:"halfOpenMaxRequests"`
}

// RetryConfig contains configuration for the retry pattern.
type RetryConfig struct {
	InitialBackoff Duration `json:"initialBackoff"`
	MaxBackoff     Duration `json:"maxBackoff"`
	Multiplier     float64  `json:"multiplier"`
	MaxAttempts    int      `json:"maxAttempts"`
	Enabled        bool     `json:"enabled"`
	Jitter         bool     `json:"jitter"`
}

// BulkheadConfig contains configuration for the bulkhead pattern.
type BulkheadConfig struct {
	Enabled        bool     `json:"enabled"`
	MaxConcurrent  int      `json:"maxConcurrent"`
	MaxQueue       int      `json:"maxQueue"`
	AcquireTimeout Duration `json:"acquireTimeout"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	PublishInterval Duration      `json:"publishInterval"`
	DataDog         DataDogConfig `json:"datadog"`
	Enabled         bool          `json:"enabled"`
}

// DataDogConfig contains configuration for DataDog metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags"`
	AgentHost string   `json:"agentHost"`
	Prefix    string   `json:"prefix"`
	Port      int      `json:"port"`
	Enabled   bool     `json:"enabled"`
}

// ServerConfig configures the HTTP front end in cmd/imgcache.
type ServerConfig struct {
	Address         string   `json:"address"`
	ReadTimeout     Duration `json:"readTimeout"`
	WriteTimeout    Duration `json:"writeTimeout"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
}

// Summary is the redacted view of the config reported by debug info.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"maxSize":             c.Cache.MaxSize.String(),
		"storage":             c.Cache.Storage,
		"queueSize":           c.Cache.QueueSize,
		"queueTimeout":        c.Cache.QueueTimeout.String(),
		"autoRefreshMaxAge":   c.AutoRefresh.MaxAge.String(),
		"autoRefreshQueue":    c.AutoRefresh.QueueSize,
		"autoRefreshTimeout":  c.AutoRefresh.QueueTimeout.String(),
		"maintenanceInterval": c.Maintenance.Interval.String(),
		"sizeCacheMaxCount":   c.SizeCache.MaxCount,
		"format":              c.Format,
		"domains":             c.Domains,
	}
}

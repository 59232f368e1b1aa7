package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

// Load loads configuration from a JSON file.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv loads configuration from a JSON file and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

//nolint:gocyclo // Environment variable parsing requires many conditional checks
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IMGCACHE_CACHE_MAX_SIZE"); v != "" {
		cfg.Cache.MaxSize = parseSize(v, cfg.Cache.MaxSize)
	}
	if v := os.Getenv("IMGCACHE_CACHE_STORAGE"); v != "" {
		cfg.Cache.Storage = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("IMGCACHE_CACHE_QUEUE_SIZE"); v != "" {
		cfg.Cache.QueueSize = parseInt(v, cfg.Cache.QueueSize)
	}
	if v := os.Getenv("IMGCACHE_CACHE_QUEUE_TIMEOUT"); v != "" {
		cfg.Cache.QueueTimeout = parseDuration(v, cfg.Cache.QueueTimeout)
	}

	if v := os.Getenv("IMGCACHE_AUTO_REFRESH_MAX_AGE"); v != "" {
		cfg.AutoRefresh.MaxAge = parseDuration(v, cfg.AutoRefresh.MaxAge)
	}
	if v := os.Getenv("IMGCACHE_AUTO_REFRESH_QUEUE_SIZE"); v != "" {
		cfg.AutoRefresh.QueueSize = parseInt(v, cfg.AutoRefresh.QueueSize)
	}
	if v := os.Getenv("IMGCACHE_AUTO_REFRESH_QUEUE_TIMEOUT"); v != "" {
		cfg.AutoRefresh.QueueTimeout = parseDuration(v, cfg.AutoRefresh.QueueTimeout)
	}
	if v := os.Getenv("IMGCACHE_MAINTENANCE_INTERVAL"); v != "" {
		cfg.Maintenance.Interval = parseDuration(v, cfg.Maintenance.Interval)
	}

	if v := os.Getenv("IMGCACHE_DOMAINS"); v != "" {
		cfg.Domains = splitList(v)
	}
	if v := os.Getenv("IMGCACHE_FORMAT"); v != "" {
		cfg.Format.Format = v
	}
	if v := os.Getenv("IMGCACHE_FORMAT_QUALITY"); v != "" {
		cfg.Format.Quality = parseInt(v, cfg.Format.Quality)
	}

	if v := os.Getenv("IMGCACHE_FETCH_TIMEOUT"); v != "" {
		cfg.Fetch.Timeout = parseDuration(v, cfg.Fetch.Timeout)
	}
	if v := os.Getenv("IMGCACHE_FETCH_CACHE_TTL"); v != "" {
		cfg.Fetch.CacheTTL = parseDuration(v, cfg.Fetch.CacheTTL)
	}
	if v := os.Getenv("IMGCACHE_FETCH_MAX_PIXELS"); v != "" {
		cfg.Fetch.MaxPixels = parseInt(v, cfg.Fetch.MaxPixels)
	}
	if v := os.Getenv("IMGCACHE_FETCH_LOCAL_ROOT"); v != "" {
		cfg.Fetch.LocalRoot = v
	}

	if v := os.Getenv("IMGCACHE_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("IMGCACHE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = NewSecretString(v)
	}
	if v := os.Getenv("IMGCACHE_REDIS_DB"); v != "" {
		cfg.Redis.DB = parseInt(v, cfg.Redis.DB)
	}
	if v := os.Getenv("IMGCACHE_REDIS_KEY_PREFIX"); v != "" {
		cfg.Redis.KeyPrefix = v
	}
	if v := os.Getenv("IMGCACHE_REDIS_POOL_SIZE"); v != "" {
		cfg.Redis.PoolSize = parseInt(v, cfg.Redis.PoolSize)
	}
	if v := os.Getenv("IMGCACHE_REDIS_ENABLE_TLS"); v != "" {
		cfg.Redis.EnableTLS = parseBool(v)
	}
	if v := os.Getenv("IMGCACHE_REDIS_TLS_SKIP_VERIFY"); v != "" {
		cfg.Redis.TLSSkipVerify = parseBool(v)
	}

	if v := os.Getenv("IMGCACHE_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("IMGCACHE_CIRCUIT_BREAKER_FAILURE_THRESHOLD"); v != "" {
		cfg.CircuitBreaker.FailureThreshold = parseInt(v, cfg.CircuitBreaker.FailureThreshold)
	}
	if v := os.Getenv("IMGCACHE_CIRCUIT_BREAKER_OPEN_DURATION"); v != "" {
		cfg.CircuitBreaker.OpenDuration = parseDuration(v, cfg.CircuitBreaker.OpenDuration)
	}
	if v := os.Getenv("IMGCACHE_RETRY_ENABLED"); v != "" {
		cfg.Retry.Enabled = parseBool(v)
	}
	if v := os.Getenv("IMGCACHE_RETRY_MAX_ATTEMPTS"); v != "" {
		cfg.Retry.MaxAttempts = parseInt(v, cfg.Retry.MaxAttempts)
	}
	if v := os.Getenv("IMGCACHE_BULKHEAD_ENABLED"); v != "" {
		cfg.Bulkhead.Enabled = parseBool(v)
	}
	if v := os.Getenv("IMGCACHE_BULKHEAD_MAX_CONCURRENT"); v != "" {
		cfg.Bulkhead.MaxConcurrent = parseInt(v, cfg.Bulkhead.MaxConcurrent)
	}

	if v := os.Getenv("IMGCACHE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.DataDog.Enabled = true
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		cfg.Metrics.DataDog.Port = parseInt(v, cfg.Metrics.DataDog.Port)
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}
	if v := os.Getenv("DD_VERSION"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "version:"+v)
	}

	if v := os.Getenv("IMGCACHE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
}

// Validate checks if the configuration is valid.
//
//nolint:gocyclo // One check per field
func (c *Config) Validate() error {
	var errs []error

	if c.Cache.MaxSize <= 0 {
		errs = append(errs, errors.New("cache.maxSize must be positive"))
	}
	switch c.Cache.Storage {
	case StorageMemory, StorageRedis:
	default:
		errs = append(errs, fmt.Errorf("cache.storage must be %q or %q, got %q", StorageMemory, StorageRedis, c.Cache.Storage))
	}
	if c.Cache.QueueSize <= 0 {
		errs = append(errs, errors.New("cache.queueSize must be positive"))
	}
	if c.Cache.QueueTimeout < 0 || c.AutoRefresh.QueueTimeout < 0 {
		errs = append(errs, errors.New("queue timeouts must not be negative"))
	}
	if c.AutoRefresh.MaxAge <= 0 {
		errs = append(errs, errors.New("autoRefresh.maxAge must be positive"))
	}
	if c.AutoRefresh.QueueSize <= 0 {
		errs = append(errs, errors.New("autoRefresh.queueSize must be positive"))
	}
	if c.Maintenance.Interval <= 0 {
		errs = append(errs, errors.New("maintenance.interval must be positive"))
	}
	if c.SizeCache.MaxCount <= 0 {
		errs = append(errs, errors.New("sizeCache.maxCount must be positive"))
	}

	if _, err := types.ParseFormat(c.Format.Format); err != nil {
		errs = append(errs, fmt.Errorf("format.format: %w", err))
	}
	if c.Format.Quality < types.MinQuality || c.Format.Quality > types.MaxQuality {
		errs = append(errs, fmt.Errorf("format.quality must be %d-%d", types.MinQuality, types.MaxQuality))
	}
	if c.Format.Width < 1 || c.Format.Width > types.MaxDimension ||
		c.Format.Height < 1 || c.Format.Height > types.MaxDimension {
		errs = append(errs, fmt.Errorf("format width and height must be 1-%d", types.MaxDimension))
	}
	if len(c.Domains) == 0 {
		errs = append(errs, errors.New("domains must list at least one entry (use \"all\" to allow any host)"))
	}

	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Fetch.CacheTTL < 0 {
		errs = append(errs, errors.New("fetch.cacheTTL must not be negative"))
	}
	if c.Fetch.MaxSourceSize <= 0 {
		errs = append(errs, errors.New("fetch.maxSourceSize must be positive"))
	}
	if c.Fetch.MaxPixels <= 0 {
		errs = append(errs, errors.New("fetch.maxPixels must be positive"))
	}
	if c.Memory.Shards <= 0 || (c.Memory.Shards&(c.Memory.Shards-1)) != 0 {
		errs = append(errs, errors.New("memory.shards must be a positive power of 2"))
	}

	if c.Cache.Storage == StorageRedis {
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("redis.address is required when cache.storage is redis"))
		}
		if c.Redis.PoolSize <= 0 {
			errs = append(errs, errors.New("redis.poolSize must be positive"))
		}
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			errs = append(errs, errors.New("circuitBreaker.failureThreshold must be positive"))
		}
		if c.CircuitBreaker.OpenDuration <= 0 {
			errs = append(errs, errors.New("circuitBreaker.openDuration must be positive"))
		}
	}
	if c.Retry.Enabled && c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.maxAttempts must be positive"))
	}
	if c.Bulkhead.Enabled && c.Bulkhead.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("bulkhead.maxConcurrent must be positive"))
	}
	if c.Metrics.Enabled && c.Metrics.PublishInterval <= 0 {
		errs = append(errs, errors.New("metrics.publishInterval must be positive"))
	}

	return errors.Join(errs...)
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return v
}

func parseDuration(s string, defaultVal Duration) Duration {
	s = strings.TrimSpace(s)

	if d, err := ParseDuration(s); err == nil {
		return d
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(secs) * time.Second)
	}

	return defaultVal
}

func parseSize(s string, defaultVal ByteSize) ByteSize {
	if b, err := ParseByteSize(s); err == nil {
		return b
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

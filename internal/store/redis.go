package store

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/types"
)

const (
	disconnectErrorThreshold = 5
	scanBatchSize            = 100
)

// RedisStore keeps artifacts in Redis under a key prefix, without expiry.
type RedisStore struct {
	client *redis.Client
	config config.RedisConfig
	logger *slog.Logger

	mu            sync.RWMutex
	connected     atomic.Bool
	lastError     error
	lastErrorTime time.Time
	errorCount    atomic.Int64

	healthCheckStopCh chan struct{}
	healthCheckWg     sync.WaitGroup
	closeOnce         sync.Once

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	removes atomic.Int64
}

// NewRedisStore connects to Redis. A failed initial ping is logged and the
// store starts unavailable; the health check brings it back.
func NewRedisStore(cfg config.RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout.Std(),
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
		PoolTimeout:  cfg.PoolTimeout.Std(),
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in via config
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	rs := &RedisStore{
		client:            redis.NewClient(opts),
		config:            cfg,
		logger:            logger.With("component", "redis-store"),
		healthCheckStopCh: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), rs.dialTimeout())
	defer cancel()

	if err := rs.client.Ping(ctx).Err(); err != nil {
		rs.logger.Warn("Redis initial connection failed", "error", err)
		rs.setError(err)
	} else {
		rs.connected.Store(true)
		rs.logger.Info("Redis connected", "address", cfg.Address)
	}

	if cfg.HealthCheckInterval > 0 {
		rs.healthCheckWg.Add(1)
		go rs.healthCheckWorker()
	}

	return rs, nil
}

func (s *RedisStore) Name() string {
	return config.StorageRedis
}

func (s *RedisStore) IsAvailable() bool {
	return s.connected.Load()
}

func (s *RedisStore) prefixKey(key string) string {
	return s.config.KeyPrefix + key
}

func (s *RedisStore) dialTimeout() time.Duration {
	if d := s.config.DialTimeout.Std(); d > 0 {
		return d
	}
	return 5 * time.Second
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.connected.Load() {
		return nil, types.ErrStoreUnavailable
	}

	data, err := s.client.Get(ctx, s.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, types.ErrCacheMiss
		}
		s.handleError(err)
		return nil, types.NewCacheError("Get", key, "redis", err)
	}

	s.hits.Add(1)
	s.clearError()
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	if err := s.client.Set(ctx, s.prefixKey(key), value, 0).Err(); err != nil {
		s.handleError(err)
		return types.NewCacheError("Set", key, "redis", err)
	}

	s.sets.Add(1)
	s.clearError()
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		s.handleError(err)
		return types.NewCacheError("Remove", key, "redis", err)
	}

	s.removes.Add(1)
	s.clearError()
	return nil
}

// Clear deletes every key under the configured prefix using SCAN and DEL.
func (s *RedisStore) Clear(ctx context.Context) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	pattern := s.prefixKey("*")
	var cursor uint64
	var deleted int64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			s.handleError(err)
			return types.NewCacheError("Clear", pattern, "redis", err)
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				s.handleError(err)
				return types.NewCacheError("Clear", pattern, "redis", err)
			}
			deleted += int64(len(keys))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.logger.Debug("Cleared artifacts", "pattern", pattern, "deleted", deleted)
	s.clearError()
	return nil
}

func (s *RedisStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		close(s.healthCheckStopCh)
		s.healthCheckWg.Wait()
		err = s.client.Close()
	})
	return err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) LastError() (error, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError, s.lastErrorTime
}

func (s *RedisStore) Stats() Stats {
	return Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Sets:    s.sets.Load(),
		Removes: s.removes.Load(),
	}
}

func (s *RedisStore) healthCheckWorker() {
	defer s.healthCheckWg.Done()

	ticker := time.NewTicker(s.config.HealthCheckInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-s.healthCheckStopCh:
			return
		case <-ticker.C:
			s.performHealthCheck()
		}
	}
}

func (s *RedisStore) performHealthCheck() {
	wasConnected := s.connected.Load()

	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout())
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		if wasConnected {
			s.logger.Warn("Redis health check failed", "error", err)
			s.setError(err)
		}
		return
	}

	if !wasConnected {
		s.connected.Store(true)
		s.errorCount.Store(0)
		s.logger.Info("Redis connection restored via health check")
	}
}

func (s *RedisStore) handleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = err
	s.lastErrorTime = time.Now()
	count := s.errorCount.Add(1)

	if count >= disconnectErrorThreshold {
		if s.connected.CompareAndSwap(true, false) {
			s.logger.Warn("Redis marked as disconnected after errors",
				"error_count", count,
				"last_error", err,
			)
		}
	}
}

func (s *RedisStore) clearError() {
	s.errorCount.Store(0)
}

func (s *RedisStore) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	s.lastErrorTime = time.Now()
	s.connected.Store(false)
}

var _ types.BlobStore = (*RedisStore)(nil)

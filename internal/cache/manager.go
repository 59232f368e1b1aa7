// Package cache implements the size-bounded artifact cache: a key-locked
// index over a blob store, a foreground production queue, a background
// refresh queue and the maintenance loop that ages and refreshes entries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/fetch"
	"github.com/LavishGent/imgcache/internal/lock"
	"github.com/LavishGent/imgcache/internal/metrics"
	"github.com/LavishGent/imgcache/internal/queue"
	"github.com/LavishGent/imgcache/internal/resilience"
	"github.com/LavishGent/imgcache/internal/store"
	"github.com/LavishGent/imgcache/internal/transform"
	"github.com/LavishGent/imgcache/internal/types"
)

// DefaultShutdownTimeout bounds Destroy when the caller's context has no deadline.
const DefaultShutdownTimeout = 30 * time.Second

const (
	mainQueueName    = "main"
	refreshQueueName = "refresh"
)

// Manager is the cache orchestrator.
//
// Lock order: key lock, then writeMu, then mu. The index and the size counter
// are read and written under mu; an entry's artifact and index record only
// change while its key lock is held.
type Manager struct {
	config      *config.Config
	source      types.SourceProvider
	transformer types.Transformer
	store       types.BlobStore
	metrics     types.MetricsRecorder
	policy      *resilience.Policy
	logger      *slog.Logger

	locks        *lock.KeyLock
	mainQueue    *queue.Queue
	refreshQueue *queue.Queue
	sizes        *sizeCache

	// writeMu serializes room-making and commit so capacity holds across writers.
	writeMu sync.Mutex
	mu      sync.Mutex
	index   *index

	maxSize  int64
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time

	// owned are collaborators built here rather than injected.
	owned []io.Closer

	lifecycleMu sync.Mutex
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
	closed      atomic.Bool
}

// NewManager wires a manager from cfg. Collaborators missing from opts are
// built from cfg and closed by Destroy.
//
//nolint:gocyclo // Configuration initialization requires multiple conditional checks
func NewManager(cfg *config.Config, opts *types.ManagerOptions) (*Manager, error) {
	if opts == nil {
		opts = &types.ManagerOptions{}
	}
	baseLogger := NewLogger(opts.Logger)
	logger := baseLogger.With("component", "cache-manager")

	if opts.RedisAddress != "" {
		cfg.Redis.Address = opts.RedisAddress
	}
	if !opts.RedisPassword.IsEmpty() {
		cfg.Redis.Password = opts.RedisPassword
	}
	if opts.DisableResilience {
		cfg.CircuitBreaker.Enabled = false
		cfg.Retry.Enabled = false
		cfg.Bulkhead.Enabled = false
	}

	m := &Manager{
		config:      cfg,
		source:      opts.Source,
		transformer: opts.Transformer,
		store:       opts.Store,
		metrics:     opts.Metrics,
		logger:      logger,
		locks:       lock.New(),
		sizes:       newSizeCache(cfg.SizeCache.MaxCount),
		index:       newIndex(),
		maxSize:     cfg.Cache.MaxSize.Int64(),
		maxAge:      cfg.AutoRefresh.MaxAge.Std(),
		interval:    cfg.Maintenance.Interval.Std(),
		now:         time.Now,
	}
	if m.metrics == nil {
		m.metrics = metrics.NewNoOpTracker()
	}

	if m.store == nil {
		s, err := store.New(cfg, baseLogger)
		if err != nil {
			return nil, fmt.Errorf("create blob store: %w", err)
		}
		m.store = s
		m.owned = append(m.owned, s)
	}

	if m.source == nil {
		m.policy = resilience.NewPolicy("source", cfg, baseLogger)
		m.policy.SetOnCircuitStateChange(func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				"upstream", name,
				"from", from.String(),
				"to", to.String(),
			)
			m.metrics.RecordCircuitBreakerStateChange(from.String(), to.String())
		})

		f, err := fetch.New(cfg.Fetch, baseLogger, fetch.WithPolicy(m.policy))
		if err != nil {
			m.closeOwned()
			return nil, fmt.Errorf("create fetcher: %w", err)
		}
		m.source = f
		m.owned = append(m.owned, f)
	}

	if m.transformer == nil {
		m.transformer = transform.New(baseLogger)
	}

	m.mainQueue = queue.New(queue.Config{
		Name:      mainQueueName,
		MaxLength: cfg.Cache.QueueSize,
		Cooldown:  cfg.Cache.QueueTimeout.Std(),
	}, baseLogger)
	m.refreshQueue = queue.New(queue.Config{
		Name:      refreshQueueName,
		MaxLength: cfg.AutoRefresh.QueueSize,
		Cooldown:  cfg.AutoRefresh.QueueTimeout.Std(),
	}, baseLogger)

	return m, nil
}

// Init clears the blob store and the index, then starts the maintenance loop.
// Every process starts with an empty cache.
func (m *Manager) Init(ctx context.Context) error {
	if m.closed.Load() {
		return types.ErrClosed
	}

	err := m.locks.WithGlobal(ctx, func() error {
		if err := m.store.Clear(ctx); err != nil {
			return types.NewCacheError("Init", "", "store", err)
		}
		m.mu.Lock()
		m.index.reset()
		m.mu.Unlock()
		m.sizes.clear()
		return nil
	})
	if err != nil {
		return err
	}

	m.startMaintenance()
	m.logger.Info("Cache initialized",
		"store", m.store.Name(),
		"max_size", m.maxSize,
		"refresh_after", m.maxAge,
		"maintenance_interval", m.interval,
	)
	return nil
}

// Get returns the cached artifact for (url, s). On a miss it queues
// production and returns the untransformed source bytes instead.
func (m *Manager) Get(ctx context.Context, url string, s types.Settings) ([]byte, error) {
	if m.closed.Load() {
		return nil, types.ErrClosed
	}

	key := DeriveKey(url, s)
	start := m.now()

	var data []byte
	err := m.locks.WithKey(ctx, key, func() error {
		var err error
		data, err = m.readLocked(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if data != nil {
		m.metrics.RecordHit(key, time.Since(start))
		m.logger.Debug("Cache hit", "key", key, "bytes", len(data))
		return data, nil
	}

	m.metrics.RecordMiss(key, time.Since(start))
	m.logger.Debug("Cache miss", "key", key)

	if !m.mainQueue.HasPending(key) {
		if adm := m.mainQueue.Admit(key, m.produceTask(key, url, s), types.PriorityLow); adm != types.Admitted {
			m.metrics.RecordRejection(mainQueueName, adm)
		}
	}

	src, err := m.source.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	m.sizes.put(url, src.Size)
	return src.Data, nil
}

// readLocked returns the artifact for key, or nil on a miss. The caller holds
// the key lock. An index entry whose bytes are gone from the store is dropped.
func (m *Manager) readLocked(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	e := m.index.get(key)
	if e != nil {
		e.popularity += popularityBump
	}
	m.mu.Unlock()
	if e == nil {
		return nil, nil
	}

	data, err := m.store.Get(ctx, key)
	if err == nil {
		return data, nil
	}

	if types.IsCacheMiss(err) {
		m.logger.Warn("Indexed artifact missing from store, dropping entry", "key", key)
		m.writeMu.Lock()
		_, rmErr := m.removeLocked(ctx, key)
		m.writeMu.Unlock()
		if rmErr != nil {
			return nil, rmErr
		}
		return nil, nil
	}

	m.metrics.RecordError("store", "get", err)
	m.logger.Warn("Store read failed, serving source", "key", key, "error", err)
	return nil, nil
}

// GetSize returns the natural dimensions of the source at url.
func (m *Manager) GetSize(ctx context.Context, url string) (types.Dimensions, error) {
	if m.closed.Load() {
		return types.Dimensions{}, types.ErrClosed
	}

	if d, ok := m.sizes.get(url); ok {
		return d, nil
	}

	src, err := m.source.Fetch(ctx, url)
	if err != nil {
		return types.Dimensions{}, err
	}
	m.sizes.put(url, src.Size)
	return src.Size, nil
}

// produceTask fetches, transforms and stores the artifact for key.
func (m *Manager) produceTask(key, url string, s types.Settings) queue.Task {
	return func(ctx context.Context) error {
		start := m.now()

		src, err := m.source.Fetch(ctx, url)
		if err != nil {
			m.metrics.RecordError("fetch", "produce", err)
			return types.NewCacheError("Produce", key, "fetch", err)
		}
		m.sizes.put(url, src.Size)

		out, err := m.transformer.Transform(ctx, src.Data, s)
		if err != nil {
			m.metrics.RecordError("transform", "produce", err)
			return types.NewCacheError("Produce", key, "transform", err)
		}

		return m.locks.WithKey(ctx, key, func() error {
			stored, err := m.putLocked(ctx, key, url, s, src, out.Data)
			if err != nil {
				m.metrics.RecordError("store", "produce", err)
				return err
			}
			if stored {
				m.metrics.RecordProduce(key, len(out.Data), time.Since(start))
			}
			return nil
		})
	}
}

// refreshTask re-fetches the source of key and re-transforms only when the
// content hash changed. An entry evicted before the task runs is left alone.
func (m *Manager) refreshTask(key string) queue.Task {
	return func(ctx context.Context) error {
		m.mu.Lock()
		e := m.index.get(key)
		if e == nil {
			m.mu.Unlock()
			return nil
		}
		url, settings, oldHash := e.url, e.settings, e.sourceHash
		m.mu.Unlock()

		src, err := m.source.Fetch(ctx, url)
		if err != nil {
			m.metrics.RecordError("fetch", "refresh", err)
			return types.NewCacheError("Refresh", key, "fetch", err)
		}
		m.sizes.put(url, src.Size)

		if src.Hash == oldHash {
			return m.locks.WithKey(ctx, key, func() error {
				m.mu.Lock()
				defer m.mu.Unlock()
				if e := m.index.get(key); e != nil {
					e.lastUpdated = m.now()
				}
				m.metrics.RecordRefresh(key, false)
				return nil
			})
		}

		out, err := m.transformer.Transform(ctx, src.Data, settings)
		if err != nil {
			m.metrics.RecordError("transform", "refresh", err)
			return types.NewCacheError("Refresh", key, "transform", err)
		}

		return m.locks.WithKey(ctx, key, func() error {
			m.mu.Lock()
			exists := m.index.get(key) != nil
			m.mu.Unlock()
			if !exists {
				m.logger.Debug("Entry evicted before refresh completed", "key", key)
				return nil
			}
			stored, err := m.putLocked(ctx, key, url, settings, src, out.Data)
			if err != nil {
				m.metrics.RecordError("store", "refresh", err)
				return err
			}
			if stored {
				m.metrics.RecordRefresh(key, true)
			}
			return nil
		})
	}
}

// putLocked inserts or updates the artifact for key, evicting other entries
// until it fits. An artifact larger than the whole cache is skipped, not an
// error. The caller holds the key lock.
func (m *Manager) putLocked(ctx context.Context, key, url string, s types.Settings, src *types.SourceImage, data []byte) (bool, error) {
	size := int64(len(data))
	if size > m.maxSize {
		m.logger.Warn("Artifact too large to fit in cache",
			"key", key,
			"size", size,
			"max_size", m.maxSize,
		)
		m.metrics.RecordError("store", "put", types.ErrCapacityExceeded)
		return false, nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	var oldSize int64
	if e := m.index.get(key); e != nil {
		oldSize = e.size
	}
	m.mu.Unlock()

	if err := m.makeRoomLocked(ctx, key, size-oldSize); err != nil {
		return false, err
	}

	if err := m.store.Set(ctx, key, data); err != nil {
		return false, types.NewCacheError("Put", key, "store", err)
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.index.get(key); e != nil {
		m.index.resize(e, size)
		e.url = url
		e.sourceHash = src.Hash
		e.sourceSize = src.Size
		e.lastUpdated = now
		return true, nil
	}

	m.index.insert(&entry{
		key:         key,
		settings:    s,
		url:         url,
		sourceHash:  src.Hash,
		sourceSize:  src.Size,
		size:        size,
		lastUpdated: now,
		popularity:  popularitySeed,
	})
	return true, nil
}

// makeRoomLocked evicts until delta more bytes fit. The caller holds writeMu
// and the lock for key, which is never chosen as a victim.
func (m *Manager) makeRoomLocked(ctx context.Context, key string, delta int64) error {
	for {
		m.mu.Lock()
		fits := m.index.size+delta <= m.maxSize
		m.mu.Unlock()
		if fits {
			return nil
		}
		if err := m.evictOneLocked(ctx, key); err != nil {
			return err
		}
	}
}

// evictOneLocked removes the least popular entry whose key lock can be taken
// without waiting. Entries currently being read or written are skipped.
func (m *Manager) evictOneLocked(ctx context.Context, exclude string) error {
	skip := map[string]struct{}{exclude: {}}
	for {
		m.mu.Lock()
		victim := m.index.victim(skip)
		m.mu.Unlock()
		if victim == nil {
			return types.NewCacheError("Evict", exclude, "evict", types.ErrNoEvictionProgress)
		}

		if !m.locks.TryLockKey(victim.key) {
			skip[victim.key] = struct{}{}
			continue
		}
		removed, err := m.removeLocked(ctx, victim.key)
		m.locks.UnlockKey(victim.key)
		if err != nil {
			return err
		}
		if removed != nil {
			m.metrics.RecordEviction(removed.key, int(removed.size))
			m.logger.Debug("Evicted artifact",
				"key", removed.key,
				"size", removed.size,
				"popularity", removed.popularity,
			)
		}
		return nil
	}
}

// removeLocked drops key from the index and the store. The caller holds
// writeMu and the key lock. A negative size counter aborts with
// ErrNegativeCacheSize.
func (m *Manager) removeLocked(ctx context.Context, key string) (*entry, error) {
	m.mu.Lock()
	removed, err := m.index.remove(key)
	size := m.index.size
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Cache size accounting went negative",
			"key", key,
			"removed_size", removed.size,
			"cache_size", size,
		)
		return nil, types.NewCacheError("Remove", key, "evict", err)
	}
	if removed == nil {
		return nil, nil
	}

	if err := m.store.Remove(ctx, key); err != nil {
		m.logger.Warn("Failed to remove artifact from store", "key", key, "error", err)
	}
	return removed, nil
}

// Destroy stops maintenance, drains both queues and clears all cached state.
// The manager cannot be used afterwards.
func (m *Manager) Destroy(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}

	m.logger.Info("Destroying cache")
	m.stopMaintenance()

	m.mainQueue.Close()
	m.refreshQueue.Close()

	var errs []error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.mainQueue.Drain(gctx) })
	g.Go(func() error { return m.refreshQueue.Drain(gctx) })
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	err := m.locks.WithGlobal(ctx, func() error {
		m.mu.Lock()
		m.index.reset()
		m.mu.Unlock()
		m.sizes.clear()
		return m.store.Clear(ctx)
	})
	if err != nil {
		errs = append(errs, types.NewCacheError("Destroy", "", "store", err))
	}

	if err := m.closeOwned(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (m *Manager) closeOwned() error {
	var errs []error
	for i := len(m.owned) - 1; i >= 0; i-- {
		if err := m.owned[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.owned = nil
	return errors.Join(errs...)
}

// DebugInfo returns a diagnostic snapshot. It is not used for any decision.
func (m *Manager) DebugInfo() types.DebugInfo {
	m.mu.Lock()
	info := types.DebugInfo{
		Config:            m.config.Summary(),
		CacheSize:         m.index.size,
		ComputedCacheSize: m.index.computedSize(),
		MaxCacheSize:      m.maxSize,
		CachedItems:       m.index.items(),
	}
	m.mu.Unlock()

	info.SizeCacheCount = m.sizes.len()
	info.MainQueue = m.mainQueue.DebugInfo()
	info.BackgroundQueue = m.refreshQueue.DebugInfo()
	if sp, ok := m.source.(types.SourceStatsProvider); ok {
		stats := sp.Stats()
		info.Fetcher = &stats
	}
	if m.policy != nil {
		up := m.policy.Stats()
		info.Upstream = &up
	}
	return info
}

// Health reports Unhealthy when the store is unreachable and Degraded when
// the main queue is full or the source circuit breaker is open.
func (m *Manager) Health() types.HealthStatus {
	if m.closed.Load() || !m.store.IsAvailable() {
		return types.HealthStatusUnhealthy
	}
	if m.mainQueue.Len() >= m.config.Cache.QueueSize {
		return types.HealthStatusDegraded
	}
	if m.policy != nil && m.policy.CircuitState() == resilience.StateOpen {
		return types.HealthStatusDegraded
	}
	return types.HealthStatusHealthy
}

// HealthMetrics feeds the background metrics publisher.
func (m *Manager) HealthMetrics() *types.PublisherHealthMetrics {
	m.mu.Lock()
	used := m.index.size
	entries := m.index.len()
	m.mu.Unlock()

	hm := &types.PublisherHealthMetrics{
		CacheUsedBytes:     used,
		CacheLimitBytes:    m.maxSize,
		TotalEntries:       int64(entries),
		SizeCacheEntries:   int64(m.sizes.len()),
		MainQueueLength:    m.mainQueue.Len(),
		RefreshQueueLength: m.refreshQueue.Len(),
		StoreAvailable:     m.store.IsAvailable(),
	}
	if m.maxSize > 0 {
		hm.CacheUsagePercentage = float64(used) / float64(m.maxSize) * 100
	}
	if snap, ok := m.metrics.(interface{ Snapshot() types.MetricsSnapshot }); ok {
		s := snap.Snapshot()
		hm.HitRatio = s.HitRatio()
		hm.AverageLatencyMs = s.AvgLatencyMs
	}
	return hm
}

// Metrics returns the recorder in use.
func (m *Manager) Metrics() types.MetricsRecorder {
	return m.metrics
}

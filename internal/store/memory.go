// Package store holds artifact bytes for the cache manager. Stores never
// evict on their own: the manager owns size accounting and removes entries
// explicitly.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/types"
)

// MemoryStore keeps artifacts in a fixed set of mutex-guarded maps. Removing
// or overwriting a key drops the only reference to its bytes, so live memory
// tracks what the manager has accounted for.
type MemoryStore struct {
	shards []*memoryShard
	mask   uint64
	logger *slog.Logger

	bytes   atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	removes atomic.Int64

	closed atomic.Bool
}

type memoryShard struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore(cfg config.MemoryConfig, logger *slog.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	n := cfg.Shards
	if n <= 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("memory store: shards must be a positive power of two, got %d", n)
	}

	s := &MemoryStore{
		shards: make([]*memoryShard, n),
		mask:   uint64(n - 1),
		logger: logger.With("component", "memory-store"),
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{items: make(map[string][]byte)}
	}
	return s, nil
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return s.shards[xxhash.Sum64String(key)&s.mask]
}

func (s *MemoryStore) Name() string {
	return config.StorageMemory
}

func (s *MemoryStore) IsAvailable() bool {
	return !s.closed.Load()
}

// Get returns the stored slice itself. Callers must not modify it.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}

	sh := s.shard(key)
	sh.mu.RLock()
	data, ok := sh.items[key]
	sh.mu.RUnlock()
	if !ok {
		s.misses.Add(1)
		return nil, types.ErrCacheMiss
	}

	s.hits.Add(1)
	return data, nil
}

// Set stores a private copy of value, replacing any previous artifact.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	data := make([]byte, len(value))
	copy(data, value)

	sh := s.shard(key)
	sh.mu.Lock()
	old, existed := sh.items[key]
	sh.items[key] = data
	sh.mu.Unlock()

	delta := int64(len(data))
	if existed {
		delta -= int64(len(old))
	}
	s.bytes.Add(delta)
	s.sets.Add(1)
	return nil
}

// Remove deletes key. A missing key is not an error.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	if s.closed.Load() {
		return types.ErrClosed
	}

	sh := s.shard(key)
	sh.mu.Lock()
	old, existed := sh.items[key]
	delete(sh.items, key)
	sh.mu.Unlock()

	if existed {
		s.bytes.Add(-int64(len(old)))
	}
	s.removes.Add(1)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	s.reset()
	return nil
}

func (s *MemoryStore) reset() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		var freed int64
		for _, v := range sh.items {
			freed += int64(len(v))
		}
		sh.items = make(map[string][]byte)
		sh.mu.Unlock()
		s.bytes.Add(-freed)
	}
}

func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.reset()
	s.logger.Debug("memory store closed")
	return nil
}

// Len returns the number of stored artifacts.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Bytes returns the total size of the stored artifacts.
func (s *MemoryStore) Bytes() int64 {
	return s.bytes.Load()
}

func (s *MemoryStore) Stats() Stats {
	return Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Sets:    s.sets.Load(),
		Removes: s.removes.Load(),
		Bytes:   s.bytes.Load(),
	}
}

var _ types.BlobStore = (*MemoryStore)(nil)

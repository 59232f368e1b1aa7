package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/types"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(config.ForTesting().Memory, nil)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStoreName(t *testing.T) {
	s := newTestMemoryStore(t)
	if name := s.Name(); name != "memory" {
		t.Errorf("Name() = %s, want memory", name)
	}
	if !s.IsAvailable() {
		t.Error("IsAvailable() = false, want true")
	}
}

func TestMemoryStoreSetGet(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k1", []byte("artifact")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, []byte("artifact")) {
		t.Errorf("Get() = %q, want %q", got, "artifact")
	}

	if err := s.Set(ctx, "k1", []byte("replaced")); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	got, _ = s.Get(ctx, "k1")
	if string(got) != "replaced" {
		t.Errorf("Get() after overwrite = %q, want replaced", got)
	}
}

func TestMemoryStoreMiss(t *testing.T) {
	s := newTestMemoryStore(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, types.ErrCacheMiss) {
		t.Errorf("Get(missing) error = %v, want ErrCacheMiss", err)
	}
	if s.Stats().Misses != 1 {
		t.Errorf("Misses = %d, want 1", s.Stats().Misses)
	}
}

func TestMemoryStoreRemove(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	_ = s.Set(ctx, "k1", []byte("v"))
	if err := s.Remove(ctx, "k1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, types.ErrCacheMiss) {
		t.Errorf("Get() after Remove error = %v, want ErrCacheMiss", err)
	}

	if err := s.Remove(ctx, "never-set"); err != nil {
		t.Errorf("Remove(missing) error = %v, want nil", err)
	}
}

func TestMemoryStoreLargeEntry(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	big := bytes.Repeat([]byte{0xAB}, 2*1024*1024)
	if err := s.Set(ctx, "big", big); err != nil {
		t.Fatalf("Set(big) error = %v", err)
	}
	got, err := s.Get(ctx, "big")
	if err != nil {
		t.Fatalf("Get(big) error = %v", err)
	}
	if len(got) != len(big) {
		t.Errorf("len = %d, want %d", len(got), len(big))
	}
}

func TestMemoryStoreChurnReleasesBytes(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	blob := bytes.Repeat([]byte{0xCD}, 100*1024)
	const keys = 8
	for round := 0; round < 200; round++ {
		for k := 0; k < keys; k++ {
			key := fmt.Sprintf("churn-%d", k)
			if err := s.Set(ctx, key, blob); err != nil {
				t.Fatalf("Set(%s) error = %v", key, err)
			}
			// overwrite before removal so replaced bytes are released too
			if err := s.Set(ctx, key, blob[:len(blob)/2]); err != nil {
				t.Fatalf("Set(%s) overwrite error = %v", key, err)
			}
		}
		if got, limit := s.Bytes(), int64(keys*len(blob)/2); got != limit {
			t.Fatalf("round %d: Bytes() = %d, want %d", round, got, limit)
		}
		for k := 0; k < keys; k++ {
			if err := s.Remove(ctx, fmt.Sprintf("churn-%d", k)); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
		}
		if s.Len() != 0 || s.Bytes() != 0 {
			t.Fatalf("round %d: Len() = %d, Bytes() = %d, want 0, 0", round, s.Len(), s.Bytes())
		}
	}

	if st := s.Stats(); st.Sets != 200*keys*2 || st.Removes != 200*keys || st.Bytes != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestMemoryStoreSetCopiesValue(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	value := []byte("abc")
	_ = s.Set(ctx, "k", value)
	value[0] = 'z'

	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Get() = %q, want abc", got)
	}
}

func TestNewMemoryStoreRejectsBadShards(t *testing.T) {
	for _, n := range []int{0, -4, 100} {
		if _, err := NewMemoryStore(config.MemoryConfig{Shards: n}, nil); err == nil {
			t.Errorf("NewMemoryStore(shards=%d) error = nil", n)
		}
	}
}

func TestMemoryStoreClear(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"))
	}
	if s.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", s.Len())
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.Len() != 0 || s.Bytes() != 0 {
		t.Errorf("after Clear Len() = %d, Bytes() = %d, want 0, 0", s.Len(), s.Bytes())
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s, err := NewMemoryStore(config.ForTesting().Memory, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}

	ctx := context.Background()
	if s.IsAvailable() {
		t.Error("IsAvailable() after Close = true")
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, types.ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
	if err := s.Set(ctx, "k", nil); !errors.Is(err, types.ErrClosed) {
		t.Errorf("Set() after Close error = %v, want ErrClosed", err)
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				_ = s.Set(ctx, key, []byte(key))
				if got, err := s.Get(ctx, key); err != nil || string(got) != key {
					t.Errorf("Get(%s) = %q, %v", key, got, err)
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestNewSelectsStorage(t *testing.T) {
	cfg := config.ForTesting()
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()
	if s.Name() != config.StorageMemory {
		t.Errorf("Name() = %s, want memory", s.Name())
	}

	cfg.Cache.Storage = "disk"
	if _, err := New(cfg, nil); err == nil {
		t.Error("New() with unknown storage should fail")
	}
}

func BenchmarkMemoryStoreSet(b *testing.B) {
	s, err := NewMemoryStore(config.DefaultConfig().Memory, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	value := bytes.Repeat([]byte{1}, 4096)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = s.Set(ctx, fmt.Sprintf("key:%d", i%1024), value)
	}
}

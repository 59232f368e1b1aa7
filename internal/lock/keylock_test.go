package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_Availability(t *testing.T) {
	l := New()

	assert.True(t, l.KeyAvailable("a"))
	assert.True(t, l.GlobalAvailable())

	require.True(t, l.TryLockKey("a"))
	assert.False(t, l.KeyAvailable("a"))
	assert.True(t, l.KeyAvailable("b"), "other keys stay free")
	assert.False(t, l.GlobalAvailable(), "global waits for key holders")
	assert.False(t, l.TryLockKey("a"))

	l.UnlockKey("a")
	assert.True(t, l.KeyAvailable("a"))
	assert.True(t, l.GlobalAvailable())
}

func TestKeyLock_GlobalExcludesKeys(t *testing.T) {
	l := New()
	ctx := context.Background()

	require.NoError(t, l.LockGlobal(ctx))
	assert.True(t, l.GlobalHeld())
	assert.False(t, l.KeyAvailable("a"))
	assert.False(t, l.TryLockKey("a"))
	assert.False(t, l.GlobalAvailable())

	l.UnlockGlobal()
	assert.True(t, l.TryLockKey("a"))
}

func TestKeyLock_UnlockNotHeldIsNoop(t *testing.T) {
	l := New()
	l.UnlockKey("never")
	l.UnlockGlobal()
	assert.Equal(t, 0, l.HeldKeys())
	assert.False(t, l.GlobalHeld())
}

func TestKeyLock_WithKeySerializes(t *testing.T) {
	l := New()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithKey(ctx, "k", func() error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, l.HeldKeys())
}

func TestKeyLock_DistinctKeysRunConcurrently(t *testing.T) {
	l := New()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_ = l.WithKey(ctx, key, func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}(key)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("distinct keys should not block each other")
		}
	}
	assert.Equal(t, 2, l.HeldKeys())
	close(release)
	wg.Wait()
}

func TestKeyLock_GlobalWaitsForKeys(t *testing.T) {
	l := New()
	ctx := context.Background()
	require.True(t, l.TryLockKey("a"))

	acquired := make(chan struct{})
	go func() {
		_ = l.WithGlobal(ctx, func() error {
			close(acquired)
			return nil
		})
	}()

	select {
	case <-acquired:
		t.Fatal("global acquired while a key was held")
	case <-time.After(20 * time.Millisecond):
	}

	l.UnlockKey("a")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("global not acquired after key release")
	}
}

func TestKeyLock_ReleasesOnErrorAndPanic(t *testing.T) {
	l := New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := l.WithKey(ctx, "k", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, l.KeyAvailable("k"))

	assert.Panics(t, func() {
		_ = l.WithKey(ctx, "k", func() error { panic("bad") })
	})
	assert.True(t, l.KeyAvailable("k"))

	assert.Panics(t, func() {
		_ = l.WithGlobal(ctx, func() error { panic("bad") })
	})
	assert.True(t, l.GlobalAvailable())
}

func TestKeyLock_ContextCancel(t *testing.T) {
	l := New()
	require.True(t, l.TryLockKey("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	called := false
	err := l.WithKey(ctx, "k", func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	err = l.LockGlobal(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, l.GlobalHeld())
}

func BenchmarkKeyLock_WithKey(b *testing.B) {
	l := New()
	ctx := context.Background()
	noop := func() error { return nil }

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = l.WithKey(ctx, "bench", noop)
		}
	})
}

// Package lock provides per-key mutual exclusion with a global lock that
// excludes every key holder.
package lock

import (
	"context"
	"sync"
)

// KeyLock guards cache keys. At most one holder per key; the global lock is
// held only while no key is held, and no key can be taken while it is held.
// Acquisition is neither reentrant nor fair.
type KeyLock struct {
	mu     sync.Mutex
	held   map[string]struct{}
	global bool
	// wake is closed and replaced on every release so waiters can re-check.
	wake chan struct{}
}

func New() *KeyLock {
	return &KeyLock{
		held: make(map[string]struct{}),
		wake: make(chan struct{}),
	}
}

// KeyAvailable reports whether key could be acquired right now.
// The answer may be stale by the time the caller acts on it.
func (l *KeyLock) KeyAvailable(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keyFreeLocked(key)
}

// GlobalAvailable reports whether the global lock could be acquired right now.
func (l *KeyLock) GlobalAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.globalFreeLocked()
}

// TryLockKey acquires key without waiting.
func (l *KeyLock) TryLockKey(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.keyFreeLocked(key) {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// LockKey blocks until key is acquired or ctx is done.
func (l *KeyLock) LockKey(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		if l.keyFreeLocked(key) {
			l.held[key] = struct{}{}
			l.mu.Unlock()
			return nil
		}
		wake := l.wake
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// UnlockKey releases key. Releasing a key that is not held is a no-op.
func (l *KeyLock) UnlockKey(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; !ok {
		return
	}
	delete(l.held, key)
	l.broadcastLocked()
}

// LockGlobal blocks until no key and no other global holder remain.
func (l *KeyLock) LockGlobal(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.globalFreeLocked() {
			l.global = true
			l.mu.Unlock()
			return nil
		}
		wake := l.wake
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

func (l *KeyLock) UnlockGlobal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.global {
		return
	}
	l.global = false
	l.broadcastLocked()
}

// WithKey runs fn while holding key. The key is released on every exit path,
// including a panic in fn.
func (l *KeyLock) WithKey(ctx context.Context, key string, fn func() error) error {
	if err := l.LockKey(ctx, key); err != nil {
		return err
	}
	defer l.UnlockKey(key)
	return fn()
}

// WithGlobal runs fn while holding the global lock.
func (l *KeyLock) WithGlobal(ctx context.Context, fn func() error) error {
	if err := l.LockGlobal(ctx); err != nil {
		return err
	}
	defer l.UnlockGlobal()
	return fn()
}

// HeldKeys returns the number of keys currently held.
func (l *KeyLock) HeldKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

func (l *KeyLock) GlobalHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global
}

func (l *KeyLock) keyFreeLocked(key string) bool {
	if l.global {
		return false
	}
	_, busy := l.held[key]
	return !busy
}

func (l *KeyLock) globalFreeLocked() bool {
	return !l.global && len(l.held) == 0
}

func (l *KeyLock) broadcastLocked() {
	close(l.wake)
	l.wake = make(chan struct{})
}

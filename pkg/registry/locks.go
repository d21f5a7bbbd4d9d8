package registry

import (
	"context"
	"fmt"
	"sync"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// identityLocks serializes writes per block identity.
// It uses Reference Counting to garbage collect unused locks.
type identityLocks struct {
	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*lockEntry)}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (l *identityLocks) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		entry = &lockEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (l *identityLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}

// active returns the number of keys currently held or awaited.
func (l *identityLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// withLock executes fn while holding the local lock for key and, when a
// distributed locker is configured, the cluster-wide lock as well.
func (s *Store) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := s.locks.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		s.locks.release(key)
	}()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, "block:"+key, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				s.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"block", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

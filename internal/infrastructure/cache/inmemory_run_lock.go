package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grf/partitioner/internal/domain/partition"
)

// lockEntry is a held lock and the token of its owner
type lockEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryRunLock implements RunLock using an in-memory map.
// It only excludes runs inside one process and is meant for local runs and tests.
type InMemoryRunLock struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

// NewInMemoryRunLock creates a new in-memory run lock
func NewInMemoryRunLock() *InMemoryRunLock {
	return &InMemoryRunLock{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// Acquire takes key for ttl. An expired lock is taken over.
func (l *InMemoryRunLock) Acquire(_ context.Context, key string, ttl time.Duration) (partition.LockHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, held := l.locks[key]; held && now.Before(e.expiresAt) {
		return nil, partition.NewDomainError(partition.ErrCodeRunLocked,
			fmt.Sprintf("a run already holds %s until %s", key, e.expiresAt.Format(time.RFC3339)))
	}

	token := uuid.NewString()
	l.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return &inMemoryHandle{lock: l, key: key, token: token}, nil
}

// Held reports whether key is currently locked (for testing/monitoring)
func (l *InMemoryRunLock) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, held := l.locks[key]
	return held && l.now().Before(e.expiresAt)
}

type inMemoryHandle struct {
	lock  *InMemoryRunLock
	key   string
	token string
}

// Release drops the lock if this handle still owns it
func (h *inMemoryHandle) Release(context.Context) error {
	h.lock.mu.Lock()
	defer h.lock.mu.Unlock()
	if e, held := h.lock.locks[h.key]; held && e.token == h.token {
		delete(h.lock.locks, h.key)
	}
	return nil
}

// Ensure InMemoryRunLock implements RunLock
var _ partition.RunLock = (*InMemoryRunLock)(nil)

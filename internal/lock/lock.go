// Package lock provides leases that keep two workers from processing the same
// watermark window at once.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when another holder owns the lease.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires named leases with a TTL.
type Locker interface {
	// Acquire takes the lease for key or returns ErrNotAcquired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is safe to call once the lease has expired.
type Lease interface {
	Release(ctx context.Context) error
}

// MemoryLocker is an in-process Locker for tests and --use-memory runs.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), nowFn: time.Now}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, ErrNotAcquired
	}
	until := now.Add(ttl)
	l.held[key] = until
	return &memoryLease{locker: l, key: key, until: until}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	until  time.Time
}

func (m *memoryLease) Release(context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if m.locker.held[m.key].Equal(m.until) {
		delete(m.locker.held, m.key)
	}
	return nil
}

// Package lock provides the per-source mutual exclusion that keeps two
// analysis runs of the same source from overlapping.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/google/uuid"
)

// Locker acquires named leases. Acquire returns domain.ErrRunInProgress when
// another holder owns an unexpired lease on key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is idempotent and only frees the lease if it
// is still owned by the caller. Extend pushes the expiry to now+ttl and
// returns domain.ErrRunInProgress once another holder has taken the key.
type Lease interface {
	Key() string
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// RunKey is the lock key of a source's analysis run.
func RunKey(source string) string {
	return "analysis_run:" + source
}

func contention(key string) error {
	return fmt.Errorf("lock %s is held: %w", key, domain.ErrRunInProgress)
}

func lost(key string) error {
	return fmt.Errorf("lock %s was lost to another holder: %w", key, domain.ErrRunInProgress)
}

// MemoryLocker is an in-process Locker for single-instance deployments and
// tests.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryEntry), now: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, held := l.leases[key]; held && now.Before(entry.expiresAt) {
		return nil, contention(key)
	}

	token := uuid.NewString()
	l.leases[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memoryLease) Key() string { return m.key }

func (m *memoryLease) Extend(ctx context.Context, ttl time.Duration) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	entry, held := m.locker.leases[m.key]
	if !held || entry.token != m.token {
		return lost(m.key)
	}
	entry.expiresAt = m.locker.now().Add(ttl)
	m.locker.leases[m.key] = entry
	return nil
}

func (m *memoryLease) Release(ctx context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	if entry, held := m.locker.leases[m.key]; held && entry.token == m.token {
		delete(m.locker.leases, m.key)
	}
	return nil
}

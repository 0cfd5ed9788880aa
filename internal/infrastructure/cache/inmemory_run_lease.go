package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
)

// InMemoryRunLease implements integration.RunLease with a map.
// It only excludes runs within one process.
type InMemoryRunLease struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

// NewInMemoryRunLease creates an empty in-memory lease table
func NewInMemoryRunLease() *InMemoryRunLease {
	return &InMemoryRunLease{
		leases: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Acquire takes the lease on task unless a live lease exists
func (l *InMemoryRunLease) Acquire(_ context.Context, task string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiresAt, held := l.leases[task]; held && now.Before(expiresAt) {
		return false, nil
	}
	l.leases[task] = now.Add(ttl)
	return true, nil
}

// Release drops the lease on task
func (l *InMemoryRunLease) Release(_ context.Context, task string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, task)
	return nil
}

// Size returns the number of held leases, expired ones included
func (l *InMemoryRunLease) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leases)
}

var _ integration.RunLease = (*InMemoryRunLease)(nil)

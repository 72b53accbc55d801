// Package lease provides cooperative, time-bounded mutual exclusion for
// ingestion and index regeneration. Acquisition failure is a silent no-op
// for the caller: the concurrent holder is assumed to perform equivalent
// work.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/pborman/uuid"
)

// DefaultTTL bounds how long a crashed holder can block other workers
const DefaultTTL = time.Hour

// Lease is a held lease; Release is safe to call exactly once and must be
// called on every exit path.
type Lease interface {
	Release(ctx context.Context) error
}

// Provider hands out leases keyed by arbitrary strings
type Provider interface {
	// TryAcquire returns (lease, true) on success or (nil, false) when the
	// lease is already held. It never blocks waiting for the holder.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// DistributionKey builds the lease key guarding index regeneration of one
// distribution.
func DistributionKey(scopeType, scopeID string) string {
	return "distribution:" + scopeType + ":" + scopeID
}

// PackageFileKey builds the lease key guarding ingestion of one artifact
func PackageFileKey(packageFileID string) string {
	return "package_file:" + packageFileID
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryProvider is an in-process lease provider for tests and single-node
// deployments.
type MemoryProvider struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	// clock is overridable in tests
	clock func() time.Time
}

// NewMemoryProvider creates an empty in-process provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		held:  make(map[string]memoryEntry),
		clock: time.Now,
	}
}

// SetClock overrides the provider's time source
func (p *MemoryProvider) SetClock(clock func() time.Time) {
	p.clock = clock
}

type memoryLease struct {
	provider *MemoryProvider
	key      string
	token    string
}

func (l *memoryLease) Release(_ context.Context) error {
	l.provider.mu.Lock()
	defer l.provider.mu.Unlock()

	if entry, ok := l.provider.held[l.key]; ok && entry.token == l.token {
		delete(l.provider.held, l.key)
	}
	return nil
}

// TryAcquire implements Provider
func (p *MemoryProvider) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	if entry, ok := p.held[key]; ok && entry.expires.After(now) {
		return nil, false, nil
	}

	token := uuid.New()
	p.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLease{provider: p, key: key, token: token}, true, nil
}

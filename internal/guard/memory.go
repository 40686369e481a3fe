package guard

import (
	"context"
	"sync"
	"time"

	"github.com/soraiyu/KyuubiMask/internal/identity"
)

// MemoryGuard is an expiring in-process set. Thread-safe.
// Expired entries are ignored on lookup; StartCleanup removes them in the
// background so a long burst of distinct notifications does not grow the map.
type MemoryGuard struct {
	entries         map[identity.Identity]time.Time // expiry per identity
	mu              sync.Mutex
	lease           time.Duration
	cleanupInterval time.Duration
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
}

// NewMemoryGuard returns a guard with the default lease and a one minute cleanup interval.
func NewMemoryGuard() *MemoryGuard {
	return NewMemoryGuardWithConfig(DefaultLease, time.Minute)
}

// NewMemoryGuardWithConfig lets tests shorten the lease and cleanup interval.
func NewMemoryGuardWithConfig(lease, cleanupInterval time.Duration) *MemoryGuard {
	if lease <= 0 {
		lease = DefaultLease
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryGuard{
		entries:         make(map[identity.Identity]time.Time),
		lease:           lease,
		cleanupInterval: cleanupInterval,
		stopChan:        make(chan struct{}),
	}
}

func (g *MemoryGuard) Acquire(_ context.Context, id identity.Identity) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if expiry, ok := g.entries[id]; ok && now.Before(expiry) {
		return false, nil
	}
	g.entries[id] = now.Add(g.lease)
	return true, nil
}

func (g *MemoryGuard) ReleaseAfter(_ context.Context, id identity.Identity, delay time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if delay <= 0 {
		delete(g.entries, id)
		return nil
	}
	if _, ok := g.entries[id]; ok {
		g.entries[id] = time.Now().Add(delay)
	}
	return nil
}

func (g *MemoryGuard) Release(ctx context.Context, id identity.Identity) error {
	return g.ReleaseAfter(ctx, id, 0)
}

// Len returns the number of identities currently in flight.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	n := 0
	for _, expiry := range g.entries {
		if now.Before(expiry) {
			n++
		}
	}
	return n
}

// StartCleanup runs the janitor until ctx is cancelled or Stop is called.
func (g *MemoryGuard) StartCleanup(ctx context.Context) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-g.stopChan:
				return
			case <-ticker.C:
				g.cleanup()
			}
		}
	}()
}

// Stop signals the janitor to exit and waits for it. Safe to call more than once.
func (g *MemoryGuard) Stop() {
	g.once.Do(func() {
		close(g.stopChan)
	})
	g.wg.Wait()
}

func (g *MemoryGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for id, expiry := range g.entries {
		if !now.Before(expiry) {
			delete(g.entries, id)
		}
	}
}

// size reports raw map size including expired entries; used by tests.
func (g *MemoryGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

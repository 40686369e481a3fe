package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/soraiyu/KyuubiMask/internal/identity"
)

func TestMemoryGuard_Acquire(t *testing.T) {
	ctx := context.Background()
	id := identity.Derive("com.example.chat", 7, "")

	t.Run("Second acquire of an in-flight id fails", func(t *testing.T) {
		g := NewMemoryGuard()

		ok, err := g.Acquire(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = g.Acquire(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, g.Len())
	})

	t.Run("Distinct ids do not block each other", func(t *testing.T) {
		g := NewMemoryGuard()
		other := identity.Derive("com.example.chat", 8, "")

		ok1, _ := g.Acquire(ctx, id)
		ok2, _ := g.Acquire(ctx, other)
		assert.True(t, ok1)
		assert.True(t, ok2)
	})

	t.Run("Release makes the id available again", func(t *testing.T) {
		g := NewMemoryGuard()
		_, _ = g.Acquire(ctx, id)

		require.NoError(t, g.Release(ctx, id))

		ok, _ := g.Acquire(ctx, id)
		assert.True(t, ok)
	})

	t.Run("ReleaseAfter keeps the id for the grace delay", func(t *testing.T) {
		g := NewMemoryGuard()
		_, _ = g.Acquire(ctx, id)

		require.NoError(t, g.ReleaseAfter(ctx, id, 50*time.Millisecond))

		ok, _ := g.Acquire(ctx, id)
		assert.False(t, ok, "still inside the grace window")

		require.Eventually(t, func() bool {
			ok, _ := g.Acquire(ctx, id)
			return ok
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Lease bounds an unreleased entry", func(t *testing.T) {
		g := NewMemoryGuardWithConfig(30*time.Millisecond, time.Minute)
		_, _ = g.Acquire(ctx, id)

		require.Eventually(t, func() bool {
			ok, _ := g.Acquire(ctx, id)
			return ok
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Concurrent acquire admits exactly one", func(t *testing.T) {
		g := NewMemoryGuard()
		var admitted atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := g.Acquire(ctx, id); ok {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), admitted.Load())
	})
}

func TestMemoryGuard_Cleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewMemoryGuardWithConfig(10*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, _ = g.Acquire(ctx, identity.Derive("com.example.chat", i, ""))
	}
	require.Equal(t, 10, g.size())

	g.StartCleanup(ctx)

	require.Eventually(t, func() bool {
		return g.size() == 0
	}, time.Second, 10*time.Millisecond)

	g.Stop()
	g.Stop() // idempotent
}

func TestMemoryGuard_CleanupStopsOnContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewMemoryGuardWithConfig(time.Second, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	g.StartCleanup(ctx)
	cancel()
	g.wg.Wait()
}

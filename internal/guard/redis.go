package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/soraiyu/KyuubiMask/internal/identity"
)

// LockClient is the subset of Redis commands the distributed guard needs.
type LockClient interface {
	// SetNX stores key only if absent, with a TTL. Returns true when stored.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Expire resets the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// RedisGuard shares the in-flight set between replicas consuming the same
// event stream. Each identity is a key written with SET NX PX, so the
// check-and-insert is atomic on the server and the lease bounds its lifetime.
type RedisGuard struct {
	client    LockClient
	namespace string
	lease     time.Duration
}

// NewRedisGuard scopes keys by namespace (typically the profile id).
func NewRedisGuard(client LockClient, namespace string, lease time.Duration) *RedisGuard {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisGuard{client: client, namespace: namespace, lease: lease}
}

func (g *RedisGuard) Acquire(ctx context.Context, id identity.Identity) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(id), g.lease)
	if err != nil {
		return false, fmt.Errorf("inflight acquire %s: %w", id, err)
	}
	return ok, nil
}

func (g *RedisGuard) ReleaseAfter(ctx context.Context, id identity.Identity, delay time.Duration) error {
	if delay <= 0 {
		return g.Release(ctx, id)
	}
	if err := g.client.Expire(ctx, g.key(id), delay); err != nil {
		return fmt.Errorf("inflight release %s: %w", id, err)
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, id identity.Identity) error {
	if err := g.client.Del(ctx, g.key(id)); err != nil {
		return fmt.Errorf("inflight release %s: %w", id, err)
	}
	return nil
}

func (g *RedisGuard) key(id identity.Identity) string {
	return fmt.Sprintf("kyuubimask:inflight:%s:%s", g.namespace, id)
}

// Package guard implements the in-flight set that stops the same logical
// notification from being masked twice while a previous pass is still settling.
package guard

import (
	"context"
	"time"

	"github.com/soraiyu/KyuubiMask/internal/identity"
)

// DefaultLease bounds how long an identity can stay in flight if the holder
// never schedules its release.
const DefaultLease = 10 * time.Second

// Guard is an atomic check-and-insert set of identities.
type Guard interface {
	// Acquire inserts id and returns true, or returns false if id is already in flight.
	Acquire(ctx context.Context, id identity.Identity) (bool, error)

	// ReleaseAfter keeps id in flight for delay more, then drops it.
	ReleaseAfter(ctx context.Context, id identity.Identity, delay time.Duration) error

	// Release drops id immediately.
	Release(ctx context.Context, id identity.Identity) error
}

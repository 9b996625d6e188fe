// Package lock serializes blob garbage-collection runs. A single engine
// process uses the in-memory slot; multiple processes sharing one blob
// directory coordinate through Redis.
package lock

import (
	"context"
	"time"
)

// Locker guards the single GC slot. There is exactly one lockable resource,
// so the interface carries no key parameter.
type Locker interface {
	// TryAcquire claims the GC slot until Release or until ttl expires.
	// Returns false without blocking when another holder is active.
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)

	// Release frees the slot when held by this locker.
	// Returns false when the slot was not held (or already expired).
	Release(ctx context.Context) (bool, error)
}

package lock

import (
	"context"
	"time"
)

// NoopLocker never contends. Used in tests and in one-shot tooling whose
// coordination is external.
type NoopLocker struct{}

// NewNoopLocker creates a new no-op GC locker.
func NewNoopLocker() *NoopLocker {
	return &NoopLocker{}
}

// TryAcquire always succeeds.
func (NoopLocker) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return true, nil
}

// Release always reports held.
func (NoopLocker) Release(ctx context.Context) (bool, error) {
	return true, nil
}

// Ensure NoopLocker implements Locker.
var _ Locker = (*NoopLocker)(nil)

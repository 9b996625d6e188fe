package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker holds the GC slot in process memory. Sufficient for the
// embedded single-process deployment; expiry exists only so a leaked hold
// (a crashed GC goroutine) cannot wedge the scheduler forever.
type MemoryLocker struct {
	mu        sync.Mutex
	heldUntil time.Time
}

// NewMemoryLocker creates a new in-memory GC locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{}
}

// TryAcquire claims the slot unless an unexpired hold exists.
func (m *MemoryLocker) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Before(m.heldUntil) {
		return false, nil
	}
	m.heldUntil = now.Add(ttl)
	return true, nil
}

// Release frees the slot.
func (m *MemoryLocker) Release(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	held := time.Now().Before(m.heldUntil)
	m.heldUntil = time.Time{}
	return held, nil
}

// Ensure MemoryLocker implements Locker.
var _ Locker = (*MemoryLocker)(nil)

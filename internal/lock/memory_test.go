package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSingleSlot(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The slot is taken until released.
	ok, err = l.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	held, err := l.Release(ctx)
	require.NoError(t, err)
	require.True(t, held)

	ok, err = l.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	// A leaked hold lapses on its own.
	time.Sleep(5 * time.Millisecond)
	ok, err = l.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLockerReleaseWithoutHold(t *testing.T) {
	l := NewMemoryLocker()

	held, err := l.Release(context.Background())
	require.NoError(t, err)
	require.False(t, held)
}

package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializesSameKey(t *testing.T) {
	l := New(8)

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock(1, "key")
			counter++
			l.Unlock(1, "key")
		}()
	}
	wg.Wait()

	require.Equal(t, 100, counter)
}

func TestDistinctKeysIndependent(t *testing.T) {
	l := New(DefaultStripes)

	// Find a key on a different stripe than "a".
	other := "b"
	for i := 0; l.index(2, other) == l.index(1, "a") && i < 1000; i++ {
		other += "b"
	}
	require.NotEqual(t, l.index(1, "a"), l.index(2, other))

	l.Lock(1, "a")
	done := make(chan struct{})
	go func() {
		l.Lock(2, other)
		l.Unlock(2, other)
		close(done)
	}()
	<-done
	l.Unlock(1, "a")
}

func TestZeroStripesFallback(t *testing.T) {
	l := New(0)
	l.Lock(1, "x")
	l.Unlock(1, "x")
}

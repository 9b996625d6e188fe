package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// blobGCKey is the Redis key naming the shared GC slot.
const blobGCKey = "alexander:lock:gc:blob"

// RedisLocker holds the GC slot in Redis so engine processes sharing one
// blob directory never sweep concurrently. Ownership is tracked by a random
// token; only the acquiring locker can release its own hold.
type RedisLocker struct {
	client *redis.Client
	token  string
}

// releaseScript deletes the slot only when this locker's token still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisLocker creates a new Redis-backed GC locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return &RedisLocker{
		client: client,
		token:  hex.EncodeToString(buf),
	}
}

// TryAcquire claims the slot with SET NX and the given expiry.
func (l *RedisLocker) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, blobGCKey, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire gc lock: %w", err)
	}
	return ok, nil
}

// Release frees the slot when this locker's token still owns it.
func (l *RedisLocker) Release(ctx context.Context) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{blobGCKey}, l.token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release gc lock: %w", err)
	}
	return n == 1, nil
}

// Ensure RedisLocker implements Locker.
var _ Locker = (*RedisLocker)(nil)

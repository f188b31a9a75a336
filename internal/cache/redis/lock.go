package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// compareAndDelete removes KEYS[1] only while it holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

const releaseTimeout = 5 * time.Second

// LockManager implements domain.LockManager. Each lock is a key set with
// NX and a TTL whose value is the holder's random token.
type LockManager struct {
	c *Client
}

// NewLockManager creates a LockManager on c.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{c: c}
}

// Acquire takes key for ttl or fails with domain.ErrLockHeld. The returned
// unlock is idempotent and leaves a lock that already expired and was
// re-taken by someone else untouched.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	held := heldLock{rdb: lm.c.rdb, key: lm.c.key("lock", key), token: uuid.NewString()}

	err := lm.c.rdb.SetArgs(ctx, held.key, held.token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	case err != nil:
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	}

	var once sync.Once
	return func() { once.Do(held.release) }, nil
}

type heldLock struct {
	rdb   *redis.Client
	key   string
	token string
}

// release runs on its own context: the acquiring one is often done by now.
func (l heldLock) release() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	_ = compareAndDelete.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)

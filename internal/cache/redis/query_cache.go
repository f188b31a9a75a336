package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// QueryCache implements domain.QueryCache with generation-scoped keys.
// Invalidate bumps the generation so every earlier entry becomes
// unreachable and expires on its own TTL.
type QueryCache struct {
	c   *Client
	ttl time.Duration
}

// NewQueryCache creates a QueryCache whose entries live for ttl.
func NewQueryCache(c *Client, ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &QueryCache{c: c, ttl: ttl}
}

func (qc *QueryCache) generation(ctx context.Context) (int64, error) {
	gen, err := qc.c.rdb.Get(ctx, qc.c.key("qcache", "gen")).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (qc *QueryCache) entryKey(gen int64, key string) string {
	return qc.c.key("qcache", strconv.FormatInt(gen, 10), key)
}

// Get decodes the cached value for key into dst. It reports false on a miss.
func (qc *QueryCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	gen, err := qc.generation(ctx)
	if err != nil {
		return false, fmt.Errorf("redis: query cache generation: %w", err)
	}
	data, err := qc.c.rdb.Get(ctx, qc.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: query cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("redis: query cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key in the current generation.
func (qc *QueryCache) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: query cache encode %s: %w", key, err)
	}
	gen, err := qc.generation(ctx)
	if err != nil {
		return fmt.Errorf("redis: query cache generation: %w", err)
	}
	if err := qc.c.rdb.Set(ctx, qc.entryKey(gen, key), data, qc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: query cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate starts a new generation.
func (qc *QueryCache) Invalidate(ctx context.Context) error {
	if err := qc.c.rdb.Incr(ctx, qc.c.key("qcache", "gen")).Err(); err != nil {
		return fmt.Errorf("redis: query cache invalidate: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.QueryCache = (*QueryCache)(nil)

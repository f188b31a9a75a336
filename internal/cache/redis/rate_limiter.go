package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// minRetry keeps Wait from spinning when the window is about to slide.
const minRetry = 10 * time.Millisecond

// RateLimiter implements domain.RateLimiter with one sliding-window sorted
// set per key. Wait uses the limit and window given at construction.
type RateLimiter struct {
	c      *Client
	limit  int
	window time.Duration
}

// NewRateLimiter creates a RateLimiter with Wait's default limit and window.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{c: c, limit: max(limit, 1), window: cmpOr(window, time.Second)}
}

type verdict struct {
	allowed    bool
	count      int64
	retryAfter time.Duration
}

func (rl *RateLimiter) check(ctx context.Context, key string, limit int, window time.Duration) (verdict, error) {
	res, err := slidingWindow.Run(ctx, rl.c.rdb,
		[]string{rl.c.key("ratelimit", key)},
		time.Now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return verdict{}, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 3 {
		return verdict{}, fmt.Errorf("redis: rate limit %s: script returned %d values", key, len(res))
	}
	return verdict{
		allowed:    res[0] == 1,
		count:      res[1],
		retryAfter: time.Duration(res[2]) * time.Microsecond,
	}, nil
}

// Allow admits one request for key if fewer than limit were admitted in the
// trailing window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	v, err := rl.check(ctx, key, limit, window)
	return v.allowed, err
}

// Wait blocks until key is admitted or ctx ends, sleeping until the oldest
// admitted request leaves the window between attempts.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		v, err := rl.check(ctx, key, rl.limit, rl.window)
		if err != nil {
			return err
		}
		if v.allowed {
			return nil
		}

		timer := time.NewTimer(min(max(v.retryAfter, minRetry), rl.window))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func cmpOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// QueryCache is an in-memory domain.QueryCache. Invalidate drops every
// entry.
type QueryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// NewQueryCache creates a cache whose entries live for ttl.
func NewQueryCache(ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &QueryCache{ttl: ttl, entries: make(map[string]cacheEntry), now: time.Now}
}

// Get decodes the cached value into dst.
func (c *QueryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().After(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("memory: query cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key.
func (c *QueryCache) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("memory: query cache encode %s: %w", key, err)
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{data: data, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Invalidate drops every entry.
func (c *QueryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}

// LockManager is an in-process domain.LockManager.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]time.Time
	now   func() time.Time
	nonce int64
	owner map[string]int64
}

// NewLockManager creates a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]time.Time), owner: make(map[string]int64), now: time.Now}
}

// Acquire takes key for ttl or returns domain.ErrLockHeld.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if exp, ok := l.held[key]; ok && l.now().Before(exp) {
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	l.nonce++
	token := l.nonce
	l.held[key] = l.now().Add(ttl)
	l.owner[key] = token

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.owner[key] == token {
				delete(l.held, key)
				delete(l.owner, key)
			}
		})
	}, nil
}

// RateLimiter is an in-process sliding-window domain.RateLimiter.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter whose Wait uses limit per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{hits: make(map[string][]time.Time), limit: limit, window: window, now: time.Now}
}

// Allow counts one request for key when it fits in the window.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-window)
	kept := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		r.hits[key] = kept
		return false, nil
	}
	r.hits[key] = append(kept, now)
	return true, nil
}

// Wait blocks until key is allowed under the default limit.
func (r *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		ok, _ := r.Allow(ctx, key, r.limit, r.window)
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("memory: rate limit wait %s: %w", key, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Compile-time interface checks.
var (
	_ domain.QueryCache  = (*QueryCache)(nil)
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.RateLimiter = (*RateLimiter)(nil)
)

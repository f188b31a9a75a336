package domain

import (
	"context"
	"time"
)

// Signal bus channels.
const (
	ChannelEvents     = "ch:events"
	ChannelInvalidate = "ch:invalidate"
	ChannelSettings   = "ch:settings"
	ChannelWhale      = "ch:whale"

	// StreamEvents is the bounded replay log of ingested events.
	StreamEvents = "stream:qx_events"
)

// QueryCache stores rendered query results. Invalidate makes every stored
// entry unreachable; entries are never patched in place.
type QueryCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Invalidate(ctx context.Context) error
}

// SettingsStore is the key-value store behind user settings. Values are
// JSON documents.
type SettingsStore interface {
	// Load returns ErrNotFound when the key has never been saved.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Event restricts audit listings to one event name.
	Event string
}

// EventSource is the read contract the query orchestrator needs. Rows are
// ordered by created_at descending and ranges are inclusive on both ends.
type EventSource interface {
	Count(ctx context.Context, filter EventFilter) (int64, error)
	FetchRange(ctx context.Context, filter EventFilter, start, end int) ([]Event, error)
}

// EventStore persists QX events.
type EventStore interface {
	EventSource
	Insert(ctx context.Context, e *Event) error
	ListByWallet(ctx context.Context, address string, limit int) ([]Event, error)
	ListBefore(ctx context.Context, before time.Time) ([]Event, error)
}

// WalletStore persists per-address activity counters.
type WalletStore interface {
	// Upsert creates the wallet on first sight, otherwise increments the
	// transaction count, refreshes last_seen_at and raises the latest tick.
	Upsert(ctx context.Context, address string, tick int64, seenAt time.Time) error
	Get(ctx context.Context, address string) (Wallet, error)
	Count(ctx context.Context) (int64, error)
	// FetchRange returns wallets ordered by latest tick descending. The range
	// is inclusive on both ends.
	FetchRange(ctx context.Context, start, end int) ([]Wallet, error)
}

// ChangeFeed streams insert notifications for the events table.
type ChangeFeed interface {
	Changes(ctx context.Context) (<-chan Change, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditEventArchive is the audit event written for each archived month.
const AuditEventArchive = "archive.qx_events"

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

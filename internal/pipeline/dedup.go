package pipeline

import (
	"sync"
	"time"
)

// Dedup remembers transaction ids delivered within a TTL window so webhook
// redeliveries are not stored twice. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // txId -> stored at
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a txId as a duplicate for ttl after it
// was marked.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen reports whether id was marked within the TTL window.
func (d *Dedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.seen[id]
	return ok && d.now().Sub(at) < d.ttl
}

// Mark records id as stored.
func (d *Dedup) Mark(id string) {
	d.mu.Lock()
	d.seen[id] = d.now()
	d.mu.Unlock()
}

// Cleanup removes entries that have expired beyond the TTL.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of tracked ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

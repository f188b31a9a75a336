// Package memory provides in-process implementations of the domain stores.
// They back the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// EventStore is an in-memory implementation of domain.EventStore and
// domain.ChangeFeed.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event
	subs   map[chan domain.Change]struct{}
	now    func() time.Time
}

// NewEventStore creates an empty store.
func NewEventStore() *EventStore {
	return &EventStore{
		subs: make(map[chan domain.Change]struct{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores a copy of e, assigning an id and created_at when missing.
func (s *EventStore) Insert(_ context.Context, e *domain.Event) error {
	if e == nil {
		return domain.ErrInvalidPayload
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.mu.Lock()
	s.events = append(s.events, *e)
	subs := make([]chan domain.Change, 0, len(s.subs))
	for ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	change := domain.Change{Table: "qx_events", ID: e.ID, Applied: e.CreatedAt}
	for _, ch := range subs {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

// Count returns the number of rows matching filter.
func (s *EventStore) Count(_ context.Context, filter domain.EventFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if filter.Matches(e) {
			n++
		}
	}
	return n, nil
}

// FetchRange returns matching rows [start, end] ordered by created_at desc.
func (s *EventStore) FetchRange(_ context.Context, filter domain.EventFilter, start, end int) ([]domain.Event, error) {
	rows := s.sorted(filter.Matches)
	return sliceRange(rows, start, end), nil
}

// ListByWallet returns the most recent rows where address is the source or
// destination.
func (s *EventStore) ListByWallet(_ context.Context, address string, limit int) ([]domain.Event, error) {
	rows := s.sorted(func(e domain.Event) bool {
		return e.SourceID == address || e.DestID == address
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// ListBefore returns rows created strictly before the cutoff, oldest first.
func (s *EventStore) ListBefore(_ context.Context, before time.Time) ([]domain.Event, error) {
	rows := s.sorted(func(e domain.Event) bool {
		return e.CreatedAt.Before(before)
	})
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Changes streams a notification for every insert until ctx is done.
func (s *EventStore) Changes(ctx context.Context) (<-chan domain.Change, error) {
	ch := make(chan domain.Change, 64)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	out := make(chan domain.Change, 64)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-ch:
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// sorted returns matching rows newest first. Rows with equal created_at keep
// reverse insertion order.
func (s *EventStore) sorted(keep func(domain.Event) bool) []domain.Event {
	s.mu.RLock()
	rows := make([]domain.Event, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		if keep(s.events[i]) {
			rows = append(rows, s.events[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows
}

// sliceRange applies an inclusive [start, end] window.
func sliceRange[T any](rows []T, start, end int) []T {
	if start < 0 {
		start = 0
	}
	if start >= len(rows) || end < start {
		return []T{}
	}
	if end >= len(rows) {
		end = len(rows) - 1
	}
	out := make([]T, end-start+1)
	copy(out, rows[start:end+1])
	return out
}

// Compile-time interface checks.
var (
	_ domain.EventStore = (*EventStore)(nil)
	_ domain.ChangeFeed = (*EventStore)(nil)
)

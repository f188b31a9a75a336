package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/store/memory"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func annotated(from, token string, amount float64, whale bool, at time.Time) domain.AnnotatedEvent {
	return domain.AnnotatedEvent{
		DisplayEvent: domain.DisplayEvent{
			ID:          from + "-" + at.Format(time.RFC3339),
			From:        from,
			Token:       token,
			TimestampMs: at.UnixMilli(),
		},
		IsWhale:       whale,
		NumericAmount: amount,
	}
}

// seedStore inserts events whose created_at follows slice order, so the
// last element is the newest row.
func seedStore(t *testing.T, events []domain.Event) *memory.EventStore {
	t.Helper()
	store := memory.NewEventStore()
	for i := range events {
		if events[i].CreatedAt.IsZero() {
			events[i].CreatedAt = testNow.Add(-time.Duration(len(events)-i) * time.Minute)
		}
		if events[i].TimestampMs == 0 {
			events[i].TimestampMs = events[i].CreatedAt.UnixMilli()
		}
		require.NoError(t, store.Insert(context.Background(), &events[i]))
	}
	return store
}

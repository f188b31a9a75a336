package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

func seedEvents(t *testing.T, s *EventStore) []domain.Event {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{ProcedureTypeName: "AddToBidOrder", SourceID: "AAA", DestID: "BBB", Amount: "10", TickNumber: 100, AssetName: "CFB", TimestampMs: base.UnixMilli()},
		{ProcedureTypeName: "AddToAskOrder", SourceID: "CCC", DestID: "AAA", Amount: "20", TickNumber: 101, TimestampMs: base.Add(time.Minute).UnixMilli()},
		{ProcedureTypeName: "IssueAsset", SourceID: "DDD", DestID: "EEE", Amount: "30", TickNumber: 102, AssetName: "QUBIC", TimestampMs: base.Add(2 * time.Minute).UnixMilli()},
		{ProcedureTypeName: "AddToBidOrder", SourceID: "FFF", DestID: "GGG", Amount: "40", TickNumber: 103, AssetName: "qmine", TimestampMs: base.Add(3 * time.Minute).UnixMilli()},
	}
	ctx := context.Background()
	for i := range events {
		events[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Insert(ctx, &events[i]))
		require.NotEmpty(t, events[i].ID)
	}
	return events
}

func TestEventStore_FetchRangeOrdersNewestFirst(t *testing.T) {
	s := NewEventStore()
	seedEvents(t, s)
	ctx := context.Background()

	rows, err := s.FetchRange(ctx, domain.EventFilter{}, 0, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(103), rows[0].TickNumber)
	assert.Equal(t, int64(102), rows[1].TickNumber)

	rows, err = s.FetchRange(ctx, domain.EventFilter{}, 2, 999)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(100), rows[1].TickNumber)

	rows, err = s.FetchRange(ctx, domain.EventFilter{}, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEventStore_Filters(t *testing.T) {
	s := NewEventStore()
	seedEvents(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter domain.EventFilter
		want   int64
	}{
		{"no filter", domain.EventFilter{}, 4},
		{"address substring", domain.EventFilter{Search: "aaa"}, 2},
		{"tick exact", domain.EventFilter{Search: "102"}, 1},
		{"token symbol substring", domain.EventFilter{Search: "qmi"}, 1},
		{"search native symbol covers unset asset", domain.EventFilter{Search: "qub"}, 2},
		{"native token matches empty and explicit", domain.EventFilter{Token: "qubic"}, 2},
		{"token case-insensitive", domain.EventFilter{Token: "QMINE"}, 1},
		{"procedure", domain.EventFilter{ProcedureName: "AddToBidOrder"}, 2},
		{"combined", domain.EventFilter{ProcedureName: "AddToBidOrder", Token: "CFB"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)

			rows, err := s.FetchRange(ctx, tt.filter, 0, 100)
			require.NoError(t, err)
			assert.Len(t, rows, int(tt.want))
		})
	}

	since := time.Date(2025, 1, 1, 0, 2, 0, 0, time.UTC)
	n, err := s.Count(ctx, domain.EventFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestEventStore_ListByWalletAndBefore(t *testing.T) {
	s := NewEventStore()
	events := seedEvents(t, s)
	ctx := context.Background()

	rows, err := s.ListByWallet(ctx, "AAA", 20)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(101), rows[0].TickNumber)

	old, err := s.ListBefore(ctx, events[2].CreatedAt)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, int64(100), old[0].TickNumber)
}

func TestEventStore_ChangesNotifiesInserts(t *testing.T) {
	s := NewEventStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Changes(ctx)
	require.NoError(t, err)

	e := domain.Event{ProcedureTypeName: "IssueAsset", SourceID: "X"}
	require.NoError(t, s.Insert(ctx, &e))

	select {
	case c := <-ch:
		assert.Equal(t, e.ID, c.ID)
		assert.Equal(t, "qx_events", c.Table)
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestWalletStore_Upsert(t *testing.T) {
	s := NewWalletStore()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, "W1", 50, t0))
	require.NoError(t, s.Upsert(ctx, "W1", 40, t0.Add(time.Hour)))
	require.NoError(t, s.Upsert(ctx, "W2", 60, t0))

	w, err := s.Get(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), w.TransactionCount)
	assert.Equal(t, int64(50), w.LatestTickNumber)
	assert.True(t, w.FirstSeenAt.Equal(t0))
	assert.True(t, w.LastSeenAt.Equal(t0.Add(time.Hour)))

	rows, err := s.FetchRange(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "W2", rows[0].Address)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSettingsStore_LoadSave(t *testing.T) {
	s := NewSettingsStore()
	ctx := context.Background()

	_, err := s.Load(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Save(ctx, "k", []byte(`[1]`)))
	v, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(v))
}

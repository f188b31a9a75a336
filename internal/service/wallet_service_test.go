package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/store/memory"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

type walletFixture struct {
	wallets *memory.WalletStore
	labels  *LabelStore
	bus     *memory.SignalBus
	svc     *WalletService
}

func newWalletFixture(t *testing.T) *walletFixture {
	t.Helper()
	ctx := context.Background()
	f := &walletFixture{
		wallets: memory.NewWalletStore(),
		labels:  NewLabelStore(memory.NewSettingsStore()),
		bus:     memory.NewSignalBus(),
	}
	for i, addr := range []string{"ALPHA", "BRAVO", "CHARLIE"} {
		require.NoError(t, f.wallets.Upsert(ctx, addr, int64(100*(i+1)), testNow))
	}
	events := seedStore(t, []domain.Event{
		{ProcedureTypeName: "AddToBidOrder", SourceID: "ALPHA", DestID: "QX", Amount: "10", AssetName: "CFB"},
		{ProcedureTypeName: "IssueAsset", SourceID: "BRAVO", DestID: "ALPHA", Amount: "5000000"},
	})
	reg := whale.NewRegistry(memory.NewSettingsStore(), testLogger())
	f.svc = NewWalletService(f.wallets, events, f.labels, reg, nil, f.bus, testLogger())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestWalletService_List(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()
	_, err := f.labels.Add(ctx, "BRAVO", "Whale")
	require.NoError(t, err)
	_, err = f.labels.Add(ctx, "ALPHA", "partner")
	require.NoError(t, err)

	page, err := f.svc.List(ctx, WalletQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Wallets, 3)
	assert.Equal(t, "CHARLIE", page.Wallets[0].Address)
	assert.NotNil(t, page.Wallets[0].Labels)

	page, err = f.svc.List(ctx, WalletQuery{Sort: SortLowest})
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", page.Wallets[0].Address)

	tests := []struct {
		name string
		q    WalletQuery
		want []string
	}{
		{"address", WalletQuery{Search: "rav"}, []string{"BRAVO"}},
		{"tick", WalletQuery{Search: "300"}, []string{"CHARLIE"}},
		{"label", WalletQuery{Search: "PART"}, []string{"ALPHA"}},
		{"segment", WalletQuery{Segment: "whale"}, []string{"BRAVO"}},
		{"all segments", WalletQuery{Segment: "all-segments"}, []string{"CHARLIE", "BRAVO", "ALPHA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.List(ctx, tt.q)
			require.NoError(t, err)
			var got []string
			for _, w := range page.Wallets {
				got = append(got, w.Address)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWalletService_ListPaginates(t *testing.T) {
	ctx := context.Background()
	wallets := memory.NewWalletStore()
	for i := 0; i < 1205; i++ {
		require.NoError(t, wallets.Upsert(ctx, fmt.Sprintf("W%04d", i), int64(i), testNow))
	}
	reg := whale.NewRegistry(memory.NewSettingsStore(), testLogger())
	svc := NewWalletService(wallets, memory.NewEventStore(), NewLabelStore(memory.NewSettingsStore()), reg, nil, nil, testLogger())

	page, err := svc.List(ctx, WalletQuery{Page: 24})
	require.NoError(t, err)
	assert.Equal(t, 1205, page.Total)
	assert.Equal(t, 25, page.TotalPages)
	require.Len(t, page.Wallets, 5)
	assert.Equal(t, int64(4), page.Wallets[0].LatestTickNumber)

	page, err = svc.List(ctx, WalletQuery{Page: 99})
	require.NoError(t, err)
	assert.Empty(t, page.Wallets)

	page, err = svc.List(ctx, WalletQuery{Page: math.MaxInt, PageSize: math.MaxInt})
	require.NoError(t, err)
	assert.Empty(t, page.Wallets)
	assert.Equal(t, 500, page.PageSize)
	assert.Equal(t, 3, page.TotalPages)
}

func TestWalletService_Detail(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	d, err := f.svc.Detail(ctx, "ALPHA")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", d.Wallet.Address)
	require.Len(t, d.Events, 2)
	assert.Equal(t, "BRAVO", d.Events[0].From)
	assert.True(t, d.Events[0].IsWhale)
	assert.True(t, d.IsWhale)
	assert.Empty(t, d.Labels)

	_, err = f.svc.Detail(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Analyze(ctx, "ALPHA")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWalletService_LabelEditsPublish(t *testing.T) {
	f := newWalletFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := f.bus.Subscribe(ctx, domain.ChannelSettings)
	require.NoError(t, err)

	got, err := f.svc.AddLabel(ctx, "ALPHA", "vip")
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, got)

	select {
	case payload := <-changes:
		var msg map[string]string
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, KeyWalletLabels, msg["key"])
		assert.Equal(t, "ALPHA", msg["address"])
	case <-time.After(time.Second):
		t.Fatal("no settings change published")
	}

	got, err = f.svc.UpdateLabel(ctx, "ALPHA", 0, "VIP")
	require.NoError(t, err)
	assert.Equal(t, []string{"VIP"}, got)

	got, err = f.svc.SetLabels(ctx, "ALPHA", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = f.svc.RemoveLabel(ctx, "ALPHA", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	_, err = f.svc.RemoveLabel(ctx, "ALPHA", 3)
	assert.ErrorIs(t, err, domain.ErrLabelIndex)
}

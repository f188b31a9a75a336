package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/store/memory"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

func TestSettingsService(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := memory.NewQueryCache(time.Minute)
	bus := memory.NewSignalBus()
	reg := whale.NewRegistry(memory.NewSettingsStore(), testLogger())
	svc := NewSettingsService(reg, cache, bus, testLogger())
	defer svc.Close()

	changes, err := bus.Subscribe(ctx, domain.ChannelSettings)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, "events", 1))

	assert.Equal(t, whale.DefaultThreshold, svc.Thresholds().DefaultThreshold)

	conf, err := svc.SetThresholds(ctx, []domain.Threshold{{Token: "cfb", Amount: 7}})
	require.NoError(t, err)
	assert.Equal(t, "Settings Saved", conf.Title)

	var v int
	hit, err := cache.Get(ctx, "events", &v)
	require.NoError(t, err)
	assert.False(t, hit, "settings change drops cached views")

	select {
	case payload := <-changes:
		var got whale.Settings
		require.NoError(t, json.Unmarshal(payload, &got))
		require.Len(t, got.Thresholds, 1)
		assert.Equal(t, int64(7), got.Thresholds[0].Amount)
	case <-time.After(time.Second):
		t.Fatal("no settings broadcast")
	}

	_, err = svc.SetDefault(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)
	_, err = svc.SetDefault(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), svc.Thresholds().DefaultThreshold)
}

func TestArchiveService_List(t *testing.T) {
	ctx := context.Background()
	blobs := memory.NewBlobStore()
	for _, p := range []string{"archive/qx_events/2025-01.jsonl", "archive/qx_events/2025-02.jsonl", "other/x"} {
		require.NoError(t, blobs.Put(ctx, p, strings.NewReader("{}\n"), "application/x-ndjson"))
	}

	infos, err := NewArchiveService(blobs, nil, "archive/qx_events/").List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "archive/qx_events/2025-02.jsonl", infos[0].Path)
	assert.Equal(t, "2025-02", infos[0].Month)

	infos, err = NewArchiveService(nil, nil, "x").List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestArchiveService_History(t *testing.T) {
	ctx := context.Background()
	audit := memory.NewAuditStore()
	for i := range 3 {
		require.NoError(t, audit.Log(ctx, domain.AuditEventArchive, map[string]any{"run": i}))
	}
	require.NoError(t, audit.Log(ctx, "other", nil))

	svc := NewArchiveService(nil, audit, "archive/")
	runs, err := svc.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Detail["run"])

	runs, err = svc.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, err = NewArchiveService(nil, nil, "archive/").History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

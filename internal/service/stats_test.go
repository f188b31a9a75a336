package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

func TestComputeKPI(t *testing.T) {
	old := testNow.Add(-48 * time.Hour)
	events := []domain.AnnotatedEvent{
		annotated("A", "QUBIC", 2_000_000, true, testNow.Add(-time.Hour)),
		annotated("B", "CFB", 100, false, testNow.Add(-2*time.Hour)),
		annotated("A", "CFB", 50, false, old),
		annotated("C", "QMINE", 600_000, true, old),
	}

	got := ComputeKPI(events, testNow)
	assert.Equal(t, int64(4), got.TotalEvents)
	assert.Equal(t, int64(2), got.WhalesDetected)
	assert.InDelta(t, 2_600_150, got.TotalVolume, 0.001)
	assert.InDelta(t, 3, float64(got.ActiveWallets), 1)

	assert.Equal(t, int64(2), got.TotalEvents24h)
	assert.Equal(t, int64(1), got.WhalesDetected24h)
	assert.InDelta(t, 2_000_100, got.TotalVolume24h, 0.001)
	assert.InDelta(t, 2, float64(got.ActiveWallets24h), 1)

	empty := ComputeKPI(nil, testNow)
	assert.Zero(t, empty.TotalEvents)
	assert.Zero(t, empty.ActiveWallets)
}

func TestBuildOverview_PrefersMostRecentWhale(t *testing.T) {
	events := []domain.AnnotatedEvent{
		annotated("A", "CFB", 20_000, false, testNow),
		annotated("B", "QUBIC", 3_000_000, true, testNow.Add(-time.Minute)),
		annotated("C", "QUBIC", 5_000_000, true, testNow.Add(-2*time.Minute)),
	}
	ov := BuildOverview(events)
	require.NotNil(t, ov.Headline)
	assert.True(t, ov.IsActualWhale)
	assert.Equal(t, "B", ov.Headline.From)
	assert.Len(t, ov.LiveEvents, 3)

	require.Len(t, ov.TopWallets, 3)
	assert.Equal(t, "C", ov.TopWallets[0].Address)
	assert.Equal(t, "5.0M", ov.TopWallets[0].VolumeDisplay)
	assert.Equal(t, "20.0K", ov.TopWallets[2].VolumeDisplay)
}

func TestBuildOverview_FallsBackToLargestEvent(t *testing.T) {
	events := []domain.AnnotatedEvent{
		annotated("A", "CFB", 9_999, false, testNow),
		annotated("B", "CFB", 15_000, false, testNow.Add(-time.Minute)),
		annotated("C", "CFB", 12_000, false, testNow.Add(-2*time.Minute)),
	}
	ov := BuildOverview(events)
	require.NotNil(t, ov.Headline)
	assert.False(t, ov.IsActualWhale)
	assert.Equal(t, "B", ov.Headline.From)

	ov = BuildOverview(events[:1])
	assert.Nil(t, ov.Headline)

	ov = BuildOverview(nil)
	assert.Nil(t, ov.Headline)
	assert.NotNil(t, ov.LiveEvents)
	assert.Empty(t, ov.TopWallets)
}

func TestBuildOverview_CapsLists(t *testing.T) {
	var events []domain.AnnotatedEvent
	for i := 0; i < 20; i++ {
		events = append(events, annotated(string(rune('A'+i)), "CFB", float64(i), false, testNow))
	}
	ov := BuildOverview(events)
	assert.Len(t, ov.LiveEvents, 15)
	assert.Len(t, ov.TopWallets, 5)
	assert.Equal(t, "T", ov.TopWallets[0].Address)
}

func TestUniqueTokens(t *testing.T) {
	events := []domain.AnnotatedEvent{
		annotated("A", "zeta", 1, false, testNow),
		annotated("A", "CFB", 1, false, testNow),
		annotated("A", "alpha", 1, false, testNow),
		annotated("A", " ", 1, false, testNow),
		annotated("A", "ZETA", 1, false, testNow),
	}
	assert.Equal(t,
		[]string{"QUBIC", "QMINE", "GARTH", "MATILDA", "CFB", "QXMR", "ALPHA", "ZETA"},
		UniqueTokens(events),
	)
	assert.Equal(t, domain.BaseTokens, UniqueTokens(nil))
}

package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want time.Time
	}{
		{"epoch ms int64", want.UnixMilli(), want},
		{"epoch seconds int64", want.Unix(), want},
		{"epoch ms int", int(want.UnixMilli()), want},
		{"epoch ms float", float64(want.UnixMilli()), want},
		{"numeric string ms", "1705314600000", want},
		{"numeric string seconds", "1705314600", want},
		{"json number", json.Number("1705314600000"), want},
		{"date time string", "2024-01-15 10:30:00", want},
		{"rfc3339", "2024-01-15T10:30:00Z", want},
		{"garbage", "yesterday-ish", now},
		{"empty", "", now},
		{"nil", nil, now},
		{"zero", int64(0), now},
		{"negative", int64(-5), now},
		{"unsupported type", struct{}{}, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(ParseTimestamp(tt.in, now)), "got %v", ParseTimestamp(tt.in, now))
		})
	}
}

func TestEpochMillis(t *testing.T) {
	assert.Equal(t, int64(1_700_000_000_000), EpochMillis(1_700_000_000))
	assert.Equal(t, int64(1_700_000_000_000), EpochMillis(1_700_000_000_000))
	assert.Equal(t, int64(0), EpochMillis(0))
}

package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// epochSecondsCutoff separates epoch seconds from epoch milliseconds. Any
// positive value below it is treated as seconds.
const epochSecondsCutoff = 1_000_000_000_000

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// EpochMillis converts an epoch value in seconds or milliseconds into
// milliseconds.
func EpochMillis(v int64) int64 {
	if v > 0 && v < epochSecondsCutoff {
		return v * 1000
	}
	return v
}

// ParseTimestamp accepts epoch milliseconds, epoch seconds, numeric strings,
// "YYYY-MM-DD HH:MM:SS" strings (UTC) and RFC 3339 strings. Anything it cannot
// read resolves to now.
func ParseTimestamp(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case nil:
		return now
	case time.Time:
		if t.IsZero() {
			return now
		}
		return t.UTC()
	case int64:
		return fromEpoch(t, now)
	case int:
		return fromEpoch(int64(t), now)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return now
		}
		return fromEpoch(int64(t), now)
	case json.Number:
		return parseTimestampString(t.String(), now)
	case string:
		return parseTimestampString(t, now)
	default:
		return now
	}
}

func fromEpoch(v int64, now time.Time) time.Time {
	if v <= 0 {
		return now
	}
	return time.UnixMilli(EpochMillis(v)).UTC()
}

func parseTimestampString(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpoch(n, now)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return fromEpoch(int64(f), now)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return now
}

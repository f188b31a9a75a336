// Package timeline partitions events into contiguous time slots for the
// activity and volume charts.
package timeline

import (
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/normalize"
)

const (
	day  = 24 * time.Hour
	week = 7 * day

	// minSlots is the smallest number of slots an "all" chart renders.
	minSlots = 12
)

// Range selects the window a chart covers.
type Range string

const (
	RangeAll Range = "all"
	Range1h  Range = "1h"
	Range6h  Range = "6h"
	Range12h Range = "12h"
	Range24h Range = "24h"
	Range7d  Range = "7d"
)

// ParseRange maps a query value to a Range. Unknown values select RangeAll.
func ParseRange(s string) Range {
	switch r := Range(s); r {
	case Range1h, Range6h, Range12h, Range24h, Range7d:
		return r
	default:
		return RangeAll
	}
}

// Duration returns the preset window length, or 0 for RangeAll.
func (r Range) Duration() time.Duration {
	switch r {
	case Range1h:
		return time.Hour
	case Range6h:
		return 6 * time.Hour
	case Range12h:
		return 12 * time.Hour
	case Range24h:
		return day
	case Range7d:
		return week
	default:
		return 0
	}
}

// layout returns the slot size and slot count for a preset.
func (r Range) layout() (time.Duration, int) {
	if r == Range7d {
		return day, 7
	}
	return r.Duration() / minSlots, minSlots
}

// Bucket partitions events into slots. Output is oldest slot first. For
// RangeAll the span runs from the earliest to the latest event; presets end
// at now. Every slot is half-open except the newest, which also holds events
// stamped exactly at the end of the span. loc only affects labels.
func Bucket(events []domain.DisplayEvent, r Range, now time.Time, loc *time.Location) []Slot {
	if loc == nil {
		loc = time.UTC
	}
	r = ParseRange(string(r))

	times := make([]time.Time, len(events))
	for i, e := range events {
		times[i] = EventTime(e, now)
	}

	var (
		end      time.Time
		slotSize time.Duration
		count    int
	)
	if r == RangeAll {
		start, last := spanOf(times, now)
		end = last
		slotSize = allSlotSize(last.Sub(start))
		count = max(minSlots, ceilDiv(last.Sub(start), slotSize))
	} else {
		end = now
		slotSize, count = r.layout()
	}

	weekly := r == RangeAll && slotSize >= week
	slots := make([]Slot, count)
	for j := range slots {
		back := count - 1 - j
		slotEnd := end.Add(-time.Duration(back) * slotSize)
		slotStart := slotEnd.Add(-slotSize)
		label, dateLabel := labels(slotStart, slotEnd, slotSize, weekly, loc)
		slots[j] = Slot{
			Start:     slotStart,
			End:       slotEnd,
			Label:     label,
			DateLabel: dateLabel,
		}
	}

	for i, e := range events {
		j, ok := slotIndex(times[i], end, slotSize, count)
		if !ok {
			continue
		}
		slots[j].add(kindOf(e), normalize.ParseAmount(e.Amount))
	}
	return slots
}

// EventTime returns the instant used to place e on the timeline. The raw
// millisecond timestamp wins; otherwise the formatted timestamp is parsed,
// falling back to now.
func EventTime(e domain.DisplayEvent, now time.Time) time.Time {
	if e.TimestampMs > 0 {
		return time.UnixMilli(normalize.EpochMillis(e.TimestampMs))
	}
	return normalize.ParseTimestamp(e.Timestamp, now)
}

// spanOf returns the earliest and latest positive instants, or now twice
// when there are none.
func spanOf(times []time.Time, now time.Time) (time.Time, time.Time) {
	var first, last time.Time
	found := false
	for _, t := range times {
		if t.UnixMilli() <= 0 {
			continue
		}
		if !found || t.Before(first) {
			first = t
		}
		if !found || t.After(last) {
			last = t
		}
		found = true
	}
	if !found {
		return now, now
	}
	return first, last
}

func allSlotSize(span time.Duration) time.Duration {
	switch {
	case span <= day:
		return time.Hour
	case span <= week:
		return 6 * time.Hour
	case span <= 30*day:
		return day
	default:
		return week
	}
}

func ceilDiv(span, size time.Duration) int {
	if span <= 0 {
		return 0
	}
	return int((span + size - 1) / size)
}

// slotIndex locates t among count slots of size ending at end. Slot i slots
// back from the newest covers [end-(i+1)*size, end-i*size); t == end belongs
// to the newest slot.
func slotIndex(t, end time.Time, size time.Duration, count int) (int, bool) {
	diff := end.Sub(t)
	if diff < 0 {
		return 0, false
	}
	back := 0
	if diff > 0 {
		back = ceilDiv(diff, size) - 1
	}
	if back >= count {
		return 0, false
	}
	return count - 1 - back, true
}

func kindOf(e domain.DisplayEvent) domain.EventKind {
	if e.Kind != domain.KindOther && e.Kind.Valid() {
		return e.Kind
	}
	return domain.ParseEventKind(e.Type)
}

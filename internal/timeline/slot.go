package timeline

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// Slot is one chart bar.
type Slot struct {
	Start     time.Time
	End       time.Time
	Label     string
	DateLabel string
	Counts    [domain.NumKinds]int
	Total     int
	Volume    float64
}

func (s *Slot) add(kind domain.EventKind, amount float64) {
	if !kind.Valid() {
		kind = domain.KindOther
	}
	s.Counts[kind]++
	s.Total++
	s.Volume += amount
}

// Category returns the count for a chart category key.
func (s Slot) Category(key string) int {
	n := 0
	for k := domain.EventKind(0); k < domain.NumKinds; k++ {
		if k.Category() == key {
			n += s.Counts[k]
		}
	}
	return n
}

// MarshalJSON renders the slot with one field per chart category.
func (s Slot) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"label":     s.Label,
		"dateLabel": s.DateLabel,
		"startTime": s.Start.UTC(),
		"endTime":   s.End.UTC(),
		"total":     s.Total,
		"volume":    s.Volume,
	}
	for _, c := range domain.Categories {
		out[c] = s.Category(c)
	}
	return json.Marshal(out)
}

// Totals sums a slot sequence.
type Totals struct {
	Events     int            `json:"events"`
	Volume     float64        `json:"volume"`
	Categories map[string]int `json:"categories"`
}

// Summarize adds up every slot.
func Summarize(slots []Slot) Totals {
	t := Totals{Categories: make(map[string]int, len(domain.Categories))}
	for _, c := range domain.Categories {
		t.Categories[c] = 0
	}
	for _, s := range slots {
		t.Events += s.Total
		t.Volume += s.Volume
		for k := domain.EventKind(0); k < domain.NumKinds; k++ {
			t.Categories[k.Category()] += s.Counts[k]
		}
	}
	return t
}

// labels renders the primary and secondary slot labels from the slot end.
// Weekly slots show their date range as the secondary label.
func labels(start, end time.Time, size time.Duration, weekly bool, loc *time.Location) (string, string) {
	s, e := start.In(loc), end.In(loc)
	switch {
	case weekly:
		return e.Format("Jan 2"), s.Format("Jan 2") + " - " + e.Format("Jan 2")
	case size >= day:
		return e.Format("Jan 2"), e.Format("Jan 2, 2006")
	default:
		return e.Format("15:04"), e.Format("Jan 2")
	}
}

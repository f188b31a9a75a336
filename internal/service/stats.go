package service

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/axiomhq/hyperloglog"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/normalize"
)

const (
	liveEventCount      = 15
	topWalletCount      = 5
	headlineFallbackMin = 10_000
)

// KPIStats are the headline counters of the overview page. Wallet counts
// are HyperLogLog estimates over source addresses.
type KPIStats struct {
	TotalEvents       int64   `json:"totalEvents"`
	ActiveWallets     uint64  `json:"activeWallets"`
	WhalesDetected    int64   `json:"whalesDetected"`
	TotalVolume       float64 `json:"totalVolume"`
	TotalEvents24h    int64   `json:"totalEvents24h"`
	ActiveWallets24h  uint64  `json:"activeWallets24h"`
	WhalesDetected24h int64   `json:"whalesDetected24h"`
	TotalVolume24h    float64 `json:"totalVolume24h"`
}

type kpiWindow struct {
	events  int64
	whales  int64
	volume  float64
	senders *hyperloglog.Sketch
}

func newKPIWindow() *kpiWindow {
	return &kpiWindow{senders: hyperloglog.New14()}
}

func (w *kpiWindow) add(e domain.AnnotatedEvent) {
	w.events++
	w.volume += e.NumericAmount
	if e.IsWhale {
		w.whales++
	}
	if e.From != "" {
		w.senders.Insert([]byte(e.From))
	}
}

// ComputeKPI derives the all-time and trailing 24h counters.
func ComputeKPI(events []domain.AnnotatedEvent, now time.Time) KPIStats {
	all, recent := newKPIWindow(), newKPIWindow()
	since := now.Add(-24 * time.Hour).UnixMilli()
	for _, e := range events {
		all.add(e)
		if e.TimestampMs >= since {
			recent.add(e)
		}
	}
	return KPIStats{
		TotalEvents:       all.events,
		ActiveWallets:     all.senders.Estimate(),
		WhalesDetected:    all.whales,
		TotalVolume:       all.volume,
		TotalEvents24h:    recent.events,
		ActiveWallets24h:  recent.senders.Estimate(),
		WhalesDetected24h: recent.whales,
		TotalVolume24h:    recent.volume,
	}
}

// TopWallet is a source address ranked by summed volume.
type TopWallet struct {
	Address       string  `json:"address"`
	Volume        float64 `json:"volume"`
	VolumeDisplay string  `json:"volumeDisplay"`
}

// Overview is the landing page payload.
type Overview struct {
	Headline      *domain.AnnotatedEvent  `json:"headline"`
	IsActualWhale bool                    `json:"isActualWhale"`
	TopWallets    []TopWallet             `json:"topWallets"`
	LiveEvents    []domain.AnnotatedEvent `json:"liveEvents"`
}

// BuildOverview assembles the overview from events sorted newest first. The
// headline is the most recent whale; without one it is the largest event of
// at least 10,000 and IsActualWhale is false.
func BuildOverview(events []domain.AnnotatedEvent) Overview {
	ov := Overview{
		TopWallets: topWallets(events, topWalletCount),
		LiveEvents: slices.Clone(events[:min(liveEventCount, len(events))]),
	}
	if ov.LiveEvents == nil {
		ov.LiveEvents = []domain.AnnotatedEvent{}
	}

	for i := range events {
		if events[i].IsWhale {
			e := events[i]
			ov.Headline, ov.IsActualWhale = &e, true
			return ov
		}
	}

	var best *domain.AnnotatedEvent
	for i := range events {
		e := &events[i]
		if e.NumericAmount < headlineFallbackMin {
			continue
		}
		if best == nil || e.NumericAmount > best.NumericAmount {
			best = e
		}
	}
	if best != nil {
		e := *best
		ov.Headline = &e
	}
	return ov
}

func topWallets(events []domain.AnnotatedEvent, n int) []TopWallet {
	volumes := make(map[string]float64)
	for _, e := range events {
		volumes[e.From] += e.NumericAmount
	}

	out := make([]TopWallet, 0, len(volumes))
	for addr, v := range volumes {
		out = append(out, TopWallet{Address: addr, Volume: v})
	}
	slices.SortFunc(out, func(a, b TopWallet) int {
		if c := cmp.Compare(b.Volume, a.Volume); c != 0 {
			return c
		}
		return strings.Compare(a.Address, b.Address)
	})
	out = out[:min(n, len(out))]
	for i := range out {
		out[i].VolumeDisplay = normalize.CompactAmount(out[i].Volume)
	}
	return out
}

// UniqueTokens lists the base tokens in their fixed order followed by every
// other token seen in events, upper-cased and sorted.
func UniqueTokens(events []domain.AnnotatedEvent) []string {
	seen := make(map[string]struct{}, len(domain.BaseTokens))
	for _, t := range domain.BaseTokens {
		seen[t] = struct{}{}
	}

	var extra []string
	for _, e := range events {
		t := strings.ToUpper(strings.TrimSpace(e.Token))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		extra = append(extra, t)
	}
	slices.Sort(extra)
	return append(slices.Clone(domain.BaseTokens), extra...)
}

// Package whale holds the per-token whale thresholds and the classifier that
// flags events at or above them.
package whale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// Settings keys used with domain.SettingsStore.
const (
	KeyThresholds = "whaleThresholds"
	KeyDefault    = "defaultWhaleThreshold"
)

// DefaultThreshold applies to tokens without an explicit entry on first run.
const DefaultThreshold int64 = 10_000

// SeedThresholds returns the thresholds used before the user saves any.
func SeedThresholds() []domain.Threshold {
	return []domain.Threshold{
		{Token: "QUBIC", Amount: 1_000_000},
		{Token: "QMINE", Amount: 500_000},
		{Token: "GARTH", Amount: 100_000},
		{Token: "MATILDA", Amount: 100_000},
		{Token: "CFB", Amount: 50_000},
		{Token: "QXMR", Amount: 10_000},
	}
}

// Settings is the serialisable view of a snapshot.
type Settings struct {
	Thresholds       []domain.Threshold `json:"thresholds"`
	DefaultThreshold int64              `json:"defaultThreshold"`
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	entries []domain.Threshold
	byToken map[string]int64
	def     int64
}

func newSnapshot(entries []domain.Threshold, def int64) Snapshot {
	s := Snapshot{
		entries: make([]domain.Threshold, len(entries)),
		byToken: make(map[string]int64, len(entries)),
		def:     def,
	}
	copy(s.entries, entries)
	for _, e := range entries {
		s.byToken[strings.ToUpper(e.Token)] = e.Amount
	}
	return s
}

// Threshold returns the whale amount for token, falling back to the default.
func (s Snapshot) Threshold(token string) int64 {
	if v, ok := s.byToken[strings.ToUpper(strings.TrimSpace(token))]; ok {
		return v
	}
	return s.def
}

// Default returns the threshold for tokens without an entry.
func (s Snapshot) Default() int64 { return s.def }

// Thresholds returns a copy of the configured entries.
func (s Snapshot) Thresholds() []domain.Threshold {
	out := make([]domain.Threshold, len(s.entries))
	copy(out, s.entries)
	return out
}

// Settings returns the snapshot as a serialisable value.
func (s Snapshot) Settings() Settings {
	return Settings{Thresholds: s.Thresholds(), DefaultThreshold: s.def}
}

// Registry owns the whale thresholds. It is loaded once at start, every
// mutation is persisted before it becomes visible, and observers are told
// about each successful change.
type Registry struct {
	store  domain.SettingsStore
	logger *slog.Logger

	writeMu sync.Mutex // serialises Load and Set* calls

	seedDefault int64

	mu        sync.RWMutex
	snap      Snapshot
	observers map[int]func(Snapshot)
	nextID    int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSeedDefault replaces DefaultThreshold as the first-run default.
// Non-positive values are ignored.
func WithSeedDefault(def int64) RegistryOption {
	return func(r *Registry) {
		if def > 0 {
			r.seedDefault = def
		}
	}
}

// NewRegistry creates a Registry holding the seed thresholds. Call Load to
// pick up persisted settings.
func NewRegistry(store domain.SettingsStore, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:       store,
		logger:      logger.With(slog.String("component", "whale_registry")),
		seedDefault: DefaultThreshold,
		observers:   make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap = newSnapshot(SeedThresholds(), r.seedDefault)
	return r
}

// Load reads persisted thresholds and default. Missing keys keep the seed
// values; unreadable documents are logged and ignored.
func (r *Registry) Load(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	entries := SeedThresholds()
	def := r.seedDefault

	raw, err := r.store.Load(ctx, KeyThresholds)
	switch {
	case err == nil:
		var saved []domain.Threshold
		if jsonErr := json.Unmarshal(raw, &saved); jsonErr != nil {
			r.logger.WarnContext(ctx, "ignoring unreadable thresholds", slog.String("error", jsonErr.Error()))
		} else if vErr := validateEntries(saved); vErr != nil {
			r.logger.WarnContext(ctx, "ignoring invalid thresholds", slog.String("error", vErr.Error()))
		} else {
			entries = saved
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("whale: load thresholds: %w", err)
	}

	raw, err = r.store.Load(ctx, KeyDefault)
	switch {
	case err == nil:
		var saved int64
		if jsonErr := json.Unmarshal(raw, &saved); jsonErr != nil || saved <= 0 {
			r.logger.WarnContext(ctx, "ignoring unreadable default threshold", slog.String("raw", string(raw)))
		} else {
			def = saved
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("whale: load default threshold: %w", err)
	}

	r.mu.Lock()
	r.snap = newSnapshot(entries, def)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "thresholds loaded",
		slog.Int("entries", len(entries)),
		slog.Int64("default", def),
	)
	return nil
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Threshold returns the whale amount for token.
func (r *Registry) Threshold(token string) int64 {
	return r.Snapshot().Threshold(token)
}

// Default returns the threshold for unlisted tokens.
func (r *Registry) Default() int64 {
	return r.Snapshot().Default()
}

// Thresholds returns a copy of the configured entries.
func (r *Registry) Thresholds() []domain.Threshold {
	return r.Snapshot().Thresholds()
}

// SetThresholds replaces the whole entry set.
func (r *Registry) SetThresholds(ctx context.Context, entries []domain.Threshold) (domain.Confirmation, error) {
	cleaned := make([]domain.Threshold, 0, len(entries))
	for _, e := range entries {
		cleaned = append(cleaned, domain.Threshold{Token: strings.TrimSpace(e.Token), Amount: e.Amount})
	}
	if err := validateEntries(cleaned); err != nil {
		return domain.Confirmation{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.save(ctx, KeyThresholds, cleaned); err != nil {
		return domain.Confirmation{}, err
	}

	snap := newSnapshot(cleaned, r.Default())
	r.publish(snap)

	return domain.Confirmation{
		Title:       "Settings Saved",
		Description: "Whale detection thresholds have been updated.",
	}, nil
}

// SetDefault replaces the threshold used for unlisted tokens.
func (r *Registry) SetDefault(ctx context.Context, amount int64) (domain.Confirmation, error) {
	if amount <= 0 {
		return domain.Confirmation{}, fmt.Errorf("whale: default must be positive: %w", domain.ErrInvalidThreshold)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.save(ctx, KeyDefault, amount); err != nil {
		return domain.Confirmation{}, err
	}

	current := r.Snapshot()
	snap := newSnapshot(current.entries, amount)
	r.publish(snap)

	return domain.Confirmation{
		Title:       "Settings Saved",
		Description: "Default threshold for other tokens has been updated.",
	}, nil
}

// Subscribe registers fn to be called with the new snapshot after every
// successful change. The returned function removes the observer.
func (r *Registry) Subscribe(fn func(Snapshot)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.observers[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.observers, id)
			r.mu.Unlock()
		})
	}
}

func (r *Registry) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("whale: marshal %s: %w", key, err)
	}
	if err := r.store.Save(ctx, key, data); err != nil {
		return fmt.Errorf("whale: save %s: %w", key, err)
	}
	return nil
}

// publish swaps the snapshot and notifies observers outside the lock.
func (r *Registry) publish(snap Snapshot) {
	r.mu.Lock()
	r.snap = snap
	observers := make([]func(Snapshot), 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func validateEntries(entries []domain.Threshold) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := strings.ToUpper(strings.TrimSpace(e.Token))
		if key == "" {
			return fmt.Errorf("whale: empty token: %w", domain.ErrInvalidThreshold)
		}
		if e.Amount <= 0 {
			return fmt.Errorf("whale: token %s amount must be positive: %w", e.Token, domain.ErrInvalidThreshold)
		}
		if seen[key] {
			return fmt.Errorf("whale: duplicate token %s: %w", e.Token, domain.ErrInvalidThreshold)
		}
		seen[key] = true
	}
	return nil
}

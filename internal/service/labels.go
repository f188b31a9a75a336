package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// KeyWalletLabels is the settings key holding every wallet's labels.
const KeyWalletLabels = "wallet_labels"

// LabelStore keeps free-form wallet labels in the settings store. Every
// mutation reads, edits and writes the whole document under one lock.
type LabelStore struct {
	store domain.SettingsStore
	mu    sync.Mutex
}

// NewLabelStore creates a LabelStore.
func NewLabelStore(store domain.SettingsStore) *LabelStore {
	return &LabelStore{store: store}
}

// All returns every address with labels.
func (l *LabelStore) All(ctx context.Context) (domain.WalletLabels, error) {
	raw, err := l.store.Load(ctx, KeyWalletLabels)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.WalletLabels{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("labels: load: %w", err)
	}
	labels := domain.WalletLabels{}
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("labels: decode: %w", err)
	}
	return labels, nil
}

// Get returns the labels of address, never nil.
func (l *LabelStore) Get(ctx context.Context, address string) ([]string, error) {
	all, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	if got := all[address]; got != nil {
		return got, nil
	}
	return []string{}, nil
}

// Set replaces the labels of address.
func (l *LabelStore) Set(ctx context.Context, address string, labels []string) ([]string, error) {
	clean, err := cleanLabels(labels)
	if err != nil {
		return nil, err
	}
	return l.edit(ctx, address, func([]string) ([]string, error) { return clean, nil })
}

// Add appends one label.
func (l *LabelStore) Add(ctx context.Context, address, label string) ([]string, error) {
	label = strings.TrimSpace(label)
	return l.edit(ctx, address, func(cur []string) ([]string, error) {
		if label == "" {
			return nil, domain.ErrEmptyLabel
		}
		if slices.Contains(cur, label) {
			return nil, domain.ErrDuplicateLabel
		}
		if len(cur) >= domain.MaxWalletLabels {
			return nil, domain.ErrLabelLimit
		}
		return append(cur, label), nil
	})
}

// Update replaces the label at index.
func (l *LabelStore) Update(ctx context.Context, address string, index int, label string) ([]string, error) {
	label = strings.TrimSpace(label)
	return l.edit(ctx, address, func(cur []string) ([]string, error) {
		if index < 0 || index >= len(cur) {
			return nil, domain.ErrLabelIndex
		}
		if label == "" {
			return nil, domain.ErrEmptyLabel
		}
		if i := slices.Index(cur, label); i >= 0 && i != index {
			return nil, domain.ErrDuplicateLabel
		}
		cur[index] = label
		return cur, nil
	})
}

// Remove deletes the label at index.
func (l *LabelStore) Remove(ctx context.Context, address string, index int) ([]string, error) {
	return l.edit(ctx, address, func(cur []string) ([]string, error) {
		if index < 0 || index >= len(cur) {
			return nil, domain.ErrLabelIndex
		}
		return slices.Delete(cur, index, index+1), nil
	})
}

func (l *LabelStore) edit(ctx context.Context, address string, fn func([]string) ([]string, error)) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(slices.Clone(all[address]))
	if err != nil {
		return nil, fmt.Errorf("labels: %s: %w", address, err)
	}

	if len(next) == 0 {
		delete(all, address)
		next = []string{}
	} else {
		all[address] = next
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return nil, fmt.Errorf("labels: encode: %w", err)
	}
	if err := l.store.Save(ctx, KeyWalletLabels, raw); err != nil {
		return nil, fmt.Errorf("labels: save: %w", err)
	}
	return next, nil
}

func cleanLabels(labels []string) ([]string, error) {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, domain.ErrEmptyLabel
		}
		if slices.Contains(out, label) {
			return nil, domain.ErrDuplicateLabel
		}
		out = append(out, label)
	}
	if len(out) > domain.MaxWalletLabels {
		return nil, domain.ErrLabelLimit
	}
	return out, nil
}

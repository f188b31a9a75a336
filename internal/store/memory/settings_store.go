package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// SettingsStore is an in-memory implementation of domain.SettingsStore.
type SettingsStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewSettingsStore creates an empty store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string][]byte)}
}

// Load returns a copy of the stored value or domain.ErrNotFound.
func (s *SettingsStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("memory: setting %s: %w", key, domain.ErrNotFound)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Save stores a copy of value.
func (s *SettingsStore) Save(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
	return nil
}

// Compile-time interface check.
var _ domain.SettingsStore = (*SettingsStore)(nil)

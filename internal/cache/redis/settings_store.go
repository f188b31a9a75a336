package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// SettingsStore implements domain.SettingsStore on a single Redis hash
// with one field per setting.
type SettingsStore struct {
	c    *Client
	hash string
}

// NewSettingsStore creates a SettingsStore backed by the given Client.
func NewSettingsStore(c *Client) *SettingsStore {
	return &SettingsStore{c: c, hash: c.key("settings")}
}

// Load returns the stored document or domain.ErrNotFound.
func (s *SettingsStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.c.rdb.HGet(ctx, s.hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load setting %s: %w", key, err)
	}
	return data, nil
}

// Save overwrites the document stored under key.
func (s *SettingsStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.c.rdb.HSet(ctx, s.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis: save setting %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SettingsStore = (*SettingsStore)(nil)

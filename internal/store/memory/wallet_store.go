package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// WalletStore is an in-memory implementation of domain.WalletStore.
type WalletStore struct {
	mu      sync.RWMutex
	wallets map[string]domain.Wallet
}

// NewWalletStore creates an empty store.
func NewWalletStore() *WalletStore {
	return &WalletStore{wallets: make(map[string]domain.Wallet)}
}

// Upsert records one transaction from address.
func (s *WalletStore) Upsert(_ context.Context, address string, tick int64, seenAt time.Time) error {
	if address == "" {
		return fmt.Errorf("memory: upsert wallet: %w", domain.ErrInvalidPayload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[address]
	if !ok {
		s.wallets[address] = domain.Wallet{
			Address:          address,
			FirstSeenAt:      seenAt,
			LastSeenAt:       seenAt,
			TransactionCount: 1,
			LatestTickNumber: tick,
		}
		return nil
	}
	w.TransactionCount++
	w.LastSeenAt = seenAt
	if tick > w.LatestTickNumber {
		w.LatestTickNumber = tick
	}
	s.wallets[address] = w
	return nil
}

// Get returns the wallet or domain.ErrNotFound.
func (s *WalletStore) Get(_ context.Context, address string) (domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[address]
	if !ok {
		return domain.Wallet{}, fmt.Errorf("memory: wallet %s: %w", address, domain.ErrNotFound)
	}
	return w, nil
}

// Count returns the number of wallets.
func (s *WalletStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.wallets)), nil
}

// FetchRange returns wallets [start, end] ordered by latest tick desc.
func (s *WalletStore) FetchRange(_ context.Context, start, end int) ([]domain.Wallet, error) {
	s.mu.RLock()
	rows := make([]domain.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		rows = append(rows, w)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LatestTickNumber != rows[j].LatestTickNumber {
			return rows[i].LatestTickNumber > rows[j].LatestTickNumber
		}
		return rows[i].Address < rows[j].Address
	})
	return sliceRange(rows, start, end), nil
}

// Compile-time interface check.
var _ domain.WalletStore = (*WalletStore)(nil)

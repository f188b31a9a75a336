package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given connection pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

const walletSelectCols = `address, first_seen_at, last_seen_at, transaction_count, latest_tick_number`

// Upsert records one transaction from address in a single statement, so
// concurrent webhook deliveries cannot lose an increment.
func (s *WalletStore) Upsert(ctx context.Context, address string, tick int64, seenAt time.Time) error {
	if address == "" {
		return fmt.Errorf("postgres: upsert wallet: %w", domain.ErrInvalidPayload)
	}

	const query = `
		INSERT INTO wallets (address, first_seen_at, last_seen_at, transaction_count, latest_tick_number)
		VALUES ($1, $2, $2, 1, $3)
		ON CONFLICT (address) DO UPDATE SET
			transaction_count  = wallets.transaction_count + 1,
			last_seen_at       = EXCLUDED.last_seen_at,
			latest_tick_number = GREATEST(wallets.latest_tick_number, EXCLUDED.latest_tick_number)`

	if _, err := s.pool.Exec(ctx, query, address, seenAt, tick); err != nil {
		return fmt.Errorf("postgres: upsert wallet %s: %w", address, err)
	}
	return nil
}

// Get returns one wallet or domain.ErrNotFound.
func (s *WalletStore) Get(ctx context.Context, address string) (domain.Wallet, error) {
	var w domain.Wallet
	err := s.pool.QueryRow(ctx,
		`SELECT `+walletSelectCols+` FROM wallets WHERE address = $1`, address,
	).Scan(&w.Address, &w.FirstSeenAt, &w.LastSeenAt, &w.TransactionCount, &w.LatestTickNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wallet{}, fmt.Errorf("postgres: wallet %s: %w", address, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet %s: %w", address, err)
	}
	return w, nil
}

// Count returns the number of tracked wallets.
func (s *WalletStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count wallets: %w", err)
	}
	return n, nil
}

// FetchRange returns wallets [start, end] ordered by latest tick descending.
func (s *WalletStore) FetchRange(ctx context.Context, start, end int) ([]domain.Wallet, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return []domain.Wallet{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+walletSelectCols+` FROM wallets
		 ORDER BY latest_tick_number DESC, address ASC
		 LIMIT $1 OFFSET $2`,
		end-start+1, start,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch wallets: %w", err)
	}
	defer rows.Close()

	wallets := []domain.Wallet{}
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.Address, &w.FirstSeenAt, &w.LastSeenAt, &w.TransactionCount, &w.LatestTickNumber); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fetch wallets rows: %w", err)
	}
	return wallets, nil
}

// Compile-time interface check.
var _ domain.WalletStore = (*WalletStore)(nil)

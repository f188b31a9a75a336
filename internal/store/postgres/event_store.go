package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, procedure_type_value, procedure_type_name, source_id, dest_id,
	amount, tick_number, tx_id, input_type, input_hex, signature_hex, timestamp,
	money_flew, issuer_address, asset_name, price, number_of_shares, raw_payload, created_at`

func scanEventRows(rows pgx.Rows) ([]domain.Event, error) {
	events := []domain.Event{}
	for rows.Next() {
		var (
			e                                     domain.Event
			txID, inputHex, sigHex, issuer, asset *string
			inputType                             *int
			raw                                   []byte
		)
		if err := rows.Scan(
			&e.ID, &e.ProcedureTypeValue, &e.ProcedureTypeName, &e.SourceID, &e.DestID,
			&e.Amount, &e.TickNumber, &txID, &inputType, &inputHex, &sigHex, &e.TimestampMs,
			&e.MoneyFlew, &issuer, &asset, &e.Price, &e.NumberOfShares, &raw, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.TxID = deref(txID)
		e.InputHex = deref(inputHex)
		e.SignatureHex = deref(sigHex)
		e.IssuerAddress = deref(issuer)
		e.AssetName = deref(asset)
		if inputType != nil {
			e.InputType = *inputType
		}
		if len(raw) > 0 {
			e.RawPayload = raw
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Insert stores e, assigning an id and created_at when missing.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO qx_events (
			id, procedure_type_value, procedure_type_name, source_id, dest_id,
			amount, tick_number, tx_id, input_type, input_hex, signature_hex,
			timestamp, money_flew, issuer_address, asset_name, price,
			number_of_shares, raw_payload, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19
		)`

	var rawPayload any
	if len(e.RawPayload) > 0 {
		rawPayload = string(e.RawPayload)
	}

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.ProcedureTypeValue, e.ProcedureTypeName, e.SourceID, e.DestID,
		e.Amount, e.TickNumber, nullStr(e.TxID), e.InputType, nullStr(e.InputHex), nullStr(e.SignatureHex),
		e.TimestampMs, e.MoneyFlew, nullStr(e.IssuerAddress), nullStr(e.AssetName), e.Price,
		e.NumberOfShares, rawPayload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event: %w", err)
	}
	return nil
}

// Count returns the number of rows matching filter.
func (s *EventStore) Count(ctx context.Context, filter domain.EventFilter) (int64, error) {
	where, args := eventWhere(filter)
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM qx_events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count events: %w", err)
	}
	return n, nil
}

// FetchRange returns matching rows [start, end] ordered by created_at desc.
func (s *EventStore) FetchRange(ctx context.Context, filter domain.EventFilter, start, end int) ([]domain.Event, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return []domain.Event{}, nil
	}

	where, args := eventWhere(filter)
	argIdx := len(args) + 1
	query := `SELECT ` + eventSelectCols + ` FROM qx_events` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, end-start+1, start)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events: %w", err)
	}
	return events, nil
}

// ListByWallet returns the most recent rows where address is the source or
// destination.
func (s *EventStore) ListByWallet(ctx context.Context, address string, limit int) ([]domain.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM qx_events
		WHERE source_id = $1 OR dest_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{address}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by wallet: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events by wallet: %w", err)
	}
	return events, nil
}

// ListBefore returns rows created strictly before the cutoff, oldest first.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM qx_events WHERE created_at < $1 ORDER BY created_at ASC, id ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events before: %w", err)
	}
	return events, nil
}

// eventWhere renders filter as a WHERE clause with positional arguments.
// It mirrors domain.EventFilter.Matches.
func eventWhere(f domain.EventFilter) (string, []any) {
	var (
		conds  []string
		args   []any
		argIdx = 1
	)

	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		cond := fmt.Sprintf("source_id ILIKE $%d OR dest_id ILIKE $%d OR COALESCE(NULLIF(TRIM(asset_name), ''), $%d) ILIKE $%d",
			argIdx, argIdx, argIdx+1, argIdx)
		args = append(args, pattern, domain.NativeToken)
		argIdx += 2
		if n, err := strconv.ParseInt(q, 10, 64); err == nil {
			cond += fmt.Sprintf(" OR tick_number = $%d", argIdx)
			args = append(args, n)
			argIdx++
		}
		conds = append(conds, "("+cond+")")
	}

	if f.Token != "" {
		if strings.EqualFold(f.Token, domain.NativeToken) {
			conds = append(conds, fmt.Sprintf("(COALESCE(TRIM(asset_name), '') = '' OR UPPER(asset_name) = $%d)", argIdx))
			args = append(args, domain.NativeToken)
		} else {
			conds = append(conds, fmt.Sprintf("UPPER(asset_name) = UPPER($%d)", argIdx))
			args = append(args, f.Token)
		}
		argIdx++
	}

	if f.ProcedureName != "" {
		conds = append(conds, fmt.Sprintf("procedure_type_name = $%d", argIdx))
		args = append(args, f.ProcedureName)
		argIdx++
	}

	if f.Since != nil {
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", argIdx))
		args = append(args, f.Since.UnixMilli())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)

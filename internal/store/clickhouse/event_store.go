package clickhouse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

const createEventsTable = `
	CREATE TABLE IF NOT EXISTS qx_events (
		id                   String,
		procedure_type_value Int32,
		procedure_type_name  LowCardinality(String),
		source_id            String,
		dest_id              String,
		amount               String,
		tick_number          Int64,
		tx_id                String,
		input_type           Int32,
		input_hex            String,
		signature_hex        String,
		timestamp            Int64,
		money_flew           Bool,
		issuer_address       String,
		asset_name           String,
		price                Nullable(Int64),
		number_of_shares     Nullable(Int64),
		raw_payload          String,
		created_at           DateTime64(3, 'UTC')
	)
	ENGINE = ReplacingMergeTree
	ORDER BY (created_at, id)`

const eventSelectCols = `id, procedure_type_value, procedure_type_name, source_id, dest_id,
	amount, tick_number, tx_id, input_type, input_hex, signature_hex, timestamp,
	money_flew, issuer_address, asset_name, price, number_of_shares, raw_payload, created_at`

// EventStore is the ClickHouse mirror of the events table. It serves the
// read contract used for full scans and accepts mirrored inserts.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates an EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// EnsureSchema creates the mirror table when missing.
func (s *EventStore) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("clickhouse: create qx_events: %w", err)
	}
	return nil
}

// Insert mirrors a single event.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	return s.InsertBatch(ctx, []*domain.Event{e})
}

// InsertBatch mirrors events in one native batch.
func (s *EventStore) InsertBatch(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO qx_events (`+eventSelectCols+`)`)
	if err != nil {
		return fmt.Errorf("clickhouse: prepare batch: %w", err)
	}

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		err := batch.Append(
			e.ID, int32(e.ProcedureTypeValue), e.ProcedureTypeName, e.SourceID, e.DestID,
			e.Amount, e.TickNumber, e.TxID, int32(e.InputType), e.InputHex, e.SignatureHex, e.TimestampMs,
			e.MoneyFlew, e.IssuerAddress, e.AssetName, e.Price, e.NumberOfShares, string(e.RawPayload), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("clickhouse: append event %s: %w", e.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send batch: %w", err)
	}
	return nil
}

// Count returns the number of rows matching filter.
func (s *EventStore) Count(ctx context.Context, filter domain.EventFilter) (int64, error) {
	where, args := eventWhere(filter)
	var n uint64
	if err := s.conn.QueryRow(ctx, "SELECT count() FROM qx_events FINAL"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("clickhouse: count events: %w", err)
	}
	return int64(n), nil
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
	query := `SELECT ` + eventSelectCols + ` FROM qx_events FINAL` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", end-start+1, start)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: fetch events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var (
			e                 domain.Event
			procValue, inType int32
			price, shares     *int64
			raw               string
		)
		if err := rows.Scan(
			&e.ID, &procValue, &e.ProcedureTypeName, &e.SourceID, &e.DestID,
			&e.Amount, &e.TickNumber, &e.TxID, &inType, &e.InputHex, &e.SignatureHex, &e.TimestampMs,
			&e.MoneyFlew, &e.IssuerAddress, &e.AssetName, &price, &shares, &raw, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("clickhouse: scan event: %w", err)
		}
		e.ProcedureTypeValue = int(procValue)
		e.InputType = int(inType)
		e.Price = price
		e.NumberOfShares = shares
		if raw != "" {
			e.RawPayload = []byte(raw)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: fetch events rows: %w", err)
	}
	return events, nil
}

// eventWhere renders filter with ? placeholders. It mirrors
// domain.EventFilter.Matches.
func eventWhere(f domain.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if q := strings.TrimSpace(f.Search); q != "" {
		cond := "positionCaseInsensitiveUTF8(source_id, ?) > 0 OR positionCaseInsensitiveUTF8(dest_id, ?) > 0" +
			" OR positionCaseInsensitiveUTF8(if(trimBoth(asset_name) = '', ?, asset_name), ?) > 0"
		args = append(args, q, q, domain.NativeToken, q)
		if n, err := strconv.ParseInt(q, 10, 64); err == nil {
			cond += " OR tick_number = ?"
			args = append(args, n)
		}
		conds = append(conds, "("+cond+")")
	}

	if f.Token != "" {
		if strings.EqualFold(f.Token, domain.NativeToken) {
			conds = append(conds, "(trimBoth(asset_name) = '' OR upperUTF8(asset_name) = ?)")
			args = append(args, domain.NativeToken)
		} else {
			conds = append(conds, "upperUTF8(asset_name) = upperUTF8(?)")
			args = append(args, f.Token)
		}
	}

	if f.ProcedureName != "" {
		conds = append(conds, "procedure_type_name = ?")
		args = append(args, f.ProcedureName)
	}

	if f.Since != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UnixMilli())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Compile-time interface check.
var _ domain.EventSource = (*EventStore)(nil)

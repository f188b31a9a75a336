package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/display"
	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/normalize"
	"github.com/alanyoungcy/qxwatch/internal/notify"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

// Mirror receives a copy of every stored event.
type Mirror interface {
	Insert(ctx context.Context, e *domain.Event) error
}

// ThresholdSnapshotter hands out the current whale thresholds.
type ThresholdSnapshotter interface {
	Snapshot() whale.Snapshot
}

// IngestResult is the webhook response body.
type IngestResult struct {
	Success bool            `json:"success"`
	Results []IngestedEvent `json:"results"`
	Message string          `json:"message"`
	Skipped int             `json:"skipped,omitempty"`
}

// IngestedEvent identifies one stored event.
type IngestedEvent struct {
	EventID string `json:"event_id"`
	IsWhale bool   `json:"is_whale"`
}

// Ingestor stores webhook events and fans them out. Only the event insert is
// fatal; wallet, mirror, bus and notification failures are logged.
type Ingestor struct {
	events      domain.EventStore
	wallets     domain.WalletStore
	thresholds  ThresholdSnapshotter
	bus         domain.SignalBus
	mirror      Mirror
	notifier    *notify.Notifier
	explorerURL string
	dedup       *Dedup
	now         func() time.Time
	logger      *slog.Logger
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithMirror copies every stored event to m.
func WithMirror(m Mirror) IngestOption {
	return func(i *Ingestor) { i.mirror = m }
}

// WithNotifier sends whale alerts through n.
func WithNotifier(n *notify.Notifier, explorerURL string) IngestOption {
	return func(i *Ingestor) {
		i.notifier = n
		i.explorerURL = explorerURL
	}
}

// WithDedup drops envelopes whose txId was stored within window.
func WithDedup(window time.Duration) IngestOption {
	return func(i *Ingestor) {
		if window > 0 {
			i.dedup = NewDedup(window)
		}
	}
}

// WithClock overrides the ingestion clock.
func WithClock(now func() time.Time) IngestOption {
	return func(i *Ingestor) { i.now = now }
}

// NewIngestor creates an Ingestor. bus may be nil.
func NewIngestor(
	events domain.EventStore,
	wallets domain.WalletStore,
	thresholds ThresholdSnapshotter,
	bus domain.SignalBus,
	logger *slog.Logger,
	opts ...IngestOption,
) *Ingestor {
	i := &Ingestor{
		events:     events,
		wallets:    wallets,
		thresholds: thresholds,
		bus:        bus,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "ingestor")),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest processes a webhook body holding one envelope or an array. On a
// storage failure the events stored so far are still reported.
func (i *Ingestor) Ingest(ctx context.Context, body []byte) (IngestResult, error) {
	envs, raw, err := decodeEnvelopes(body)
	if err != nil {
		return IngestResult{}, fmt.Errorf("pipeline: ingest: %w", err)
	}

	snap := i.thresholds.Snapshot()
	res := IngestResult{Results: []IngestedEvent{}}
	for n, env := range envs {
		if env.RawTransaction == nil || env.RawTransaction.Transaction == nil {
			i.logger.WarnContext(ctx, "skipping envelope without RawTransaction.transaction",
				slog.Int("index", n),
				slog.String("procedure", env.ProcedureTypeName),
			)
			res.Skipped++
			continue
		}
		txID := env.RawTransaction.Transaction.TxID
		if i.dedup != nil && txID != "" && i.dedup.Seen(txID) {
			i.logger.InfoContext(ctx, "skipping redelivered transaction", slog.String("tx_id", txID))
			res.Skipped++
			continue
		}

		ev, err := i.store(ctx, env, raw[n])
		if err != nil {
			return res, fmt.Errorf("pipeline: ingest envelope %d: %w", n, err)
		}
		if i.dedup != nil && txID != "" {
			i.dedup.Mark(txID)
		}

		annotated := whale.NewClassifier(snap).Classify(display.ToDisplayEvent(ev, i.now()))
		i.fanOut(ctx, annotated, snap)
		res.Results = append(res.Results, IngestedEvent{EventID: ev.ID, IsWhale: annotated.IsWhale})
	}

	if i.dedup != nil {
		i.dedup.Cleanup()
	}

	res.Success = true
	res.Message = fmt.Sprintf("%d event(s) processed successfully", len(res.Results))
	return res, nil
}

func (i *Ingestor) store(ctx context.Context, env Envelope, raw json.RawMessage) (domain.Event, error) {
	now := i.now()
	ev := toEvent(env, raw, now)
	if err := i.events.Insert(ctx, &ev); err != nil {
		return domain.Event{}, err
	}

	if err := i.wallets.Upsert(ctx, ev.SourceID, ev.TickNumber, now); err != nil {
		i.logger.ErrorContext(ctx, "wallet upsert failed",
			slog.String("address", ev.SourceID),
			slog.String("error", err.Error()),
		)
	}

	if i.mirror != nil {
		if err := i.mirror.Insert(ctx, &ev); err != nil {
			i.logger.WarnContext(ctx, "event mirror failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return ev, nil
}

func (i *Ingestor) fanOut(ctx context.Context, e domain.AnnotatedEvent, snap whale.Snapshot) {
	if i.bus != nil {
		payload, err := json.Marshal(e)
		if err == nil {
			i.publish(ctx, domain.ChannelEvents, payload)
			if e.IsWhale {
				i.publish(ctx, domain.ChannelWhale, payload)
			}
			if err := i.bus.StreamAppend(ctx, domain.StreamEvents, payload); err != nil {
				i.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
			}
		}
	}

	if e.IsWhale && i.notifier.Enabled(notify.EventWhaleAlert) {
		msg := notify.WhaleAlert(e, snap.Threshold(e.Token), i.explorerURL)
		if err := i.notifier.Notify(ctx, notify.EventWhaleAlert, msg); err != nil {
			i.logger.WarnContext(ctx, "whale alert failed",
				slog.String("event_id", e.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (i *Ingestor) publish(ctx context.Context, channel string, payload []byte) {
	if err := i.bus.Publish(ctx, channel, payload); err != nil {
		i.logger.WarnContext(ctx, "publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func toEvent(env Envelope, raw json.RawMessage, now time.Time) domain.Event {
	tx := env.RawTransaction.Transaction
	ev := domain.Event{
		ProcedureTypeValue: env.ProcedureTypeValue,
		ProcedureTypeName:  env.ProcedureTypeName,
		SourceID:           tx.SourceID,
		DestID:             tx.DestID,
		Amount:             string(tx.Amount),
		TickNumber:         tx.TickNumber,
		TxID:               tx.TxID,
		InputHex:           tx.InputHex,
		SignatureHex:       tx.SignatureHex,
		TimestampMs:        normalize.ParseTimestamp(timestampValue(env.RawTransaction.Timestamp), now).UnixMilli(),
		MoneyFlew:          env.RawTransaction.MoneyFlew,
		RawPayload:         raw,
		CreatedAt:          now,
	}
	if tx.InputType != nil {
		ev.InputType = *tx.InputType
	}
	if p := env.ParsedTransaction; p != nil {
		ev.IssuerAddress = p.IssuerAddress
		ev.AssetName = p.AssetName
		ev.Price = p.Price
		ev.NumberOfShares = p.NumberOfShares
	}
	return ev
}

package service

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/qxwatch/internal/display"
	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/platform/qubic"
	"github.com/alanyoungcy/qxwatch/internal/query"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

const (
	walletPageSize     = 50
	walletMaxPageSize  = 500
	walletBatchSize    = 1000
	walletDetailEvents = 20

	// SortHighest and SortLowest order wallets by latest tick.
	SortHighest = "highest"
	SortLowest  = "lowest"
)

// WalletQuery selects a page of the wallet list.
type WalletQuery struct {
	Search   string
	Segment  string
	Sort     string
	Page     int
	PageSize int
}

// WalletRow is a wallet with its labels.
type WalletRow struct {
	domain.Wallet
	Labels []string `json:"labels"`
}

// WalletPage is one page of the wallet list.
type WalletPage struct {
	Wallets    []WalletRow `json:"wallets"`
	Total      int         `json:"total"`
	PageIndex  int         `json:"pageIndex"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// WalletDetail is one wallet with its recent events.
type WalletDetail struct {
	Wallet  domain.Wallet           `json:"wallet"`
	Labels  []string                `json:"labels"`
	Events  []domain.AnnotatedEvent `json:"events"`
	IsWhale bool                    `json:"isWhale"`
}

// WalletService serves the wallet views.
type WalletService struct {
	wallets    domain.WalletStore
	events     domain.EventStore
	labels     *LabelStore
	thresholds query.SnapshotSource
	analyzer   *qubic.Analyzer
	bus        domain.SignalBus
	now        func() time.Time
	logger     *slog.Logger
}

// NewWalletService creates a WalletService. analyzer and bus may be nil.
func NewWalletService(
	wallets domain.WalletStore,
	events domain.EventStore,
	labels *LabelStore,
	thresholds query.SnapshotSource,
	analyzer *qubic.Analyzer,
	bus domain.SignalBus,
	logger *slog.Logger,
) *WalletService {
	return &WalletService{
		wallets:    wallets,
		events:     events,
		labels:     labels,
		thresholds: thresholds,
		analyzer:   analyzer,
		bus:        bus,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "wallet_service")),
	}
}

// List filters, sorts and paginates every wallet. Search matches the
// address, latest tick or a label; Segment matches a label exactly,
// ignoring case.
func (s *WalletService) List(ctx context.Context, q WalletQuery) (WalletPage, error) {
	all, err := s.fetchAll(ctx)
	if err != nil {
		return WalletPage{}, err
	}
	labels, err := s.labels.All(ctx)
	if err != nil {
		return WalletPage{}, fmt.Errorf("wallet_service: list: %w", err)
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	segment := strings.TrimSpace(q.Segment)
	if strings.EqualFold(segment, "all-segments") || strings.EqualFold(segment, query.All) {
		segment = ""
	}

	rows := make([]WalletRow, 0, len(all))
	for _, w := range all {
		ls := labels[w.Address]
		if search != "" && !matchWallet(w, ls, search) {
			continue
		}
		if segment != "" && !slices.ContainsFunc(ls, func(l string) bool { return strings.EqualFold(l, segment) }) {
			continue
		}
		if ls == nil {
			ls = []string{}
		}
		rows = append(rows, WalletRow{Wallet: w, Labels: ls})
	}

	slices.SortStableFunc(rows, func(a, b WalletRow) int {
		if q.Sort == SortLowest {
			return cmp.Compare(a.LatestTickNumber, b.LatestTickNumber)
		}
		return cmp.Compare(b.LatestTickNumber, a.LatestTickNumber)
	})

	size := q.PageSize
	if size <= 0 {
		size = walletPageSize
	}
	size = min(size, walletMaxPageSize)
	pageIndex := max(q.Page, 0)
	page := WalletPage{
		Wallets:    []WalletRow{},
		Total:      len(rows),
		PageIndex:  pageIndex,
		PageSize:   size,
		TotalPages: (len(rows) + size - 1) / size,
	}
	if pageIndex < page.TotalPages {
		start := pageIndex * size
		page.Wallets = rows[start:min(start+size, len(rows))]
	}
	return page, nil
}

func matchWallet(w domain.Wallet, labels []string, search string) bool {
	if strings.Contains(strings.ToLower(w.Address), search) {
		return true
	}
	if strings.Contains(strconv.FormatInt(w.LatestTickNumber, 10), strings.ReplaceAll(search, ",", "")) {
		return true
	}
	return slices.ContainsFunc(labels, func(l string) bool {
		return strings.Contains(strings.ToLower(l), search)
	})
}

// fetchAll reads every wallet in concurrent batches.
func (s *WalletService) fetchAll(ctx context.Context) ([]domain.Wallet, error) {
	total, err := s.wallets.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet_service: count: %w", err)
	}
	batches := int((total + walletBatchSize - 1) / walletBatchSize)
	results := make([][]domain.Wallet, batches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := 0; i < batches; i++ {
		start := i * walletBatchSize
		g.Go(func() error {
			rows, err := s.wallets.FetchRange(gctx, start, start+walletBatchSize-1)
			if err != nil {
				return fmt.Errorf("wallet_service: rows %d: %w", start, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Wallet, 0, total)
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

// Detail returns the wallet, its labels and its most recent events.
func (s *WalletService) Detail(ctx context.Context, address string) (WalletDetail, error) {
	w, err := s.wallets.Get(ctx, address)
	if err != nil {
		return WalletDetail{}, fmt.Errorf("wallet_service: detail: %w", err)
	}
	rows, err := s.events.ListByWallet(ctx, address, walletDetailEvents)
	if err != nil {
		return WalletDetail{}, fmt.Errorf("wallet_service: detail events: %w", err)
	}
	labels, err := s.labels.Get(ctx, address)
	if err != nil {
		return WalletDetail{}, fmt.Errorf("wallet_service: detail: %w", err)
	}

	classifier := whale.NewClassifier(s.thresholds.Snapshot())
	events := classifier.Annotate(display.ToDisplayEvents(rows, s.now()))
	return WalletDetail{
		Wallet:  w,
		Labels:  labels,
		Events:  events,
		IsWhale: slices.ContainsFunc(events, func(e domain.AnnotatedEvent) bool { return e.IsWhale }),
	}, nil
}

// Analyze queries the Qubic RPC for address.
func (s *WalletService) Analyze(ctx context.Context, address string) (qubic.Analysis, error) {
	if s.analyzer == nil {
		return qubic.Analysis{}, fmt.Errorf("wallet_service: analysis disabled: %w", domain.ErrNotFound)
	}
	return s.analyzer.Analyze(ctx, address)
}

// SetLabels replaces the labels of address.
func (s *WalletService) SetLabels(ctx context.Context, address string, labels []string) ([]string, error) {
	return s.labelsChanged(ctx, address)(s.labels.Set(ctx, address, labels))
}

// AddLabel appends a label to address.
func (s *WalletService) AddLabel(ctx context.Context, address, label string) ([]string, error) {
	return s.labelsChanged(ctx, address)(s.labels.Add(ctx, address, label))
}

// UpdateLabel replaces the label at index.
func (s *WalletService) UpdateLabel(ctx context.Context, address string, index int, label string) ([]string, error) {
	return s.labelsChanged(ctx, address)(s.labels.Update(ctx, address, index, label))
}

// RemoveLabel deletes the label at index.
func (s *WalletService) RemoveLabel(ctx context.Context, address string, index int) ([]string, error) {
	return s.labelsChanged(ctx, address)(s.labels.Remove(ctx, address, index))
}

// labelsChanged publishes a settings change after a successful label edit.
func (s *WalletService) labelsChanged(ctx context.Context, address string) func([]string, error) ([]string, error) {
	return func(labels []string, err error) ([]string, error) {
		if err != nil {
			return nil, err
		}
		if s.bus != nil {
			payload, _ := json.Marshal(map[string]string{"key": KeyWalletLabels, "address": address})
			if pubErr := s.bus.Publish(ctx, domain.ChannelSettings, payload); pubErr != nil {
				s.logger.WarnContext(ctx, "publish label change failed", slog.String("error", pubErr.Error()))
			}
		}
		return labels, nil
	}
}

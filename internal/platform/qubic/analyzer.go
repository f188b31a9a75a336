package qubic

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// Network connection states reported in an Analysis.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// NetworkInfo describes the RPC node state at analysis time.
type NetworkInfo struct {
	LatestTick int64  `json:"latest_tick,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Statistics summarises a balance.
type Statistics struct {
	Balance                    decimal.Decimal `json:"balance"`
	ValidForTick               int64           `json:"valid_for_tick,omitempty"`
	LatestIncomingTransferTick int64           `json:"latest_incoming_transfer_tick,omitempty"`
	LatestOutgoingTransferTick int64           `json:"latest_outgoing_transfer_tick,omitempty"`
	IncomingAmount             decimal.Decimal `json:"incoming_amount"`
	OutgoingAmount             decimal.Decimal `json:"outgoing_amount"`
	NumberOfIncomingTransfers  int64           `json:"number_of_incoming_transfers"`
	NumberOfOutgoingTransfers  int64           `json:"number_of_outgoing_transfers"`
	TotalTransfers             int64           `json:"total_transfers"`
}

// AssetList is one asset lookup. A failed lookup carries Error instead of
// failing the whole analysis.
type AssetList struct {
	Assets []Asset `json:"assets"`
	Error  string  `json:"error,omitempty"`
}

// AssetData groups the per-kind asset lookups.
type AssetData struct {
	Owned     AssetList `json:"owned_assets"`
	Possessed AssetList `json:"possessed_assets"`
	Issued    AssetList `json:"issued_assets"`
}

// Analysis is the result of Analyzer.Analyze.
type Analysis struct {
	Address    string      `json:"address"`
	Valid      bool        `json:"valid"`
	Network    NetworkInfo `json:"network_info"`
	Balance    *Balance    `json:"balance_info,omitempty"`
	Statistics *Statistics `json:"statistics,omitempty"`
	Assets     *AssetData  `json:"additional_data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// WalletAPI is the subset of Client the analyzer needs.
type WalletAPI interface {
	Balance(ctx context.Context, addr string) (Balance, error)
	LatestTick(ctx context.Context) (int64, error)
	OwnedAssets(ctx context.Context, addr string) ([]Asset, error)
	PossessedAssets(ctx context.Context, addr string) ([]Asset, error)
	IssuedAssets(ctx context.Context, addr string) ([]Asset, error)
}

// Analyzer combines balance, network and asset lookups for one address.
type Analyzer struct {
	api    WalletAPI
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(api WalletAPI, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		api:    api,
		logger: logger.With(slog.String("component", "qubic_analyzer")),
	}
}

// Analyze validates addr, then fetches balance and latest tick together and
// the asset lists after. The balance lookup is retried once on transient
// failures; its error is returned alongside the partial Analysis. Tick and
// asset failures are recorded in the result only.
func (a *Analyzer) Analyze(ctx context.Context, addr string) (Analysis, error) {
	out := Analysis{Address: addr}
	if err := ValidateAddress(addr); err != nil {
		out.Network = NetworkInfo{Status: StatusDisconnected, Error: err.Error()}
		out.Error = err.Error()
		return out, err
	}

	var (
		wg      sync.WaitGroup
		tick    int64
		tickErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick, tickErr = a.api.LatestTick(ctx)
	}()

	bal, err := a.balanceWithRetry(ctx, addr)
	wg.Wait()

	out.Network = NetworkInfo{Status: StatusConnected, LatestTick: tick}
	if tickErr != nil {
		a.logger.WarnContext(ctx, "latest tick unavailable", slog.String("error", tickErr.Error()))
	}

	if err != nil {
		out.Error = err.Error()
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			out.Network = NetworkInfo{Status: StatusDisconnected, Error: err.Error()}
		}
		return out, err
	}

	out.Valid = true
	out.Balance = &bal
	out.Statistics = buildStatistics(bal)
	out.Assets = a.assets(ctx, addr)
	return out, nil
}

func (a *Analyzer) balanceWithRetry(ctx context.Context, addr string) (Balance, error) {
	bal, err := a.api.Balance(ctx, addr)
	if err == nil || !retryable(err) || ctx.Err() != nil {
		return bal, err
	}
	a.logger.InfoContext(ctx, "retrying balance lookup",
		slog.String("address", addr),
		slog.String("error", err.Error()),
	)
	return a.api.Balance(ctx, addr)
}

func (a *Analyzer) assets(ctx context.Context, addr string) *AssetData {
	list := func(assets []Asset, err error) AssetList {
		if err != nil {
			return AssetList{Assets: []Asset{}, Error: "failed to fetch: " + err.Error()}
		}
		return AssetList{Assets: assets}
	}
	return &AssetData{
		Owned:     list(a.api.OwnedAssets(ctx, addr)),
		Possessed: list(a.api.PossessedAssets(ctx, addr)),
		Issued:    list(a.api.IssuedAssets(ctx, addr)),
	}
}

func buildStatistics(b Balance) *Statistics {
	return &Statistics{
		Balance:                    b.Balance,
		ValidForTick:               b.ValidForTick,
		LatestIncomingTransferTick: b.LatestIncomingTransferTick,
		LatestOutgoingTransferTick: b.LatestOutgoingTransferTick,
		IncomingAmount:             b.IncomingAmount,
		OutgoingAmount:             b.OutgoingAmount,
		NumberOfIncomingTransfers:  b.NumberOfIncomingTransfers,
		NumberOfOutgoingTransfers:  b.NumberOfOutgoingTransfers,
		TotalTransfers:             b.NumberOfIncomingTransfers + b.NumberOfOutgoingTransfers,
	}
}

var _ WalletAPI = (*Client)(nil)

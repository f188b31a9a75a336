package qubic

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzerMux(balance http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/balances/{id}", balance)
	mux.HandleFunc("GET /v1/latestTick", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"latestTick":555}`)
	})
	mux.HandleFunc("GET /v1/assets/{id}/owned", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /v1/assets/{id}/possessed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"possessedAssets":[]}`)
	})
	mux.HandleFunc("GET /v1/assets/{id}/issued", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"issuedAssets":[]}`)
	})
	return mux
}

func TestAnalyzer_Success(t *testing.T) {
	c := newTestServer(t, analyzerMux(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, balanceBody)
	}))
	a := NewAnalyzer(c, testLogger())

	res, err := a.Analyze(context.Background(), testAddr)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, StatusConnected, res.Network.Status)
	assert.Equal(t, int64(555), res.Network.LatestTick)
	require.NotNil(t, res.Statistics)
	assert.Equal(t, int64(5), res.Statistics.TotalTransfers)
	assert.Equal(t, "12345", res.Statistics.Balance.String())

	require.NotNil(t, res.Assets)
	assert.Contains(t, res.Assets.Owned.Error, "failed to fetch")
	assert.Empty(t, res.Assets.Possessed.Error)
}

func TestAnalyzer_RetriesTransientBalanceFailure(t *testing.T) {
	var hits atomic.Int32
	c := newTestServer(t, analyzerMux(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, balanceBody)
	}))
	a := NewAnalyzer(c, testLogger())

	res, err := a.Analyze(context.Background(), testAddr)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAnalyzer_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestServer(t, analyzerMux(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unknown identity", http.StatusNotFound)
	}))
	a := NewAnalyzer(c, testLogger())

	res, err := a.Analyze(context.Background(), testAddr)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, res.Statistics)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAnalyzer_InvalidAddress(t *testing.T) {
	var hits atomic.Int32
	c := newTestServer(t, analyzerMux(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	a := NewAnalyzer(c, testLogger())

	res, err := a.Analyze(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.False(t, res.Valid)
	assert.Equal(t, StatusDisconnected, res.Network.Status)
	assert.Equal(t, "qubic: invalid wallet address format", res.Error)
	assert.Zero(t, hits.Load())
}

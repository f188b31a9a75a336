package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/pipeline"
	"github.com/alanyoungcy/qxwatch/internal/query"
	"github.com/alanyoungcy/qxwatch/internal/server/handler"
	"github.com/alanyoungcy/qxwatch/internal/service"
	"github.com/alanyoungcy/qxwatch/internal/store/memory"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

const apiKey = "k3y"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires the full memory-backed stack behind the real router.
func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	logger := testLogger()

	events := memory.NewEventStore()
	wallets := memory.NewWalletStore()
	settings := memory.NewSettingsStore()
	bus := memory.NewSignalBus()
	cache := memory.NewQueryCache(time.Minute)
	blobs := memory.NewBlobStore()

	registry := whale.NewRegistry(settings, logger)
	require.NoError(t, registry.Load(context.Background()))

	orch := query.NewOrchestrator(events, registry, logger)
	eventSvc := service.NewEventService(orch, cache, time.UTC, logger)
	walletSvc := service.NewWalletService(wallets, events, service.NewLabelStore(settings), registry, nil, bus, logger)
	settingsSvc := service.NewSettingsService(registry, cache, bus, logger)
	t.Cleanup(settingsSvc.Close)
	ingestor := pipeline.NewIngestor(events, wallets, registry, bus, logger)

	require.NoError(t, blobs.Put(context.Background(), "archive/qx_events/2025-01.json", strings.NewReader("[]"), "application/json"))
	audit := memory.NewAuditStore()
	require.NoError(t, audit.Log(context.Background(), domain.AuditEventArchive, map[string]any{"rows": 1}))
	require.NoError(t, audit.Log(context.Background(), "settings.updated", nil))

	handlers := Handlers{
		Health:   handler.NewHealthHandler(nil, logger),
		Status:   handler.NewStatusHandler("api", time.Now(), map[string]string{"events": "memory"}),
		Events:   handler.NewEventHandler(eventSvc, bus, query.DefaultPageSize, logger),
		Wallets:  handler.NewWalletHandler(walletSvc, logger),
		Settings: handler.NewSettingsHandler(settingsSvc, logger),
		Webhook:  handler.NewWebhookHandler(ingestor, logger),
		Archives: handler.NewArchiveHandler(service.NewArchiveService(blobs, audit, "archive/qx_events/"), logger),
		Pipeline: handler.NewPipelineHandler(logger).WithArchiveTrigger(make(chan struct{}, 1)),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = apiKey
	}
	srv := httptest.NewServer(NewServer(cfg, handlers, nil, memory.NewRateLimiter(100, time.Minute), logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t   *testing.T
	url string
}

func (c client) do(method, path, body string) (int, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.url+path, rd)
	require.NoError(c.t, err)
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

var (
	whaleAddr = strings.Repeat("W", 60)
	smallAddr = strings.Repeat("S", 60)
)

func webhookBody() string {
	return `[
	  {"ProcedureTypeValue": 6, "ProcedureTypeName": "AddToBidOrder",
	   "RawTransaction": {"transaction": {"sourceId": "` + whaleAddr + `", "destId": "QX", "amount": "60000", "tickNumber": 900, "txId": "tx-whale"},
	     "timestamp": "1736942400000", "moneyFlew": true},
	   "ParsedTransaction": {"AssetName": "CFB", "IssuerAddress": "CFBISSUER", "Price": 3, "NumberOfShares": 20000}},
	  {"ProcedureTypeValue": 0, "ProcedureTypeName": "QuTransfer",
	   "RawTransaction": {"transaction": {"sourceId": "` + smallAddr + `", "destId": "QX", "amount": 5, "tickNumber": 901, "txId": "tx-small"},
	     "timestamp": 1736942460}}
	]`
}

func TestServer_EndToEnd(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := client{t: t, url: srv.URL}

	code, body := c.do(http.MethodPost, "/api/webhook/qx", webhookBody())
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "2 event(s) processed successfully", body["message"])
	results := body["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0].(map[string]any)["is_whale"])
	assert.Equal(t, false, results[1].(map[string]any)["is_whale"])

	t.Run("events page", func(t *testing.T) {
		code, body := c.do(http.MethodGet, "/api/events", "")
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 2, body["total"])
		assert.Len(t, body["events"], 2)

		code, body = c.do(http.MethodGet, "/api/events?type=whale", "")
		require.Equal(t, http.StatusOK, code)
		events := body["events"].([]any)
		require.Len(t, events, 1)
		assert.Equal(t, "CFB", events[0].(map[string]any)["token"])

		code, body = c.do(http.MethodGet, "/api/events?search=901", "")
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 1, body["total"])
	})

	t.Run("aggregates", func(t *testing.T) {
		code, body := c.do(http.MethodGet, "/api/events/kpi", "")
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 2, body["totalEvents"])
		assert.EqualValues(t, 1, body["whalesDetected"])

		code, body = c.do(http.MethodGet, "/api/tokens", "")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, body["tokens"], "CFB")

		code, body = c.do(http.MethodGet, "/api/overview", "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["isActualWhale"])

		code, body = c.do(http.MethodGet, "/api/events/chart?range=24h", "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "24h", body["range"])
	})

	t.Run("stream replay", func(t *testing.T) {
		code, body := c.do(http.MethodGet, "/api/events/stream?count=1", "")
		require.Equal(t, http.StatusOK, code)
		entries := body["entries"].([]any)
		require.Len(t, entries, 1)
		first := entries[0].(map[string]any)
		assert.Equal(t, body["last_id"], first["id"])

		code, body = c.do(http.MethodGet, "/api/events/stream?after="+first["id"].(string), "")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["entries"], 1)
	})

	t.Run("wallets and labels", func(t *testing.T) {
		code, body := c.do(http.MethodGet, "/api/wallets", "")
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 2, body["total"])

		code, body = c.do(http.MethodPost, "/api/wallets/"+whaleAddr+"/labels", `{"label":"Exchange"}`)
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, []any{"Exchange"}, body["labels"])

		code, _ = c.do(http.MethodPost, "/api/wallets/"+whaleAddr+"/labels", `{"label":"exchange"}`)
		assert.Equal(t, http.StatusConflict, code)

		code, body = c.do(http.MethodPatch, "/api/wallets/"+whaleAddr+"/labels/0", `{"label":"Market Maker"}`)
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, []any{"Market Maker"}, body["labels"])

		code, _ = c.do(http.MethodPatch, "/api/wallets/"+whaleAddr+"/labels/x", `{"label":"y"}`)
		assert.Equal(t, http.StatusBadRequest, code)

		code, body = c.do(http.MethodGet, "/api/wallets?segment=market%20maker", "")
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 1, body["total"])

		code, body = c.do(http.MethodGet, "/api/wallets/"+whaleAddr, "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["isWhale"])
		assert.Len(t, body["events"], 1)

		code, body = c.do(http.MethodDelete, "/api/wallets/"+whaleAddr+"/labels/0", "")
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, body["labels"])

		code, _ = c.do(http.MethodDelete, "/api/wallets/"+whaleAddr+"/labels/3", "")
		assert.Equal(t, http.StatusBadRequest, code)

		code, _ = c.do(http.MethodGet, "/api/wallets/"+whaleAddr+"/analysis", "")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("thresholds", func(t *testing.T) {
		code, body := c.do(http.MethodGet, "/api/settings/thresholds", "")
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 10_000, body["defaultThreshold"])

		code, body = c.do(http.MethodPut, "/api/settings/thresholds", `{"thresholds":[{"token":"CFB","amount":100000}]}`)
		require.Equal(t, http.StatusOK, code, body)
		conf := body["confirmation"].(map[string]any)
		assert.Equal(t, "Settings Saved", conf["title"])

		// CFB 60000 no longer qualifies.
		code, body = c.do(http.MethodGet, "/api/events?type=whale", "")
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, body["events"])

		code, _ = c.do(http.MethodPut, "/api/settings/default-threshold", `{"amount":0}`)
		assert.Equal(t, http.StatusBadRequest, code)

		code, _ = c.do(http.MethodPut, "/api/settings/default-threshold", `{"amount":`)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("archives and status", func(t *testing.T) {
		code, body := c.do(http.MethodGet, "/api/archives", "")
		require.Equal(t, http.StatusOK, code)
		archives := body["archives"].([]any)
		require.Len(t, archives, 1)
		assert.Equal(t, "archive/qx_events/2025-01.json", archives[0].(map[string]any)["path"])

		code, body = c.do(http.MethodGet, "/api/archives/history", "")
		require.Equal(t, http.StatusOK, code)
		runs := body["runs"].([]any)
		require.Len(t, runs, 1)
		assert.Equal(t, domain.AuditEventArchive, runs[0].(map[string]any)["event"])

		code, body = c.do(http.MethodGet, "/api/status", "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "api", body["mode"])
	})
}

func TestServer_WebhookRejectsBadPayload(t *testing.T) {
	srv := newTestServer(t, Config{})
	resp, err := http.Post(srv.URL+"/api/webhook/qx", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestServer_AuthAndPublicRoutes(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ArchiveTrigger(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := client{t: t, url: srv.URL}

	code, body := c.do(http.MethodPost, "/api/archives/run", "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "accepted", body["status"])

	resp, err := http.Post(srv.URL+"/api/archives/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_WebhookRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{WebhookRateLimit: 1, WebhookRateWindow: time.Minute})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/api/webhook/qx", "application/json", strings.NewReader("[]"))
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

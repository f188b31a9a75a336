package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/server/handler"
	"github.com/alanyoungcy/qxwatch/internal/server/middleware"
	"github.com/alanyoungcy/qxwatch/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Webhook rate limit per client IP. Zero disables limiting.
	WebhookRateLimit  int
	WebhookRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// A nil handler leaves its routes unregistered.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Events   *handler.EventHandler
	Wallets  *handler.WalletHandler
	Settings *handler.SettingsHandler
	Webhook  *handler.WebhookHandler
	Archives *handler.ArchiveHandler
	Pipeline *handler.PipelineHandler
}

// publicPrefixes are reachable without the API key.
var publicPrefixes = []string{"/api/health", "/api/webhook/", "/ws"}

// Server is the HTTP + WebSocket API server for the QX dashboard.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	if h := handlers.Health; h != nil {
		mux.HandleFunc("GET /api/health", h.HealthCheck)
	}
	if h := handlers.Status; h != nil {
		mux.HandleFunc("GET /api/status", h.GetStatus)
	}

	if h := handlers.Events; h != nil {
		mux.HandleFunc("GET /api/events", h.ListEvents)
		mux.HandleFunc("GET /api/events/chart", h.GetChart)
		mux.HandleFunc("GET /api/events/kpi", h.GetKPI)
		mux.HandleFunc("GET /api/events/stream", h.ReplayStream)
		mux.HandleFunc("GET /api/overview", h.GetOverview)
		mux.HandleFunc("GET /api/tokens", h.ListTokens)
	}

	if h := handlers.Wallets; h != nil {
		mux.HandleFunc("GET /api/wallets", h.ListWallets)
		mux.HandleFunc("GET /api/wallets/{address}", h.GetWallet)
		mux.HandleFunc("GET /api/wallets/{address}/analysis", h.AnalyzeWallet)
		mux.HandleFunc("PUT /api/wallets/{address}/labels", h.SetLabels)
		mux.HandleFunc("POST /api/wallets/{address}/labels", h.AddLabel)
		mux.HandleFunc("PATCH /api/wallets/{address}/labels/{index}", h.UpdateLabel)
		mux.HandleFunc("DELETE /api/wallets/{address}/labels/{index}", h.RemoveLabel)
	}

	if h := handlers.Settings; h != nil {
		mux.HandleFunc("GET /api/settings/thresholds", h.GetThresholds)
		mux.HandleFunc("PUT /api/settings/thresholds", h.UpdateThresholds)
		mux.HandleFunc("PUT /api/settings/default-threshold", h.UpdateDefault)
	}

	if h := handlers.Webhook; h != nil {
		var receive http.Handler = http.HandlerFunc(h.Receive)
		if limiter != nil && cfg.WebhookRateLimit > 0 {
			window := cfg.WebhookRateWindow
			if window <= 0 {
				window = time.Minute
			}
			receive = middleware.RateLimit(limiter, "webhook", cfg.WebhookRateLimit, window, logger)(receive)
		}
		mux.Handle("POST /api/webhook/qx", receive)
	}

	if h := handlers.Archives; h != nil {
		mux.HandleFunc("GET /api/archives", h.ListArchives)
		mux.HandleFunc("GET /api/archives/history", h.GetHistory)
	}
	if h := handlers.Pipeline; h != nil {
		mux.HandleFunc("POST /api/archives/run", h.TriggerArchive)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, publicPrefixes...)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/qxwatch/internal/blob/s3"
	"github.com/alanyoungcy/qxwatch/internal/cache/redis"
	"github.com/alanyoungcy/qxwatch/internal/config"
	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/notify"
	"github.com/alanyoungcy/qxwatch/internal/platform/qubic"
	"github.com/alanyoungcy/qxwatch/internal/server/handler"
	"github.com/alanyoungcy/qxwatch/internal/store/clickhouse"
	"github.com/alanyoungcy/qxwatch/internal/store/memory"
	"github.com/alanyoungcy/qxwatch/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Events   domain.EventStore
	Wallets  domain.WalletStore
	Audit    domain.AuditStore
	Settings domain.SettingsStore
	Changes  domain.ChangeFeed

	// Optional ClickHouse mirror: serves full scans and receives inserts.
	Scan   domain.EventSource
	Mirror *clickhouse.EventStore

	// Caches
	QueryCache  domain.QueryCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// External APIs
	Analyzer *qubic.Analyzer

	// Notifications
	Notifier *notify.Notifier

	// Health checks and the backend summary reported by /api/status.
	Checks   map[string]handler.Pinger
	Backends map[string]string
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Checks:   map[string]handler.Pinger{},
		Backends: map[string]string{},
	}

	var err error
	if strings.EqualFold(cfg.Driver, "memory") {
		wireMemory(cfg, deps)
	} else {
		closers, err = wireExternal(ctx, cfg, deps, logger, closers)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	// --- ClickHouse scan mirror ---
	if cfg.ClickHouse.Enabled {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })

		mirror := clickhouse.NewEventStore(conn)
		if err := mirror.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse schema: %w", err)
		}
		deps.Scan = mirror
		deps.Mirror = mirror
		deps.Checks["clickhouse"] = conn
		deps.Backends["scan"] = "clickhouse"
	}

	// --- Qubic RPC ---
	deps.Analyzer = qubic.NewAnalyzer(qubic.NewClient(cfg.Qubic.RPCURL, cfg.Qubic.Timeout.Duration), logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireMemory keeps every backend in process. Nothing survives a restart.
func wireMemory(cfg *config.Config, deps *Dependencies) {
	events := memory.NewEventStore()
	blobs := memory.NewBlobStore()
	audit := memory.NewAuditStore()

	deps.Events = events
	deps.Changes = events
	deps.Wallets = memory.NewWalletStore()
	deps.Audit = audit
	deps.Settings = memory.NewSettingsStore()

	deps.QueryCache = memory.NewQueryCache(cfg.Events.CacheTTL.Duration)
	deps.RateLimiter = memory.NewRateLimiter(cfg.Server.WebhookRateLimit, cfg.Server.WebhookRateWindow.Duration)
	deps.LockManager = memory.NewLockManager()
	deps.SignalBus = memory.NewSignalBus()

	deps.BlobWriter = blobs
	deps.BlobReader = blobs
	deps.Archiver = s3blob.NewArchiver(blobs, events, audit)

	for _, name := range []string{"events", "cache", "blob"} {
		deps.Backends[name] = "memory"
	}
}

// wireExternal connects Postgres, Redis and (when a bucket is configured)
// S3. Each successful connection appends its closer.
func wireExternal(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger, closers []func()) ([]func(), error) {
	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:             cfg.Supabase.DSN,
		Host:            cfg.Supabase.Host,
		Port:            cfg.Supabase.Port,
		Database:        cfg.Supabase.Database,
		User:            cfg.Supabase.User,
		Password:        cfg.Supabase.Password,
		SSLMode:         cfg.Supabase.SSLMode,
		MaxConns:        cfg.Supabase.PoolMaxConns,
		MinConns:        cfg.Supabase.PoolMinConns,
		ApplicationName: "qxwatch",
	})
	if err != nil {
		return closers, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return closers, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Events = postgres.NewEventStore(pool)
	deps.Wallets = postgres.NewWalletStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)
	deps.Changes = postgres.NewChangeFeed(pool, logger)
	deps.Checks["postgres"] = pgClient
	deps.Backends["events"] = "postgres"

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		URL:        cfg.Redis.URL,
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return closers, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Settings = redis.NewSettingsStore(redisClient)
	deps.QueryCache = redis.NewQueryCache(redisClient, cfg.Events.CacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.WebhookRateLimit, cfg.Server.WebhookRateWindow.Duration)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	deps.Checks["redis"] = redisClient
	deps.Backends["cache"] = "redis"

	// --- S3 archive ---
	if cfg.S3.Bucket == "" {
		return closers, nil
	}
	bucket, err := s3blob.Open(ctx, s3blob.BucketConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return closers, fmt.Errorf("wire: s3: %w", err)
	}

	deps.BlobWriter = bucket
	deps.BlobReader = bucket
	deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Events, deps.Audit)
	deps.Checks["s3"] = bucket
	deps.Backends["blob"] = "s3"
	return closers, nil
}

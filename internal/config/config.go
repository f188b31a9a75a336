// Package config defines the top-level configuration for qxwatch and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by QXWATCH_* environment variables.
type Config struct {
	Supabase   SupabaseConfig   `toml:"supabase"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Qubic      QubicConfig      `toml:"qubic"`
	Whale      WhaleConfig      `toml:"whale"`
	Events     EventsConfig     `toml:"events"`
	Archive    ArchiveConfig    `toml:"archive"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	// Driver selects the storage backends: "postgres" (Postgres + Redis +
	// S3) or "memory" (everything in process).
	Driver string `toml:"driver"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ClickHouseConfig holds the optional analytics mirror used for full scans.
type ClickHouseConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// KeyPrefix namespaces every key; pub/sub channels are not prefixed.
	KeyPrefix string `toml:"key_prefix"`
	// StreamMaxLen caps the replay stream of ingested events.
	StreamMaxLen int64 `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// WebhookSecret enables HMAC signature checks on webhook deliveries.
	WebhookSecret     string   `toml:"webhook_secret"`
	WebhookRateLimit  int      `toml:"webhook_rate_limit"`
	WebhookRateWindow duration `toml:"webhook_rate_window"`
	// WebhookDedupWindow drops redelivered txIds; zero disables it.
	WebhookDedupWindow duration `toml:"webhook_dedup_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	ExplorerURL       string   `toml:"explorer_url"`
}

// QubicConfig holds the Qubic RPC endpoint used for wallet analysis.
type QubicConfig struct {
	RPCURL  string   `toml:"rpc_url"`
	Timeout duration `toml:"timeout"`
}

// WhaleConfig holds the default threshold applied on first run, before any
// user setting is saved.
type WhaleConfig struct {
	DefaultThreshold int64 `toml:"default_threshold"`
}

// EventsConfig holds query orchestration parameters.
type EventsConfig struct {
	PageSize           int      `toml:"page_size"`
	BatchSize          int      `toml:"batch_size"`
	CacheTTL           duration `toml:"cache_ttl"`
	InvalidateDebounce duration `toml:"invalidate_debounce"`
	Timezone           string   `toml:"timezone"`
}

// ArchiveConfig holds the archive job parameters.
type ArchiveConfig struct {
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		ClickHouse: ClickHouseConfig{
			DSN: "clickhouse://default:@localhost:9000/default",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "qxwatch:",
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "qxwatch-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			WebhookRateLimit:   120,
			WebhookRateWindow:  duration{time.Minute},
			WebhookDedupWindow: duration{10 * time.Minute},
		},
		Notify: NotifyConfig{
			Events:      []string{"whale_alert", "archive_completed"},
			ExplorerURL: "https://explorer.qubic.org/network/tx/",
		},
		Qubic: QubicConfig{
			RPCURL:  "https://rpc.qubic.org",
			Timeout: duration{15 * time.Second},
		},
		Whale: WhaleConfig{
			DefaultThreshold: 10_000,
		},
		Events: EventsConfig{
			PageSize:           50,
			BatchSize:          1000,
			CacheTTL:           duration{30 * time.Second},
			InvalidateDebounce: duration{250 * time.Millisecond},
			Timezone:           "UTC",
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Mode:     "full",
		LogLevel: "info",
		Driver:   "postgres",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":     true,
	"ingest":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// ServesHTTP reports whether the mode runs the HTTP server.
func (c *Config) ServesHTTP() bool {
	m := strings.ToLower(c.Mode)
	return m == "api" || m == "ingest" || m == "full"
}

// RunsArchive reports whether the mode runs the archive job.
func (c *Config) RunsArchive() bool {
	m := strings.ToLower(c.Mode)
	return m == "archive" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, ingest, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validDrivers[strings.ToLower(c.Driver)] {
		errs = append(errs, fmt.Sprintf("unknown driver %q (valid: postgres, memory)", c.Driver))
	}

	if strings.EqualFold(c.Driver, "postgres") {
		// Supabase
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}

		// Redis
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			errs = append(errs, "redis: addr or url must be set")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		// S3 is only needed to archive.
		if c.RunsArchive() && c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.ClickHouse.Enabled && c.ClickHouse.DSN == "" {
		errs = append(errs, "clickhouse: dsn must be set when enabled")
	}

	if c.ServesHTTP() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.WebhookRateLimit < 0 {
			errs = append(errs, "server: webhook_rate_limit must be >= 0")
		}
	}

	if c.Whale.DefaultThreshold <= 0 {
		errs = append(errs, "whale: default_threshold must be > 0")
	}

	if c.Events.PageSize < 1 || c.Events.PageSize > 500 {
		errs = append(errs, fmt.Sprintf("events: page_size must be 1-500, got %d", c.Events.PageSize))
	}
	if c.Events.BatchSize < 1 {
		errs = append(errs, "events: batch_size must be >= 1")
	}
	if _, err := time.LoadLocation(c.Events.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("events: unknown timezone %q", c.Events.Timezone))
	}

	if c.RunsArchive() {
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies QXWATCH_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known QXWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "QXWATCH_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "DATABASE_URL") // platform default
	setStr(&cfg.Supabase.Host, "QXWATCH_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "QXWATCH_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "QXWATCH_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "QXWATCH_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "QXWATCH_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "QXWATCH_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "QXWATCH_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "QXWATCH_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "QXWATCH_SUPABASE_RUN_MIGRATIONS")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "QXWATCH_CLICKHOUSE_ENABLED")
	setStr(&cfg.ClickHouse.DSN, "QXWATCH_CLICKHOUSE_DSN")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "QXWATCH_REDIS_URL")
	setStr(&cfg.Redis.Addr, "QXWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "QXWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "QXWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "QXWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "QXWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "QXWATCH_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "QXWATCH_REDIS_KEY_PREFIX")
	setInt64(&cfg.Redis.StreamMaxLen, "QXWATCH_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "QXWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "QXWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "QXWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "QXWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "QXWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "QXWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "QXWATCH_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "QXWATCH_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform default
	setStringSlice(&cfg.Server.CORSOrigins, "QXWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "QXWATCH_SERVER_API_KEY")
	setStr(&cfg.Server.WebhookSecret, "QXWATCH_SERVER_WEBHOOK_SECRET")
	setInt(&cfg.Server.WebhookRateLimit, "QXWATCH_SERVER_WEBHOOK_RATE_LIMIT")
	setDuration(&cfg.Server.WebhookRateWindow, "QXWATCH_SERVER_WEBHOOK_RATE_WINDOW")
	setDuration(&cfg.Server.WebhookDedupWindow, "QXWATCH_SERVER_WEBHOOK_DEDUP_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "QXWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "QXWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "QXWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "QXWATCH_NOTIFY_EVENTS")
	setStr(&cfg.Notify.ExplorerURL, "QXWATCH_NOTIFY_EXPLORER_URL")

	// ── Qubic ──
	setStr(&cfg.Qubic.RPCURL, "QXWATCH_QUBIC_RPC_URL")
	setDuration(&cfg.Qubic.Timeout, "QXWATCH_QUBIC_TIMEOUT")

	// ── Whale ──
	setInt64(&cfg.Whale.DefaultThreshold, "QXWATCH_WHALE_DEFAULT_THRESHOLD")

	// ── Events ──
	setInt(&cfg.Events.PageSize, "QXWATCH_EVENTS_PAGE_SIZE")
	setInt(&cfg.Events.BatchSize, "QXWATCH_EVENTS_BATCH_SIZE")
	setDuration(&cfg.Events.CacheTTL, "QXWATCH_EVENTS_CACHE_TTL")
	setDuration(&cfg.Events.InvalidateDebounce, "QXWATCH_EVENTS_INVALIDATE_DEBOUNCE")
	setStr(&cfg.Events.Timezone, "QXWATCH_EVENTS_TIMEZONE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "QXWATCH_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "QXWATCH_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "QXWATCH_MODE")
	setStr(&cfg.LogLevel, "QXWATCH_LOG_LEVEL")
	setStr(&cfg.Driver, "QXWATCH_DRIVER")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

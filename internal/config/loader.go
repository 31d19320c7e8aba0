package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RISKENGINE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RISKENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "RISKENGINE_FEED_URL")
	setStr(&cfg.Feed.APIKey, "RISKENGINE_FEED_API_KEY")
	setStringSlice(&cfg.Feed.Channels, "RISKENGINE_FEED_CHANNELS")
	setStringSlice(&cfg.Feed.Symbols, "RISKENGINE_FEED_SYMBOLS")
	setStr(&cfg.Feed.TradeEvent, "RISKENGINE_FEED_TRADE_EVENT")
	setDuration(&cfg.Feed.ReconnectDelay, "RISKENGINE_FEED_RECONNECT_DELAY")
	setDuration(&cfg.Feed.ThrottleWindow, "RISKENGINE_FEED_THROTTLE_WINDOW")
	setInt(&cfg.Feed.UpdateBuffer, "RISKENGINE_FEED_UPDATE_BUFFER")

	// ── Risk ──
	setDuration(&cfg.Risk.SnapshotInterval, "RISKENGINE_RISK_SNAPSHOT_INTERVAL")
	setInt(&cfg.Risk.MaxConcurrentTicks, "RISKENGINE_RISK_MAX_CONCURRENT_TICKS")
	setDuration(&cfg.Risk.LeaderLockTTL, "RISKENGINE_RISK_LEADER_LOCK_TTL")
	setDuration(&cfg.Risk.PriceTTL, "RISKENGINE_RISK_PRICE_TTL")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.DSN, "RISKENGINE_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "RISKENGINE_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "RISKENGINE_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "RISKENGINE_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "RISKENGINE_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "RISKENGINE_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "RISKENGINE_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "RISKENGINE_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "RISKENGINE_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "RISKENGINE_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "RISKENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RISKENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RISKENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RISKENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RISKENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RISKENGINE_REDIS_TLS_ENABLED")

	// ── Publisher / NATS ──
	setStr(&cfg.Publisher.Backend, "RISKENGINE_PUBLISHER_BACKEND")
	setStr(&cfg.NATS.URL, "RISKENGINE_NATS_URL")
	setStr(&cfg.NATS.SubjectPrefix, "RISKENGINE_NATS_SUBJECT_PREFIX")

	// ── S3 / Archive ──
	setStr(&cfg.S3.Endpoint, "RISKENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RISKENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "RISKENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RISKENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RISKENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RISKENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RISKENGINE_S3_FORCE_PATH_STYLE")
	setBool(&cfg.Archive.Enabled, "RISKENGINE_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "RISKENGINE_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "RISKENGINE_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.Prune, "RISKENGINE_ARCHIVE_PRUNE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RISKENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RISKENGINE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RISKENGINE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "RISKENGINE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "RISKENGINE_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RISKENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RISKENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RISKENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RISKENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "RISKENGINE_MODE")
	setStr(&cfg.LogLevel, "RISKENGINE_LOG_LEVEL")
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

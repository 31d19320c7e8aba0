// Package config defines the top-level configuration for the risk engine and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RISKENGINE_* environment variables.
type Config struct {
	Feed      FeedConfig      `toml:"feed"`
	Risk      RiskConfig      `toml:"risk"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	Publisher PublisherConfig `toml:"publisher"`
	NATS      NATSConfig      `toml:"nats"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// FeedConfig describes the market-data stream and the tracked symbols.
type FeedConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
	// Channels are the stream subscriptions, e.g. "XT.BTC-USD".
	Channels []string `toml:"channels"`
	// Symbols are the canonical BASE-QUOTE symbols. Every channel must map to
	// one of them.
	Symbols []string `toml:"symbols"`
	// Aliases maps extra raw spellings to a canonical symbol.
	Aliases          map[string]string `toml:"aliases"`
	TradeEvent       string            `toml:"trade_event"`
	ReconnectDelay   duration          `toml:"reconnect_delay"`
	HandshakeTimeout duration          `toml:"handshake_timeout"`
	// ThrottleWindow is the minimum spacing of published price updates per
	// symbol. Zero publishes every trade.
	ThrottleWindow duration `toml:"throttle_window"`
	// UpdateBuffer is the capacity of the ingestor to evaluator channel.
	UpdateBuffer int `toml:"update_buffer"`
}

// RiskConfig tunes the snapshot cache and the evaluator.
type RiskConfig struct {
	SnapshotInterval   duration `toml:"snapshot_interval"`
	MaxConcurrentTicks int      `toml:"max_concurrent_ticks"`
	// LeaderLockTTL is the lease of the single-instance lock held in engine
	// mode. It is refreshed at a third of the TTL.
	LeaderLockTTL duration `toml:"leader_lock_ttl"`
	// PriceTTL expires mirrored prices in Redis. Zero keeps them forever.
	PriceTTL duration `toml:"price_ttl"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PublisherConfig selects the real-time publish transport.
type PublisherConfig struct {
	// Backend is "redis" (pub/sub) or "nats".
	Backend string `toml:"backend"`
}

// NATSConfig holds NATS connection parameters.
type NATSConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
	Name          string `toml:"name"`
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

// ArchiveConfig controls the monthly audit-log export to S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	// Prune deletes archived rows from the audit table after upload.
	Prune bool `toml:"prune"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps price requests per client IP per RateWindow. Zero
	// disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds operator alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	QueueSize         int      `toml:"queue_size"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:              "wss://socket.polygon.io/crypto",
			Channels:         []string{"XT.BTC-USD", "XT.ETH-USD"},
			Symbols:          []string{"BTC-USD", "ETH-USD"},
			TradeEvent:       "XT",
			ReconnectDelay:   duration{5 * time.Second},
			HandshakeTimeout: duration{15 * time.Second},
			ThrottleWindow:   duration{300 * time.Millisecond},
			UpdateBuffer:     1024,
		},
		Risk: RiskConfig{
			SnapshotInterval:   duration{10 * time.Second},
			MaxConcurrentTicks: 8,
			LeaderLockTTL:      duration{30 * time.Second},
			PriceTTL:           duration{24 * time.Hour},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "require",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Publisher: PublisherConfig{Backend: "redis"},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "riskengine",
			Name:          "riskengine",
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:    []string{"liquidation", "account_failed", "error"},
			QueueSize: 256,
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine":  true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsStore reports whether the configured mode reads and writes Postgres.
func (c *Config) NeedsStore() bool {
	return strings.ToLower(c.Mode) == "engine"
}

// NeedsRedis reports whether the configured mode uses Redis. Engine mode
// always does for its leader lock; monitor mode only as a publish backend.
func (c *Config) NeedsRedis() bool {
	return c.NeedsStore() || strings.ToLower(c.Publisher.Backend) == "redis"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if strings.TrimSpace(c.Feed.URL) == "" {
		errs = append(errs, "feed: url must not be empty")
	}
	if len(c.Feed.Channels) == 0 {
		errs = append(errs, "feed: channels must not be empty")
	}
	if len(c.Feed.Symbols) == 0 {
		errs = append(errs, "feed: symbols must not be empty")
	}
	if c.Feed.ThrottleWindow.Duration < 0 {
		errs = append(errs, "feed: throttle_window must be >= 0")
	}
	if c.Feed.UpdateBuffer < 1 {
		errs = append(errs, "feed: update_buffer must be >= 1")
	}

	// Risk
	if c.NeedsStore() {
		if c.Risk.SnapshotInterval.Duration <= 0 {
			errs = append(errs, "risk: snapshot_interval must be > 0")
		}
		if c.Risk.MaxConcurrentTicks < 1 {
			errs = append(errs, "risk: max_concurrent_ticks must be >= 1")
		}
		if c.Risk.LeaderLockTTL.Duration < time.Second {
			errs = append(errs, "risk: leader_lock_ttl must be >= 1s")
		}
	}

	// Supabase
	if c.NeedsStore() {
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
	}

	// Redis
	if c.NeedsRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Publisher
	switch strings.ToLower(c.Publisher.Backend) {
	case "redis":
	case "nats":
		if c.NATS.URL == "" {
			errs = append(errs, "nats: url must not be empty when publisher.backend is nats")
		}
	default:
		errs = append(errs, fmt.Sprintf("publisher: unknown backend %q (valid: redis, nats)", c.Publisher.Backend))
	}

	// Archive
	if c.Archive.Enabled && c.NeedsStore() {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.QueueSize < 1 {
		errs = append(errs, "notify: queue_size must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Risk.SnapshotInterval.Duration)
	assert.Equal(t, 300*time.Millisecond, cfg.Feed.ThrottleWindow.Duration)
	assert.Equal(t, 5*time.Second, cfg.Feed.ReconnectDelay.Duration)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "riskengine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"

[feed]
channels = ["XT.SOL-USD"]
symbols = ["SOL-USD"]
throttle_window = "1s"

[feed.aliases]
SOLUSDT = "SOL-USD"

[risk]
snapshot_interval = "30s"

[publisher]
backend = "nats"
`), 0o600))

	t.Setenv("RISKENGINE_NATS_URL", "nats://nats.internal:4222")
	t.Setenv("RISKENGINE_FEED_API_KEY", "feed-secret")
	t.Setenv("RISKENGINE_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, []string{"XT.SOL-USD"}, cfg.Feed.Channels)
	assert.Equal(t, map[string]string{"SOLUSDT": "SOL-USD"}, cfg.Feed.Aliases)
	assert.Equal(t, time.Second, cfg.Feed.ThrottleWindow.Duration)
	assert.Equal(t, 30*time.Second, cfg.Risk.SnapshotInterval.Duration)
	assert.Equal(t, "nats", cfg.Publisher.Backend)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, "feed-secret", cfg.Feed.APIKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	// Untouched sections keep their defaults.
	assert.Equal(t, 8, cfg.Risk.MaxConcurrentTicks)

	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.NeedsStore())
	assert.False(t, cfg.NeedsRedis())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[risk]\nsnapshot_interval = \"soon\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: decode")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Feed.Channels = nil
	cfg.Publisher.Backend = "kafka"
	cfg.Notify.TelegramToken = "token-only"
	cfg.Archive.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "feed: channels must not be empty")
	assert.Contains(t, msg, `publisher: unknown backend "kafka"`)
	assert.Contains(t, msg, "telegram_token and telegram_chat_id")
	// Archive checks only apply in engine mode.
	assert.NotContains(t, msg, "s3: bucket")
}

func TestValidateEngineRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Host = ""
	cfg.Risk.SnapshotInterval.Duration = 0
	cfg.Archive.Enabled = true
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "supabase: host must not be empty")
	assert.Contains(t, msg, "risk: snapshot_interval must be > 0")
	assert.Contains(t, msg, "s3: bucket must not be empty")
	assert.Contains(t, msg, "redis: addr must not be empty")

	cfg = Defaults()
	cfg.Supabase.Host = ""
	cfg.Supabase.DSN = "postgres://u:p@db:5432/app"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Password = "pg-pass"
	cfg.Feed.APIKey = "feed-key"
	cfg.Server.APIKey = "api-key"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"
	cfg.Feed.Aliases = map[string]string{"XBTUSD": "BTC-USD"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "***", out.Feed.APIKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Redis.Password)

	out.Feed.Symbols[0] = "DOGE-USD"
	out.Feed.Aliases["XBTUSD"] = "ETH-USD"
	assert.Equal(t, "BTC-USD", cfg.Feed.Symbols[0])
	assert.Equal(t, "BTC-USD", cfg.Feed.Aliases["XBTUSD"])
	assert.Equal(t, "pg-pass", cfg.Supabase.Password)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/riskengine/internal/blob/s3"
	natsbroker "github.com/alanyoungcy/riskengine/internal/broker/nats"
	"github.com/alanyoungcy/riskengine/internal/cache/redis"
	"github.com/alanyoungcy/riskengine/internal/config"
	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
	"github.com/alanyoungcy/riskengine/internal/notify"
	"github.com/alanyoungcy/riskengine/internal/risk"
	"github.com/alanyoungcy/riskengine/internal/server/handler"
	"github.com/alanyoungcy/riskengine/internal/store/postgres"
	"github.com/alanyoungcy/riskengine/internal/symbol"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Metrics *metrics.Metrics
	Symbols *symbol.Table
	State   *risk.State
	Prices  *risk.PriceTable

	// Stores (engine mode only)
	PositionStore domain.PositionStore
	AccountStore  domain.AccountStore
	AuditStore    *postgres.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Publisher carries ticker and private-user events to clients.
	Publisher domain.Publisher

	// Archiver is nil unless audit archiving is enabled.
	Archiver *s3blob.AuditArchiver

	Notifier *notify.Notifier

	// Checks are the readiness probes of every wired backend.
	Checks []handler.Check
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
	fail := func(format string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf(format, err)
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		State:   risk.NewState(),
		Prices:  risk.NewPriceTable(),
	}

	// --- Symbols ---
	symbols, err := symbol.NewTable(cfg.Feed.Symbols, cfg.Feed.Aliases)
	if err != nil {
		return fail("wire: symbols: %w", err)
	}
	if err := symbols.Validate(cfg.Feed.Channels); err != nil {
		return fail("wire: symbols: %w", err)
	}
	deps.Symbols = symbols

	// --- PostgreSQL ---
	if cfg.NeedsStore() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks = append(deps.Checks, handler.Check{Name: "postgres", Probe: pgClient.Ping})
	}

	// --- Redis ---
	if cfg.NeedsRedis() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Risk.PriceTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks = append(deps.Checks, handler.Check{Name: "redis", Probe: redisClient.Ping})
	}

	// --- Publisher ---
	switch strings.ToLower(cfg.Publisher.Backend) {
	case "nats":
		pub, err := natsbroker.Connect(natsbroker.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Name:          cfg.NATS.Name,
		}, logger)
		if err != nil {
			return fail("wire: nats: %w", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Publisher = pub
		deps.Checks = append(deps.Checks, handler.Check{Name: "nats", Probe: func(context.Context) error {
			if !pub.Connected() {
				return errors.New("nats: not connected")
			}
			return nil
		}})
	default:
		deps.Publisher = redis.NewPublisher(deps.SignalBus)
	}

	// --- S3 audit archive ---
	if cfg.Archive.Enabled && deps.AuditStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("wire: s3: %w", err)
		}
		var pruner s3blob.AuditPruner
		if cfg.Archive.Prune {
			pruner = deps.AuditStore
		}
		deps.Archiver = s3blob.NewAuditArchiver(s3blob.NewWriter(s3Client), deps.AuditStore, pruner, deps.Metrics, logger)
		deps.Checks = append(deps.Checks, handler.Check{Name: "s3", Probe: s3Client.Health})
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.QueueSize, logger)

	return deps, cleanup, nil
}

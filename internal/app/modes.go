package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/feed"
	"github.com/alanyoungcy/riskengine/internal/service"
)

// leaderLockKey guards against two engines liquidating the same book.
const leaderLockKey = "riskengine:leader"

// EngineMode runs the full pipeline: price ingest and publish, the snapshot
// cache, the risk evaluator with its liquidation and account-failure
// protocols, operator alerts, audit archiving and the HTTP API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting engine mode")

	ttl := a.cfg.Risk.LeaderLockTTL.Duration
	lock, err := deps.LockManager.Acquire(ctx, leaderLockKey, ttl)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another engine instance is running: %w", err)
		}
		return fmt.Errorf("app: acquire leader lock: %w", err)
	}
	defer lock.Release()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.holdLeadership(ctx, lock, ttl)
	})

	g.Go(func() error {
		return deps.Notifier.Run(ctx)
	})

	liquidator := service.NewLiquidator(
		deps.PositionStore, deps.AccountStore, deps.AuditStore,
		deps.State, deps.Publisher, deps.Notifier, deps.Metrics, a.logger,
	)
	failer := service.NewAccountFailer(
		deps.PositionStore, deps.AccountStore, deps.AuditStore,
		deps.State, deps.Publisher, deps.Notifier, deps.Metrics, a.logger,
	)
	riskSvc := service.NewRiskService(
		deps.State, deps.Prices, deps.Symbols, liquidator, failer,
		service.RiskConfig{MaxConcurrentTicks: a.cfg.Risk.MaxConcurrentTicks},
		deps.Metrics, a.logger,
	)
	snapshotSvc := service.NewSnapshotService(
		deps.PositionStore, deps.State, deps.Symbols,
		a.cfg.Risk.SnapshotInterval.Duration, deps.Metrics, a.logger,
	)

	updates := make(chan domain.PriceUpdate, a.cfg.Feed.UpdateBuffer)
	ingestor := a.newIngestor(deps, updates)

	g.Go(func() error {
		return snapshotSvc.Run(ctx)
	})
	g.Go(func() error {
		return riskSvc.Run(ctx, updates)
	})
	g.Go(func() error {
		return ingestor.Run(ctx)
	})

	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			return deps.Archiver.Run(ctx, a.cfg.Archive.Interval.Duration, retention)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, ingestor)
	}

	return g.Wait()
}

// MonitorMode ingests trades and publishes throttled prices without touching
// the store. It serves the price API and the websocket relay.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	ingestor := a.newIngestor(deps, nil)
	g.Go(func() error {
		return ingestor.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, ingestor)
	}

	return g.Wait()
}

// newIngestor builds the feed ingestor and its publish throttle. updates may
// be nil when no evaluator consumes ticks.
func (a *App) newIngestor(deps *Dependencies, updates chan<- domain.PriceUpdate) *feed.Ingestor {
	throttle := feed.NewThrottle(
		deps.Publisher, deps.PriceCache,
		a.cfg.Feed.ThrottleWindow.Duration, deps.Metrics, a.logger,
	)
	return feed.NewIngestor(feed.Config{
		URL:              a.cfg.Feed.URL,
		APIKey:           a.cfg.Feed.APIKey,
		Channels:         a.cfg.Feed.Channels,
		TradeEvent:       a.cfg.Feed.TradeEvent,
		ReconnectDelay:   a.cfg.Feed.ReconnectDelay.Duration,
		HandshakeTimeout: a.cfg.Feed.HandshakeTimeout.Duration,
	}, deps.Symbols, deps.Prices, updates, throttle, deps.Metrics, a.logger)
}

// holdLeadership refreshes the leader lock at a third of its TTL. Losing the
// lock to another holder stops the engine; other refresh errors are retried
// on the next tick.
func (a *App) holdLeadership(ctx context.Context, lock *domain.Lock, ttl time.Duration) error {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := lock.Refresh(ctx, ttl)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrLockHeld):
				return fmt.Errorf("app: leader lock lost: %w", err)
			default:
				a.logger.WarnContext(ctx, "app: leader lock refresh failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/riskengine/internal/feed"
	"github.com/alanyoungcy/riskengine/internal/server"
	"github.com/alanyoungcy/riskengine/internal/server/handler"
	"github.com/alanyoungcy/riskengine/internal/server/ws"
)

// startHTTPServer serves the API, metrics and websocket relay on g. Store
// backed routes are registered only when the store is wired.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, ingestor *feed.Ingestor) {
	startedAt := time.Now().UTC()

	checks := append([]handler.Check{{
		Name: "feed",
		Probe: func(context.Context) error {
			if !ingestor.Connected() {
				return errors.New("feed: not connected")
			}
			return nil
		},
	}}, deps.Checks...)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, startedAt, checks, a.logger),
		Prices:  handler.NewPriceHandler(deps.Prices, deps.Symbols),
		Metrics: deps.Metrics.Handler(),
	}
	if deps.PositionStore != nil {
		handlers.Risk = handler.NewRiskHandler(deps.State, deps.Prices)
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	// The hub relays from the Redis bus, so it only runs when prices are
	// published there.
	var hub *ws.Hub
	if deps.SignalBus != nil && strings.EqualFold(a.cfg.Publisher.Backend, "redis") {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: startedAt,
			Stats: func() (int, int, bool) {
				positions, accounts := deps.State.Counts()
				return positions, accounts, ingestor.Connected()
			},
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

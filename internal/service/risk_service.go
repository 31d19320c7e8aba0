package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
	"github.com/alanyoungcy/riskengine/internal/risk"
	"github.com/alanyoungcy/riskengine/internal/symbol"
)

// RiskConfig holds the tunable parameters of the risk evaluator.
type RiskConfig struct {
	// MaxConcurrentTicks bounds how many price updates are evaluated at once.
	MaxConcurrentTicks int
}

// RiskService evaluates every price tick against the cached open positions:
// positions whose liquidation price is reached are liquidated, then each
// account touched by the tick is checked against its challenge limits.
type RiskService struct {
	state      *risk.State
	prices     *risk.PriceTable
	symbols    *symbol.Table
	liquidator *Liquidator
	failer     *AccountFailer
	cfg        RiskConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewRiskService creates a RiskService with all required dependencies.
func NewRiskService(
	state *risk.State,
	prices *risk.PriceTable,
	symbols *symbol.Table,
	liquidator *Liquidator,
	failer *AccountFailer,
	cfg RiskConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RiskService {
	if cfg.MaxConcurrentTicks <= 0 {
		cfg.MaxConcurrentTicks = 8
	}
	return &RiskService{
		state:      state,
		prices:     prices,
		symbols:    symbols,
		liquidator: liquidator,
		failer:     failer,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.With(slog.String("component", "risk")),
	}
}

// Run evaluates updates until ctx is cancelled or updates is closed. Each
// update is evaluated in its own goroutine, at most MaxConcurrentTicks at a
// time. Run waits for in-flight evaluations before returning.
func (s *RiskService) Run(ctx context.Context, updates <-chan domain.PriceUpdate) error {
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrentTicks))
	var wg sync.WaitGroup
	defer wg.Wait()

	s.logger.InfoContext(ctx, "risk_service: started",
		slog.Int("max_concurrent_ticks", s.cfg.MaxConcurrentTicks),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return ctx.Err()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				s.Evaluate(ctx, u.Symbol, u.Price)
			}()
		}
	}
}

// Evaluate checks every cached position on symbol against price and runs the
// liquidation and account-failure protocols as needed. Protocol failures are
// logged; they never stop the evaluation of sibling positions or accounts.
func (s *RiskService) Evaluate(ctx context.Context, sym string, price float64) {
	key := s.symbols.Normalize(sym)
	entries := s.state.PositionsFor(key)
	if len(entries) == 0 {
		return
	}

	start := time.Now()
	defer func() { s.metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	var g errgroup.Group
	var touched []string
	seen := make(map[string]bool)

	for _, e := range entries {
		if !seen[e.Position.AccountID] {
			seen[e.Position.AccountID] = true
			touched = append(touched, e.Position.AccountID)
		}
		if !e.Position.ShouldLiquidate(price) {
			continue
		}
		release, ok := s.state.ClaimPosition(e.Position.ID)
		if !ok {
			continue
		}

		s.logger.InfoContext(ctx, "risk_service: liquidation price reached",
			slog.String("position_id", e.Position.ID),
			slog.String("symbol", key),
			slog.Float64("price", price),
			slog.Float64("liquidation_price", e.Position.LiquidationPrice()),
		)
		g.Go(func() error {
			defer release()
			if _, err := s.liquidator.Liquidate(ctx, e, price, domain.ReasonLiquidationHit); err != nil &&
				!errors.Is(err, domain.ErrPositionNotOpen) {
				s.logger.ErrorContext(ctx, "risk_service: liquidation failed",
					slog.String("position_id", e.Position.ID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	// The tick's own price wins over the table, which may already hold a
	// newer print for the symbol.
	lookup := func(sym string) (float64, bool) {
		if sym == key {
			return price, true
		}
		return s.prices.Price(sym)
	}
	for _, id := range touched {
		s.checkAccount(ctx, id, lookup)
	}
}

// checkAccount marks the account's cached positions to market and runs the
// failure protocol when a challenge limit is breached.
func (s *RiskService) checkAccount(ctx context.Context, accountID string, lookup domain.PriceLookup) {
	acct, entries, ok := s.state.Account(accountID)
	if !ok || acct.Status == domain.AccountStatusFailed {
		return
	}

	positions := make([]domain.Position, len(entries))
	keys := make(map[string]string, len(entries))
	for i, e := range entries {
		positions[i] = e.Position
		keys[e.Position.ID] = e.Key
	}
	health := acct.Health(positions, func(p domain.Position) string { return keys[p.ID] }, lookup)

	reason := acct.Breach(health)
	if reason == "" {
		return
	}

	release, ok := s.state.ClaimAccount(accountID)
	if !ok {
		return
	}
	defer release()
	// A failure that finished between the read above and the claim has
	// already removed the account.
	if _, _, ok := s.state.Account(accountID); !ok {
		return
	}

	s.logger.WarnContext(ctx, "risk_service: challenge limit breached",
		slog.String("account_id", accountID),
		slog.String("reason", reason),
		slog.Float64("equity", health.Equity),
		slog.Float64("drawdown_pct", health.DrawdownPct),
	)
	if err := s.failer.Fail(ctx, accountID, acct.UserID, reason); err != nil {
		s.logger.ErrorContext(ctx, "risk_service: account failure protocol failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
	"github.com/alanyoungcy/riskengine/internal/risk"
)

// Audit and operator-alert event names.
const (
	AuditPositionLiquidated = "position_liquidated"
	AuditAccountFailed      = "account_failed"

	AlertLiquidation   = "liquidation"
	AlertAccountFailed = "account_failed"
)

// Alerter delivers operator alerts filtered by event type.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Liquidator runs the liquidation protocol for a single position. The steps
// are best effort and not transactional; the store guards the terminal
// transition so a repeated run is a no-op.
type Liquidator struct {
	positions domain.PositionStore
	accounts  domain.AccountStore
	audit     domain.AuditStore
	state     *risk.State
	pub       domain.Publisher
	alerts    Alerter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewLiquidator creates a Liquidator with all required dependencies.
func NewLiquidator(
	positions domain.PositionStore,
	accounts domain.AccountStore,
	audit domain.AuditStore,
	state *risk.State,
	pub domain.Publisher,
	alerts Alerter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Liquidator {
	return &Liquidator{
		positions: positions,
		accounts:  accounts,
		audit:     audit,
		state:     state,
		pub:       pub,
		alerts:    alerts,
		metrics:   m,
		logger:    logger.With(slog.String("component", "liquidation")),
		now:       time.Now,
	}
}

// Liquidate closes the position at price and books the realized PnL against
// its account. It returns domain.ErrPositionNotOpen when the position was
// already terminal in the store.
func (l *Liquidator) Liquidate(ctx context.Context, e risk.Entry, price float64, reason string) (float64, error) {
	pos := e.Position
	pnl := pos.PnL(price)

	rec := domain.LiquidationRecord{
		PositionID:  pos.ID,
		ExitPrice:   price,
		RealizedPnL: pnl,
		ClosedAt:    l.now().UTC(),
	}
	if err := l.positions.MarkLiquidated(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrPositionNotOpen) {
			l.state.RemovePosition(pos.ID)
			l.logger.InfoContext(ctx, "liquidation: position already closed",
				slog.String("position_id", pos.ID),
			)
			return 0, err
		}
		l.metrics.LiquidationErrors.Inc()
		return 0, fmt.Errorf("liquidation: mark position %s: %w", pos.ID, err)
	}

	// The row is terminal from here on; the cache must not offer it again.
	l.state.RemovePosition(pos.ID)

	acct, err := l.accounts.GetByID(ctx, pos.AccountID)
	if err != nil {
		l.metrics.LiquidationErrors.Inc()
		return pnl, fmt.Errorf("liquidation: load account %s: %w", pos.AccountID, err)
	}

	if _, err := l.accounts.ApplyRealizedPnL(ctx, domain.RealizedTrade{AccountID: acct.ID, PnL: pnl}); err != nil {
		l.metrics.LiquidationErrors.Inc()
		return pnl, fmt.Errorf("liquidation: apply pnl to account %s: %w", acct.ID, err)
	}
	l.state.ApplyRealized(acct.ID, pnl, false)
	l.metrics.Liquidations.WithLabelValues(e.Key, string(pos.Side)).Inc()

	l.logger.InfoContext(ctx, "liquidation: position liquidated",
		slog.String("position_id", pos.ID),
		slog.String("account_id", acct.ID),
		slog.String("symbol", e.Key),
		slog.String("side", string(pos.Side)),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("close_price", price),
		slog.Float64("pnl", pnl),
	)

	if acct.UserID != "" {
		payload := domain.LiquidationPayload{
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			ClosePrice: price,
			PnL:        pnl,
			Reason:     reason,
		}
		if err := l.pub.Publish(ctx, domain.UserChannel(acct.UserID), domain.EventLiquidation, payload); err != nil {
			l.logger.WarnContext(ctx, "liquidation: publish alert failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	detail := map[string]any{
		"position_id": pos.ID,
		"account_id":  acct.ID,
		"symbol":      pos.Symbol,
		"side":        string(pos.Side),
		"entry_price": pos.EntryPrice,
		"close_price": price,
		"quantity":    pos.Quantity,
		"leverage":    pos.EffectiveLeverage(),
		"pnl":         pnl,
		"reason":      reason,
	}
	if err := l.audit.Log(ctx, AuditPositionLiquidated, detail); err != nil {
		l.logger.WarnContext(ctx, "liquidation: audit log failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	msg := fmt.Sprintf("Position %s (%s %s) on account %s closed at %.8g, PnL %.2f: %s",
		pos.ID, pos.Side, pos.Symbol, acct.ID, price, pnl, reason)
	if err := l.alerts.Notify(ctx, AlertLiquidation, "Position liquidated", msg); err != nil {
		l.logger.WarnContext(ctx, "liquidation: operator alert failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	return pnl, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
	"github.com/alanyoungcy/riskengine/internal/risk"
)

// AccountFailer runs the account-failure protocol: every open position of
// the account is closed by the platform and the challenge is marked failed.
type AccountFailer struct {
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

// NewAccountFailer creates an AccountFailer with all required dependencies.
func NewAccountFailer(
	positions domain.PositionStore,
	accounts domain.AccountStore,
	audit domain.AuditStore,
	state *risk.State,
	pub domain.Publisher,
	alerts Alerter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AccountFailer {
	return &AccountFailer{
		positions: positions,
		accounts:  accounts,
		audit:     audit,
		state:     state,
		pub:       pub,
		alerts:    alerts,
		metrics:   m,
		logger:    logger.With(slog.String("component", "account_failure")),
		now:       time.Now,
	}
}

// Fail closes the account's open positions in one bulk update, marks the
// account failed and drops it from the risk state. Positions closed this way
// carry no exit price or realized PnL.
func (f *AccountFailer) Fail(ctx context.Context, accountID, userID, reason string) error {
	closed, err := f.positions.CloseAllForAccount(ctx, accountID, domain.PositionStatusClosedByPlatform, f.now().UTC())
	if err != nil {
		return fmt.Errorf("account_failure: close positions for %s: %w", accountID, err)
	}
	if err := f.accounts.SetStatus(ctx, accountID, domain.AccountStatusFailed); err != nil {
		return fmt.Errorf("account_failure: set account %s failed: %w", accountID, err)
	}

	removed := f.state.RemoveAccount(accountID)
	f.metrics.AccountFailures.WithLabelValues(reason).Inc()

	f.logger.WarnContext(ctx, "account_failure: account failed",
		slog.String("account_id", accountID),
		slog.String("reason", reason),
		slog.Int64("positions_closed", closed),
		slog.Int("cached_positions_removed", len(removed)),
	)

	if userID != "" {
		payload := domain.ChallengeFailedPayload{AccountID: accountID, Reason: reason}
		if err := f.pub.Publish(ctx, domain.UserChannel(userID), domain.EventChallengeFailed, payload); err != nil {
			f.logger.WarnContext(ctx, "account_failure: publish alert failed",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
		}
	}

	detail := map[string]any{
		"account_id":       accountID,
		"user_id":          userID,
		"reason":           reason,
		"positions_closed": closed,
	}
	if err := f.audit.Log(ctx, AuditAccountFailed, detail); err != nil {
		f.logger.WarnContext(ctx, "account_failure: audit log failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}

	msg := fmt.Sprintf("Account %s failed its challenge (%s); %d open position(s) closed by the platform.",
		accountID, reason, closed)
	if err := f.alerts.Notify(ctx, AlertAccountFailed, "Challenge failed", msg); err != nil {
		f.logger.WarnContext(ctx, "account_failure: operator alert failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

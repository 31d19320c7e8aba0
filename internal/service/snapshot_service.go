package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
	"github.com/alanyoungcy/riskengine/internal/risk"
	"github.com/alanyoungcy/riskengine/internal/symbol"
)

// SnapshotService periodically reloads every open position, with its account
// and challenge rules, and replaces the risk state wholesale.
type SnapshotService struct {
	positions domain.PositionStore
	state     *risk.State
	symbols   *symbol.Table
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewSnapshotService creates a SnapshotService. A non-positive interval
// defaults to 10s.
func NewSnapshotService(
	positions domain.PositionStore,
	state *risk.State,
	symbols *symbol.Table,
	interval time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SnapshotService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SnapshotService{
		positions: positions,
		state:     state,
		symbols:   symbols,
		interval:  interval,
		metrics:   m,
		logger:    logger.With(slog.String("component", "snapshot")),
		now:       time.Now,
	}
}

// Run refreshes once immediately and then on every interval until ctx is
// cancelled. A failed refresh keeps the previous snapshot.
func (s *SnapshotService) Run(ctx context.Context) error {
	s.refreshAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.refreshAndLog(ctx)
		}
	}
}

func (s *SnapshotService) refreshAndLog(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "snapshot_service: refresh failed, keeping previous snapshot",
			slog.String("error", err.Error()),
		)
	}
}

// Refresh loads the open positions and swaps them into the risk state.
// Positions of failed accounts are left out of the snapshot and closed by
// the platform in the store.
func (s *SnapshotService) Refresh(ctx context.Context) error {
	start := time.Now()

	rows, err := s.positions.ListOpenWithContext(ctx)
	if err != nil {
		s.metrics.SnapshotErrors.Inc()
		return fmt.Errorf("snapshot_service: load open positions: %w", err)
	}

	kept := make([]domain.PositionWithContext, 0, len(rows))
	var failed []string
	seen := make(map[string]bool)
	for _, row := range rows {
		if row.Account.Status == domain.AccountStatusFailed {
			s.logger.WarnContext(ctx, "snapshot_service: open position on failed account",
				slog.String("position_id", row.Position.ID),
				slog.String("account_id", row.Account.ID),
			)
			if !seen[row.Account.ID] {
				seen[row.Account.ID] = true
				failed = append(failed, row.Account.ID)
			}
			continue
		}
		kept = append(kept, row)
	}

	s.state.Replace(kept, func(p domain.Position) string {
		return s.symbols.Normalize(p.Symbol)
	})
	s.sweepFailed(ctx, failed)

	positions, accounts := s.state.Counts()
	s.metrics.CachedPositions.Set(float64(positions))
	s.metrics.CachedAccounts.Set(float64(accounts))
	s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())

	s.logger.DebugContext(ctx, "snapshot_service: refreshed",
		slog.Int("positions", positions),
		slog.Int("accounts", accounts),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// sweepFailed closes positions that were opened on an account after it
// failed. Errors are logged and retried on the next refresh.
func (s *SnapshotService) sweepFailed(ctx context.Context, accountIDs []string) {
	for _, id := range accountIDs {
		n, err := s.positions.CloseAllForAccount(ctx, id, domain.PositionStatusClosedByPlatform, s.now().UTC())
		if err != nil {
			s.logger.ErrorContext(ctx, "snapshot_service: close positions of failed account",
				slog.String("account_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.WarnContext(ctx, "snapshot_service: closed positions of failed account",
			slog.String("account_id", id),
			slog.Int64("positions_closed", n),
		)
	}
}

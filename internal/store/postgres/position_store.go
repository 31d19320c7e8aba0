package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	db querier
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(db querier) *PositionStore {
	return &PositionStore{db: db}
}

const positionSelectCols = `p.id, p.user_account_id, p.symbol, p.side,
	p.entry_price, p.quantity, COALESCE(p.leverage, 1), p.status,
	p.unrealized_pnl, p.exit_price, p.realized_pnl, p.opened_at, p.closed_at`

// positionDest returns scan destinations matching positionSelectCols.
func positionDest(p *domain.Position, side, status *string) []any {
	return []any{
		&p.ID, &p.AccountID, &p.Symbol, side,
		&p.EntryPrice, &p.Quantity, &p.Leverage, status,
		&p.UnrealizedPnL, &p.ExitPrice, &p.RealizedPnL, &p.OpenedAt, &p.ClosedAt,
	}
}

// ListOpenWithContext returns every open position joined with its account and
// challenge rules in one query.
func (s *PositionStore) ListOpenWithContext(ctx context.Context) ([]domain.PositionWithContext, error) {
	query := `SELECT ` + positionSelectCols + `, ` + accountSelectCols + `
		FROM positions p
		JOIN user_accounts a ON a.id = p.user_account_id
		LEFT JOIN challenges c ON c.id = a.challenge_id
		WHERE p.status = 'open'
		ORDER BY p.opened_at`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionWithContext
	for rows.Next() {
		var (
			row                    domain.PositionWithContext
			side, status, acStatus string
		)
		dest := positionDest(&row.Position, &side, &status)
		dest = append(dest, accountDest(&row.Account, &acStatus)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		row.Position.Side = domain.PositionSide(side)
		row.Position.Status = domain.PositionStatus(status)
		row.Account.Status = domain.AccountStatus(acStatus)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open positions rows: %w", err)
	}
	return out, nil
}

// GetByID retrieves a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	var (
		p            domain.Position
		side, status string
	)
	err := s.db.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions p WHERE p.id = $1`, id,
	).Scan(positionDest(&p, &side, &status)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// MarkLiquidated moves an open position to liquidated, recording the exit
// price and realized PnL. Rows that are already terminal are left untouched.
func (s *PositionStore) MarkLiquidated(ctx context.Context, rec domain.LiquidationRecord) error {
	const query = `
		UPDATE positions SET
			status         = 'liquidated',
			closed_at      = $2,
			unrealized_pnl = 0,
			exit_price     = $3,
			current_price  = $3,
			realized_pnl   = $4,
			updated_at     = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.db.Exec(ctx, query, rec.PositionID, rec.ClosedAt, rec.ExitPrice, rec.RealizedPnL)
	if err != nil {
		return fmt.Errorf("postgres: liquidate position %s: %w", rec.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionNotOpen
	}
	return nil
}

// CloseAllForAccount moves every open position of the account to status in a
// single statement.
func (s *PositionStore) CloseAllForAccount(ctx context.Context, accountID string, status domain.PositionStatus, closedAt time.Time) (int64, error) {
	const query = `
		UPDATE positions SET
			status         = $2,
			closed_at      = $3,
			unrealized_pnl = 0,
			updated_at     = NOW()
		WHERE user_account_id = $1 AND status = 'open'`

	tag, err := s.db.Exec(ctx, query, accountID, string(status), closedAt)
	if err != nil {
		return 0, fmt.Errorf("postgres: close positions for account %s: %w", accountID, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	db querier
}

// NewAccountStore creates a new AccountStore backed by the given pool.
func NewAccountStore(db querier) *AccountStore {
	return &AccountStore{db: db}
}

const accountSelectCols = `a.id, a.user_id, a.balance, a.initial_balance,
	a.profit_loss, a.total_trades, a.winning_trades, a.losing_trades, a.status,
	COALESCE(c.id, ''), COALESCE(c.max_drawdown_pct, 0), COALESCE(c.daily_loss_limit_pct, 0)`

// accountDest returns scan destinations matching accountSelectCols.
func accountDest(a *domain.Account, status *string) []any {
	return []any{
		&a.ID, &a.UserID, &a.Balance, &a.InitialBalance,
		&a.ProfitLoss, &a.TotalTrades, &a.WinningTrades, &a.LosingTrades, status,
		&a.Rules.ChallengeID, &a.Rules.MaxDrawdownPct, &a.Rules.DailyLossLimitPct,
	}
}

func (s *AccountStore) scanOne(ctx context.Context, query string, args ...any) (domain.Account, error) {
	var (
		a      domain.Account
		status string
	)
	if err := s.db.QueryRow(ctx, query, args...).Scan(accountDest(&a, &status)...); err != nil {
		return domain.Account{}, err
	}
	a.Status = domain.AccountStatus(status)
	return a, nil
}

// GetByID retrieves an account together with its challenge rules.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	a, err := s.scanOne(ctx, `SELECT `+accountSelectCols+`
		FROM user_accounts a
		LEFT JOIN challenges c ON c.id = a.challenge_id
		WHERE a.id = $1`, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// ApplyRealizedPnL adds the trade's PnL to the balance and cumulative PnL and
// bumps the trade counters in one statement, returning the updated row.
func (s *AccountStore) ApplyRealizedPnL(ctx context.Context, t domain.RealizedTrade) (domain.Account, error) {
	win, loss := 0, 1
	if t.Win {
		win, loss = 1, 0
	}

	a, err := s.scanOne(ctx, `
		WITH a AS (
			UPDATE user_accounts SET
				balance        = balance + $2,
				profit_loss    = profit_loss + $2,
				total_trades   = total_trades + 1,
				winning_trades = winning_trades + $3,
				losing_trades  = losing_trades + $4,
				updated_at     = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+accountSelectCols+`
		FROM a
		LEFT JOIN challenges c ON c.id = a.challenge_id`,
		t.AccountID, t.PnL, win, loss)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: apply pnl to account %s: %w", t.AccountID, err)
	}
	return a, nil
}

// SetStatus updates the account's challenge status.
func (s *AccountStore) SetStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE user_accounts SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: set account %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)

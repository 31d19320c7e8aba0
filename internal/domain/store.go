package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LiquidationRecord is the terminal update written for a liquidated position.
type LiquidationRecord struct {
	PositionID  string
	ExitPrice   float64
	RealizedPnL float64
	ClosedAt    time.Time
}

// RealizedTrade is a realized result applied to an account's balance and
// trade counters.
type RealizedTrade struct {
	AccountID string
	PnL       float64
	Win       bool
}

// PositionStore persists positions.
type PositionStore interface {
	// ListOpenWithContext returns every open position joined with its account
	// and challenge rules in a single query.
	ListOpenWithContext(ctx context.Context) ([]PositionWithContext, error)
	GetByID(ctx context.Context, id string) (Position, error)
	// MarkLiquidated moves an open position to liquidated. It returns
	// ErrPositionNotOpen when the row is missing or already terminal.
	MarkLiquidated(ctx context.Context, rec LiquidationRecord) error
	// CloseAllForAccount moves every open position of the account to status
	// and returns the number of rows changed.
	CloseAllForAccount(ctx context.Context, accountID string, status PositionStatus, closedAt time.Time) (int64, error)
}

// AccountStore persists challenge accounts.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (Account, error)
	// ApplyRealizedPnL adds the trade's PnL to balance and profit_loss and
	// increments the trade counters. It returns the updated account.
	ApplyRealizedPnL(ctx context.Context, trade RealizedTrade) (Account, error)
	SetStatus(ctx context.Context, id string, status AccountStatus) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}

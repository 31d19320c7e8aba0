package domain

import "time"

// PositionStatus tracks the lifecycle of a simulated position. Transitions are
// one-way: open moves to exactly one terminal state.
type PositionStatus string

const (
	PositionStatusOpen             PositionStatus = "open"
	PositionStatusClosed           PositionStatus = "closed"
	PositionStatusLiquidated       PositionStatus = "liquidated"
	PositionStatusClosedByPlatform PositionStatus = "closed_by_platform"
)

// Terminal reports whether the status is a final state.
func (s PositionStatus) Terminal() bool {
	return s != PositionStatusOpen
}

// PositionSide is the exposure direction of a position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Position represents a simulated leveraged trade held by a challenge account.
type Position struct {
	ID            string
	AccountID     string
	Symbol        string
	Side          PositionSide
	EntryPrice    float64
	Quantity      float64
	Leverage      float64
	Status        PositionStatus
	UnrealizedPnL float64
	ExitPrice     *float64
	RealizedPnL   *float64
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// EffectiveLeverage returns the leverage used for risk math. Rows written
// without a leverage value are treated as unleveraged.
func (p Position) EffectiveLeverage() float64 {
	if p.Leverage < 1 {
		return 1
	}
	return p.Leverage
}

// LiquidationPrice returns the price at which the position's margin is fully
// consumed.
//
//	long:  entry * (1 - 1/leverage)
//	short: entry * (1 + 1/leverage)
func (p Position) LiquidationPrice() float64 {
	inv := 1 / p.EffectiveLeverage()
	if p.Side == SideShort {
		return p.EntryPrice * (1 + inv)
	}
	return p.EntryPrice * (1 - inv)
}

// ShouldLiquidate reports whether price has reached the liquidation threshold.
// The boundary price itself triggers liquidation.
func (p Position) ShouldLiquidate(price float64) bool {
	liq := p.LiquidationPrice()
	switch p.Side {
	case SideLong:
		return price <= liq
	case SideShort:
		return price >= liq
	default:
		return false
	}
}

// PnL returns the profit or loss of the position marked at price.
func (p Position) PnL(price float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - price) * p.Quantity
	}
	return (price - p.EntryPrice) * p.Quantity
}

// PositionWithContext is a position row joined with its owning account and
// the account's challenge rules. It is the unit loaded by the snapshot cache.
type PositionWithContext struct {
	Position Position
	Account  Account
}

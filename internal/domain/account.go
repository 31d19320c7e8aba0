package domain

// AccountStatus is the challenge state of a trading account.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusPassed AccountStatus = "passed"
	AccountStatusFailed AccountStatus = "failed"
)

// ChallengeRules are the per-account risk limits. Both percentages are
// measured against the account's initial balance.
type ChallengeRules struct {
	ChallengeID       string
	MaxDrawdownPct    float64
	DailyLossLimitPct float64
}

// Account is a user's simulated trading account under a challenge. Balance
// holds realized cash only; unrealized PnL is never folded into it except at
// liquidation or close.
type Account struct {
	ID             string
	UserID         string
	Balance        float64
	InitialBalance float64
	ProfitLoss     float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	Status         AccountStatus
	Rules          ChallengeRules
}

// AccountHealth is the marked-to-market view of an account.
type AccountHealth struct {
	UnrealizedPnL float64
	Equity        float64
	DrawdownPct   float64
}

// PriceLookup returns the last known price for a normalized symbol.
type PriceLookup func(symbol string) (float64, bool)

// Health marks every position at the last known price for its symbol,
// falling back to the entry price when no price has been observed.
// symbolOf maps a position to the key used for price lookup.
func (a Account) Health(positions []Position, symbolOf func(Position) string, prices PriceLookup) AccountHealth {
	var unrealized float64
	for _, p := range positions {
		price, ok := prices(symbolOf(p))
		if !ok {
			price = p.EntryPrice
		}
		unrealized += p.PnL(price)
	}

	equity := a.Balance + unrealized
	var drawdown float64
	if a.InitialBalance > 0 {
		drawdown = (a.InitialBalance - equity) / a.InitialBalance * 100
	}
	return AccountHealth{
		UnrealizedPnL: unrealized,
		Equity:        equity,
		DrawdownPct:   drawdown,
	}
}

// Breach returns the failure reason for the given health, or "" when the
// account is within its limits. Max drawdown is checked before the daily
// loss limit.
func (a Account) Breach(h AccountHealth) string {
	if a.Rules.MaxDrawdownPct > 0 && h.DrawdownPct >= a.Rules.MaxDrawdownPct {
		return ReasonMaxDrawdown
	}
	if a.Rules.DailyLossLimitPct > 0 && h.DrawdownPct >= a.Rules.DailyLossLimitPct {
		return ReasonDailyLoss
	}
	return ""
}

// Failure and liquidation reasons carried in notifications and audit rows.
const (
	ReasonMaxDrawdown    = "max drawdown breached"
	ReasonDailyLoss      = "daily loss limit breached"
	ReasonLiquidationHit = "Liquidation Price Reached"
)

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func symbolOfPosition(p Position) string { return p.Symbol }

func TestAccountHealthShortAgainstRisingPrice(t *testing.T) {
	acct := Account{Balance: 10000, InitialBalance: 10000}
	positions := []Position{{Symbol: "SOL-USD", Side: SideShort, EntryPrice: 100, Quantity: 1, Leverage: 5}}
	prices := func(string) (float64, bool) { return 150, true }

	h := acct.Health(positions, symbolOfPosition, prices)
	assert.InDelta(t, -50, h.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 9950, h.Equity, 1e-9)
	assert.InDelta(t, 0.5, h.DrawdownPct, 1e-9)
}

func TestAccountHealthFallsBackToEntryPrice(t *testing.T) {
	acct := Account{Balance: 9000, InitialBalance: 10000}
	positions := []Position{
		{Symbol: "BTC-USD", Side: SideLong, EntryPrice: 100, Quantity: 2},
		{Symbol: "ETH-USD", Side: SideLong, EntryPrice: 10, Quantity: 5},
	}
	prices := func(sym string) (float64, bool) {
		if sym == "BTC-USD" {
			return 90, true
		}
		return 0, false
	}

	h := acct.Health(positions, symbolOfPosition, prices)
	assert.InDelta(t, -20, h.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 8980, h.Equity, 1e-9)
	assert.InDelta(t, 10.2, h.DrawdownPct, 1e-9)
}

func TestAccountHealthZeroInitialBalance(t *testing.T) {
	h := Account{Balance: 10}.Health(nil, symbolOfPosition, func(string) (float64, bool) { return 0, false })
	assert.Equal(t, 0.0, h.DrawdownPct)
	assert.Equal(t, 10.0, h.Equity)
}

func TestAccountBreachOrdering(t *testing.T) {
	acct := Account{Rules: ChallengeRules{MaxDrawdownPct: 10, DailyLossLimitPct: 5}}

	assert.Equal(t, "", acct.Breach(AccountHealth{DrawdownPct: 4.99}))
	assert.Equal(t, ReasonDailyLoss, acct.Breach(AccountHealth{DrawdownPct: 5}))
	assert.Equal(t, ReasonMaxDrawdown, acct.Breach(AccountHealth{DrawdownPct: 10}))
	assert.Equal(t, ReasonMaxDrawdown, acct.Breach(AccountHealth{DrawdownPct: 50}))
}

func TestAccountBreachIgnoresUnsetLimits(t *testing.T) {
	acct := Account{}
	assert.Equal(t, "", acct.Breach(AccountHealth{DrawdownPct: 99}))
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "ticker-BTC-USD", TickerChannel("BTC-USD"))
	assert.Equal(t, "private-user-u1", UserChannel("u1"))
}

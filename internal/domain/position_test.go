package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiquidationPriceBracketsEntry(t *testing.T) {
	for _, lev := range []float64{1.5, 2, 5, 10, 20, 100} {
		long := Position{Side: SideLong, EntryPrice: 100, Quantity: 1, Leverage: lev}
		short := Position{Side: SideShort, EntryPrice: 100, Quantity: 1, Leverage: lev}
		assert.Less(t, long.LiquidationPrice(), 100.0, "leverage %v", lev)
		assert.Greater(t, short.LiquidationPrice(), 100.0, "leverage %v", lev)
	}
}

func TestLiquidationPriceMissingLeverage(t *testing.T) {
	p := Position{Side: SideLong, EntryPrice: 100, Quantity: 1}
	assert.Equal(t, 1.0, p.EffectiveLeverage())
	assert.Equal(t, 0.0, p.LiquidationPrice())
}

func TestShouldLiquidateBoundary(t *testing.T) {
	long := Position{Side: SideLong, EntryPrice: 50000, Quantity: 0.001, Leverage: 10}
	assert.InDelta(t, 45000, long.LiquidationPrice(), 1e-9)
	assert.True(t, long.ShouldLiquidate(45000))
	assert.True(t, long.ShouldLiquidate(44999))
	assert.False(t, long.ShouldLiquidate(45000.01))
	assert.InDelta(t, -5, long.PnL(45000), 1e-9)

	short := Position{Side: SideShort, EntryPrice: 200, Quantity: 2, Leverage: 4}
	assert.InDelta(t, 250, short.LiquidationPrice(), 1e-9)
	assert.True(t, short.ShouldLiquidate(250))
	assert.True(t, short.ShouldLiquidate(260))
	assert.False(t, short.ShouldLiquidate(249.99))
	assert.InDelta(t, -100, short.PnL(250), 1e-9)
}

func TestShouldLiquidateUnknownSide(t *testing.T) {
	p := Position{Side: "sideways", EntryPrice: 100, Quantity: 1, Leverage: 10}
	assert.False(t, p.ShouldLiquidate(0))
	assert.False(t, p.ShouldLiquidate(1e9))
}

func TestPositionStatusTerminal(t *testing.T) {
	assert.False(t, PositionStatusOpen.Terminal())
	assert.True(t, PositionStatusClosed.Terminal())
	assert.True(t, PositionStatusLiquidated.Terminal())
	assert.True(t, PositionStatusClosedByPlatform.Terminal())
}

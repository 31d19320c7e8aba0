package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

func TestRefreshIndexesOpenPositions(t *testing.T) {
	h := newHarness(t)
	h.db.putAccount(account("a1", "u1", 10000, wideRules))
	h.db.putAccount(account("a2", "u2", 5000, wideRules))
	h.db.putPosition(position("p1", "a1", "BTC-USD", domain.SideLong, 50000, 0.001, 10))
	h.db.putPosition(position("p2", "a1", "ETHUSDT", domain.SideShort, 2000, 1, 5))
	h.db.putPosition(position("p3", "a2", "BTC-USD", domain.SideShort, 51000, 0.01, 2))
	closed := position("p4", "a2", "BTC-USD", domain.SideLong, 1, 1, 1)
	closed.Status = domain.PositionStatusClosed
	h.db.putPosition(closed)

	h.refresh(t)

	btc := h.state.PositionsFor("BTC-USD")
	require.Len(t, btc, 2)
	assert.Equal(t, "p1", btc[0].Position.ID)
	assert.Equal(t, "p3", btc[1].Position.ID)

	eth := h.state.PositionsFor("ETH-USD")
	require.Len(t, eth, 1)
	assert.Equal(t, "ETH-USD", eth[0].Key)

	_, a1Positions, ok := h.state.Account("a1")
	require.True(t, ok)
	assert.Len(t, a1Positions, 2)

	positions, accounts := h.state.Counts()
	assert.Equal(t, 3, positions)
	assert.Equal(t, 2, accounts)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.CachedPositions))
}

func TestRefreshIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.db.putAccount(account("a1", "u1", 10000, wideRules))
	h.db.putPosition(position("p1", "a1", "BTC-USD", domain.SideLong, 50000, 0.001, 10))
	h.db.putPosition(position("p2", "a1", "ETH-USD", domain.SideLong, 2000, 1, 5))

	h.refresh(t)
	first := h.state.Positions()
	firstAccts := h.state.Accounts()

	h.refresh(t)
	assert.Equal(t, first, h.state.Positions())
	assert.Equal(t, firstAccts, h.state.Accounts())
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	h := newHarness(t)
	h.db.putAccount(account("a1", "u1", 10000, wideRules))
	h.db.putPosition(position("p1", "a1", "BTC-USD", domain.SideLong, 50000, 0.001, 10))
	h.refresh(t)

	h.db.mu.Lock()
	h.db.listErr = errors.New("connection refused")
	h.db.mu.Unlock()

	err := h.snapshot.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, h.state.PositionsFor("BTC-USD"), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SnapshotErrors))
}

func TestRefreshSkipsFailedAccounts(t *testing.T) {
	h := newHarness(t)
	failed := account("a1", "u1", 10000, wideRules)
	failed.Status = domain.AccountStatusFailed
	h.db.putAccount(failed)
	h.db.putAccount(account("a2", "u2", 10000, wideRules))
	h.db.putPosition(position("p1", "a1", "BTC-USD", domain.SideLong, 50000, 0.001, 10))
	h.db.putPosition(position("p2", "a2", "BTC-USD", domain.SideLong, 50000, 0.001, 10))

	h.refresh(t)

	btc := h.state.PositionsFor("BTC-USD")
	require.Len(t, btc, 1)
	assert.Equal(t, "p2", btc[0].Position.ID)
	_, _, ok := h.state.Account("a1")
	assert.False(t, ok)
}

func TestRefreshClosesPositionsOfFailedAccounts(t *testing.T) {
	h := newHarness(t)
	failed := account("a1", "u1", 10000, wideRules)
	failed.Status = domain.AccountStatusFailed
	h.db.putAccount(failed)
	h.db.putPosition(position("p1", "a1", "BTC-USD", domain.SideLong, 50000, 0.001, 10))
	h.db.putPosition(position("p2", "a1", "ETH-USD", domain.SideShort, 2000, 1, 5))

	h.refresh(t)

	for _, id := range []string{"p1", "p2"} {
		p := h.db.position(id)
		assert.Equal(t, domain.PositionStatusClosedByPlatform, p.Status, id)
		assert.NotNil(t, p.ClosedAt, id)
		assert.Nil(t, p.RealizedPnL, id)
	}
	assert.Equal(t, domain.AccountStatusFailed, h.db.account("a1").Status)

	h.risk.Evaluate(context.Background(), "BTC-USD", 500)
	assert.Empty(t, h.pub.all())

	h.refresh(t)
	positions, accounts := h.state.Counts()
	assert.Equal(t, 0, positions)
	assert.Equal(t, 0, accounts)
}

func TestRefreshSweepErrorKeepsSnapshot(t *testing.T) {
	h := newHarness(t)
	failed := account("a1", "u1", 10000, wideRules)
	failed.Status = domain.AccountStatusFailed
	h.db.putAccount(failed)
	h.db.putAccount(account("a2", "u2", 10000, wideRules))
	h.db.putPosition(position("p1", "a1", "BTC-USD", domain.SideLong, 50000, 0.001, 10))
	h.db.putPosition(position("p2", "a2", "BTC-USD", domain.SideLong, 50000, 0.001, 10))
	h.db.mu.Lock()
	h.db.closeErr = errors.New("connection reset")
	h.db.mu.Unlock()

	h.refresh(t)

	assert.Equal(t, domain.PositionStatusOpen, h.db.position("p1").Status)
	require.Len(t, h.state.PositionsFor("BTC-USD"), 1)
}

func TestRefreshPicksUpRemovedPositions(t *testing.T) {
	h := newHarness(t)
	h.db.putAccount(account("a1", "u1", 10000, wideRules))
	h.db.putPosition(position("p1", "a1", "BTC-USD", domain.SideLong, 50000, 0.001, 10))
	h.refresh(t)

	p := h.db.position("p1")
	p.Status = domain.PositionStatusClosed
	h.db.putPosition(p)
	h.refresh(t)

	assert.Nil(t, h.state.PositionsFor("BTC-USD"))
	positions, accounts := h.state.Counts()
	assert.Zero(t, positions)
	assert.Zero(t, accounts)
}

func TestSnapshotRunRefreshesImmediately(t *testing.T) {
	h := newHarness(t)
	h.db.putAccount(account("a1", "u1", 10000, wideRules))
	h.db.putPosition(position("p1", "a1", "BTC-USD", domain.SideLong, 50000, 0.001, 10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.snapshot.Run(ctx) }()

	require.Eventually(t, func() bool { return h.db.calls() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.state.PositionsFor("BTC-USD")) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("snapshot Run did not stop")
	}
}

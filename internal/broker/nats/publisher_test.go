package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

type fakeConn struct {
	subjects []string
	data     [][]byte
	err      error
	drained  bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.data = append(c.data, data)
	return c.err
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func (c *fakeConn) IsConnected() bool { return !c.drained }

func TestPublishUsesPrefixedSubject(t *testing.T) {
	nc := &fakeConn{}
	pub := newPublisher(nc, "riskengine")

	err := pub.Publish(context.Background(), domain.UserChannel("u1"), domain.EventLiquidation,
		domain.LiquidationPayload{PositionID: "p1", Symbol: "BTC-USD", ClosePrice: 45000, PnL: -5, Reason: domain.ReasonLiquidationHit})
	require.NoError(t, err)
	require.Len(t, nc.subjects, 1)
	assert.Equal(t, "riskengine.private-user-u1", nc.subjects[0])

	var env struct {
		Event string                    `json:"event"`
		Data  domain.LiquidationPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(nc.data[0], &env))
	assert.Equal(t, "liquidation_alert", env.Event)
	assert.Equal(t, "p1", env.Data.PositionID)
	assert.Equal(t, -5.0, env.Data.PnL)
}

func TestSubjectWithoutPrefix(t *testing.T) {
	pub := newPublisher(&fakeConn{}, "")
	assert.Equal(t, "ticker-ETH-USD", pub.Subject("ticker-ETH-USD"))
}

func TestPublishErrors(t *testing.T) {
	nc := &fakeConn{err: errors.New("nats: connection closed")}
	pub := newPublisher(nc, "x")
	assert.Error(t, pub.Publish(context.Background(), "ticker-BTC-USD", domain.EventPriceUpdate, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.Publish(ctx, "ticker-BTC-USD", domain.EventPriceUpdate, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, nc.subjects, 1)
}

func TestCloseDrains(t *testing.T) {
	nc := &fakeConn{}
	pub := newPublisher(nc, "")
	require.NoError(t, pub.Close())
	assert.True(t, nc.drained)
	assert.False(t, pub.Connected())
}

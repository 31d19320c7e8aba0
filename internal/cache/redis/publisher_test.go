package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

type recordingBus struct {
	channel string
	payload []byte
	err     error
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.channel = channel
	b.payload = payload
	return b.err
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan domain.BusMessage, error) {
	return nil, errors.New("not implemented")
}

func TestPublisherWrapsPayloadInEnvelope(t *testing.T) {
	bus := &recordingBus{}
	pub := NewPublisher(bus)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	err := pub.Publish(context.Background(), domain.TickerChannel("BTC-USD"), domain.EventPriceUpdate,
		domain.PriceUpdatePayload{Symbol: "BTC-USD", Price: 50000, Timestamp: 1709294400000})
	require.NoError(t, err)
	assert.Equal(t, "ticker-BTC-USD", bus.channel)

	var got struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
		TS    time.Time       `json:"ts"`
	}
	require.NoError(t, json.Unmarshal(bus.payload, &got))
	assert.Equal(t, "price_update", got.Event)
	assert.True(t, fixed.Equal(got.TS))

	var data domain.PriceUpdatePayload
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, "BTC-USD", data.Symbol)
	assert.Equal(t, 50000.0, data.Price)
}

func TestPublisherPropagatesBusError(t *testing.T) {
	bus := &recordingBus{err: errors.New("down")}
	err := NewPublisher(bus).Publish(context.Background(), "private-user-u1", domain.EventChallengeFailed,
		domain.ChallengeFailedPayload{AccountID: "a1", Reason: domain.ReasonMaxDrawdown})
	assert.Error(t, err)
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ticker-*"))
	assert.False(t, hasPattern("ticker-BTC-USD"))
}

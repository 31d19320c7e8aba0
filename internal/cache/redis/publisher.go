package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

// Publisher implements domain.Publisher by wrapping payloads in a
// domain.Envelope and sending them over a SignalBus.
type Publisher struct {
	bus domain.SignalBus
	now func() time.Time
}

// NewPublisher creates a Publisher on top of bus.
func NewPublisher(bus domain.SignalBus) *Publisher {
	return &Publisher{bus: bus, now: time.Now}
}

// Publish encodes the envelope and publishes it on channel.
func (p *Publisher) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(domain.Envelope{Event: event, Data: payload, TS: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("redis: marshal %s envelope: %w", event, err)
	}
	return p.bus.Publish(ctx, channel, data)
}

// Compile-time interface check.
var _ domain.Publisher = (*Publisher)(nil)

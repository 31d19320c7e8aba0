// Package nats provides a domain.Publisher backed by core NATS subjects, an
// alternative to the Redis pub/sub backend.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

// Config holds the NATS connection parameters.
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
}

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	IsConnected() bool
}

// Publisher implements domain.Publisher. Channel names map to subjects as
// "<prefix>.<channel>".
type Publisher struct {
	nc     conn
	prefix string
	now    func() time.Time
}

// Connect dials NATS with unlimited reconnects and returns a Publisher.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	log := logger.With(slog.String("component", "nats"))
	name := cfg.Name
	if name == "" {
		name = "riskengine"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats: disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats: reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", cfg.URL, err)
	}
	return newPublisher(nc, cfg.SubjectPrefix), nil
}

func newPublisher(nc conn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: prefix, now: time.Now}
}

// Subject returns the NATS subject used for a notification channel.
func (p *Publisher) Subject(channel string) string {
	if p.prefix == "" {
		return channel
	}
	return p.prefix + "." + channel
}

// Publish encodes the envelope and publishes it. Core NATS publishing is
// fire-and-forget, so ctx only guards against a cancelled caller.
func (p *Publisher) Publish(ctx context.Context, channel, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("nats: publish %s: %w", channel, err)
	}
	data, err := json.Marshal(domain.Envelope{Event: event, Data: payload, TS: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("nats: marshal %s envelope: %w", event, err)
	}
	if err := p.nc.Publish(p.Subject(channel), data); err != nil {
		return fmt.Errorf("nats: publish %s: %w", channel, err)
	}
	return nil
}

// Connected reports whether the underlying connection is up.
func (p *Publisher) Connected() bool {
	return p.nc.IsConnected()
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("nats: drain: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Publisher = (*Publisher)(nil)

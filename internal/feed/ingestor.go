// Package feed ingests the market-data websocket stream: it keeps the
// last-price table current, hands every trade to the risk evaluator and
// publishes throttled public price updates.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
	"github.com/alanyoungcy/riskengine/internal/risk"
	"github.com/alanyoungcy/riskengine/internal/symbol"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Config configures the Ingestor.
type Config struct {
	URL              string
	APIKey           string
	Channels         []string
	TradeEvent       string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
}

// command is a control message sent to the stream.
type command struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Ingestor maintains one websocket session at a time, reconnecting after a
// fixed delay whenever the session ends.
type Ingestor struct {
	cfg      Config
	symbols  *symbol.Table
	prices   *risk.PriceTable
	updates  chan<- domain.PriceUpdate
	throttle *Throttle
	metrics  *metrics.Metrics
	logger   *slog.Logger

	connected atomic.Bool
}

// NewIngestor creates an Ingestor. Every accepted trade is sent on updates;
// throttle may be nil when public price updates are not wanted.
func NewIngestor(
	cfg Config,
	symbols *symbol.Table,
	prices *risk.PriceTable,
	updates chan<- domain.PriceUpdate,
	throttle *Throttle,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Ingestor {
	if cfg.TradeEvent == "" {
		cfg.TradeEvent = "XT"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return &Ingestor{
		cfg:      cfg,
		symbols:  symbols,
		prices:   prices,
		updates:  updates,
		throttle: throttle,
		metrics:  m,
		logger:   logger.With(slog.String("component", "feed")),
	}
}

// Connected reports whether a session is authenticated and subscribed.
func (in *Ingestor) Connected() bool {
	return in.connected.Load()
}

// Run keeps a session open until ctx is cancelled.
func (in *Ingestor) Run(ctx context.Context) error {
	in.logger.Info("feed: starting",
		slog.String("url", in.cfg.URL),
		slog.Int("channels", len(in.cfg.Channels)),
	)
	defer func() {
		if in.throttle != nil {
			in.throttle.Close()
		}
	}()

	for {
		err := in.session(ctx)
		if ctx.Err() != nil {
			in.logger.Info("feed: stopped")
			return ctx.Err()
		}
		in.logger.Warn("feed: disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", in.cfg.ReconnectDelay),
		)
		in.metrics.Reconnects.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(in.cfg.ReconnectDelay):
		}
	}
}

// session dials, authenticates, subscribes and reads until the connection
// fails or ctx is cancelled. It always returns a non-nil error.
func (in *Ingestor) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: in.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, in.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}

	var writeMu sync.Mutex
	write := func(msgType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(msgType, data)
	}

	done := make(chan struct{})
	defer func() {
		close(done)
		in.setConnected(false)
		_ = conn.Close()
	}()

	if err := in.sendCommand(write, command{Action: "auth", Params: in.cfg.APIKey}); err != nil {
		return fmt.Errorf("feed: send auth: %w", err)
	}
	for _, ch := range in.cfg.Channels {
		if err := in.sendCommand(write, command{Action: "subscribe", Params: ch}); err != nil {
			return fmt.Errorf("feed: subscribe %s: %w", ch, err)
		}
	}
	in.setConnected(true)
	in.logger.Info("feed: subscribed", slog.Int("channels", len(in.cfg.Channels)))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks ReadMessage.
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w: %v", domain.ErrWSDisconnect, err)
		}
		in.handleFrame(ctx, frame)
	}
}

func (in *Ingestor) sendCommand(write func(int, []byte) error, cmd command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return write(websocket.TextMessage, data)
}

func (in *Ingestor) setConnected(v bool) {
	in.connected.Store(v)
	if v {
		in.metrics.FeedConnected.Set(1)
	} else {
		in.metrics.FeedConnected.Set(0)
	}
}

// handleFrame decodes a frame and dispatches its trade events. Undecodable
// frames are counted and dropped.
func (in *Ingestor) handleFrame(ctx context.Context, frame []byte) {
	events, err := decodeFrame(frame)
	if err != nil {
		in.metrics.ParseFailures.Inc()
		in.logger.Warn("feed: parse frame failed",
			slog.String("error", err.Error()),
			slog.Int("len", len(frame)),
		)
		return
	}

	received := time.Now()
	for _, ev := range events {
		tr, ok := ev.trade(in.cfg.TradeEvent, received)
		if !ok {
			if ev.Ev != in.cfg.TradeEvent {
				in.logger.Debug("feed: ignoring event",
					slog.String("ev", ev.Ev),
					slog.String("status", ev.Status),
					slog.String("message", ev.Message),
				)
			} else {
				in.metrics.ParseFailures.Inc()
			}
			continue
		}
		in.handleTrade(ctx, tr)
	}
}

// handleTrade writes the last-price table, hands the update to the
// evaluator and offers it to the throttle. A nil updates channel (monitor
// mode) skips the evaluator.
func (in *Ingestor) handleTrade(ctx context.Context, tr Trade) {
	u := domain.PriceUpdate{
		Symbol:    in.symbols.Normalize(tr.Symbol),
		Price:     tr.Price,
		Timestamp: tr.Timestamp,
	}
	in.prices.Set(u.Symbol, u.Price, u.Timestamp)
	in.metrics.TradesReceived.WithLabelValues(u.Symbol).Inc()

	if in.updates != nil {
		select {
		case in.updates <- u:
		case <-ctx.Done():
			return
		}
	}

	if in.throttle != nil {
		in.throttle.Offer(u)
	}
}

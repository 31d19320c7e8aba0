package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/metrics"
)

const publishTimeout = 5 * time.Second

// Throttle coalesces public price updates per symbol. The first update for a
// symbol opens a window; when it closes, the latest update seen during the
// window is published once on the symbol's ticker channel and, when a mirror
// is configured, written to the shared price cache.
type Throttle struct {
	pub     domain.Publisher
	mirror  domain.PriceCache
	window  time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingUpdate
	closed  bool
}

type pendingUpdate struct {
	update domain.PriceUpdate
	timer  *time.Timer
}

// NewThrottle creates a Throttle publishing through pub. mirror may be nil. A
// non-positive window publishes every update immediately.
func NewThrottle(pub domain.Publisher, mirror domain.PriceCache, window time.Duration, m *metrics.Metrics, logger *slog.Logger) *Throttle {
	return &Throttle{
		pub:     pub,
		mirror:  mirror,
		window:  window,
		metrics: m,
		logger:  logger.With(slog.String("component", "throttle")),
		pending: make(map[string]*pendingUpdate),
	}
}

// Offer records u as the latest update for its symbol.
func (t *Throttle) Offer(u domain.PriceUpdate) {
	if t.window <= 0 {
		t.publish(u)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if p, ok := t.pending[u.Symbol]; ok {
		p.update = u
		return
	}
	sym := u.Symbol
	t.pending[sym] = &pendingUpdate{
		update: u,
		timer:  time.AfterFunc(t.window, func() { t.flush(sym) }),
	}
}

func (t *Throttle) flush(symbol string) {
	t.mu.Lock()
	p, ok := t.pending[symbol]
	delete(t.pending, symbol)
	t.mu.Unlock()
	if ok {
		t.publish(p.update)
	}
}

func (t *Throttle) publish(u domain.PriceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	payload := domain.PriceUpdatePayload{
		Symbol:    u.Symbol,
		Price:     u.Price,
		Timestamp: u.Timestamp.UnixMilli(),
	}
	if err := t.pub.Publish(ctx, domain.TickerChannel(u.Symbol), domain.EventPriceUpdate, payload); err != nil {
		t.logger.Warn("feed: publish price failed",
			slog.String("symbol", u.Symbol),
			slog.String("error", err.Error()),
		)
	} else {
		t.metrics.PricesPublished.WithLabelValues(u.Symbol).Inc()
	}

	if t.mirror != nil {
		if err := t.mirror.SetPrice(ctx, u.Symbol, u.Price, u.Timestamp); err != nil {
			t.logger.Debug("feed: mirror price failed",
				slog.String("symbol", u.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close drops pending updates and stops accepting new ones.
func (t *Throttle) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for sym, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, sym)
	}
}

// Package metrics defines the engine's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskengine"

// Metrics holds every instrument the engine records.
type Metrics struct {
	reg *prometheus.Registry

	// Feed
	TradesReceived  *prometheus.CounterVec
	ParseFailures   prometheus.Counter
	Reconnects      prometheus.Counter
	FeedConnected   prometheus.Gauge
	PricesPublished *prometheus.CounterVec

	// Risk
	TickDuration      prometheus.Histogram
	Liquidations      *prometheus.CounterVec
	LiquidationErrors prometheus.Counter
	AccountFailures   *prometheus.CounterVec
	CachedPositions   prometheus.Gauge
	CachedAccounts    prometheus.Gauge
	SnapshotDuration  prometheus.Histogram
	SnapshotErrors    prometheus.Counter

	// Archive
	ArchivedEntries prometheus.Counter
}

// New registers all instruments, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		TradesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "trades_received_total",
			Help: "Trade events accepted from the market-data stream.",
		}, []string{"symbol"}),
		ParseFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "parse_failures_total",
			Help: "Stream messages that could not be decoded.",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "reconnects_total",
			Help: "Stream reconnect attempts.",
		}),
		FeedConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "connected",
			Help: "1 while the market-data stream is connected and subscribed.",
		}),
		PricesPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "prices_published_total",
			Help: "Throttled price updates published to ticker channels.",
		}, []string{"symbol"}),

		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "risk", Name: "tick_duration_seconds",
			Help:    "Time to evaluate one price tick, including protocol I/O.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		Liquidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "risk", Name: "liquidations_total",
			Help: "Positions liquidated.",
		}, []string{"symbol", "side"}),
		LiquidationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "risk", Name: "liquidation_errors_total",
			Help: "Liquidation protocol runs that failed.",
		}),
		AccountFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "risk", Name: "account_failures_total",
			Help: "Accounts failed by the engine.",
		}, []string{"reason"}),
		CachedPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "risk", Name: "cached_positions",
			Help: "Open positions held in the risk state.",
		}),
		CachedAccounts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "risk", Name: "cached_accounts",
			Help: "Accounts held in the risk state.",
		}),
		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "snapshot", Name: "refresh_duration_seconds",
			Help:    "Time to reload the open-position snapshot.",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "snapshot", Name: "refresh_errors_total",
			Help: "Snapshot reloads that failed and kept the previous state.",
		}),

		ArchivedEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "archive", Name: "entries_total",
			Help: "Audit entries written to cold storage.",
		}),
	}
}

// Registry returns the registry the instruments are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesIndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.Liquidations.WithLabelValues("BTC-USD", "long").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Liquidations.WithLabelValues("BTC-USD", "long")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Liquidations.WithLabelValues("BTC-USD", "long")))
}

func TestHandlerExposesEngineMetrics(t *testing.T) {
	m := New()
	m.FeedConnected.Set(1)
	m.AccountFailures.WithLabelValues("max drawdown breached").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "riskengine_feed_connected 1")
	assert.Contains(t, body, `riskengine_risk_account_failures_total{reason="max drawdown breached"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

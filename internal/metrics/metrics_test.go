package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.StockOp("deduct", "ok")
	m.StockOp("deduct", "ok")
	m.StockOp("deduct", "insufficient")
	m.Aggregation("record", "duplicate")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stockOps.WithLabelValues("deduct", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockOps.WithLabelValues("deduct", "insufficient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.aggregations.WithLabelValues("record", "duplicate")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.StockOp("deduct", "ok")
		m.OrderTransition("SHIPPED")
		m.HTTPRequest("GET", 200, time.Millisecond)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.HTTPRequest("GET", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `sales_http_requests_total{method="GET",status="200"} 1`))
}

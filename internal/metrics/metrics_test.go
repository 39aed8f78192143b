package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/{module}/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/opl/orders/123", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/{module}/orders/{id}", "404"))
	assert.Equal(t, float64(2), count)
}

func TestBusinessCounters(t *testing.T) {
	m := New()

	m.RecordOrderClosed("opl", "COMPLETED")
	m.RecordStockMovement("vectra", "TRANSFER")
	m.RecordStockMovement("vectra", "TRANSFER")
	m.RecordStockRejection("vectra")
	m.RecordReport("opl", "warehouse_stock")
	m.RecordJobRun("rate_sync", nil)
	m.RecordJobRun("rate_sync", errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.OrdersCompleted.WithLabelValues("opl", "COMPLETED")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.StockMovements.WithLabelValues("vectra", "TRANSFER")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StockRejections.WithLabelValues("vectra")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReportsGenerated.WithLabelValues("opl", "warehouse_stock")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobRuns.WithLabelValues("rate_sync", "failure")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOrderClosed("opl", "COMPLETED")
		m.RecordStockMovement("opl", "ISSUED")
		m.RecordStockRejection("opl")
		m.RecordReport("opl", "orders")
		m.RecordJobRun("x", nil)
	})
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.RecordReport("vectra", "orders")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fieldcrm_reports_generated_total{module="vectra",report="orders"} 1`)
}

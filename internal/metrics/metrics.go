// Package metrics exposes Prometheus collectors for HTTP traffic and business operations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fieldcrm"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	OrdersCompleted     *prometheus.CounterVec
	StockMovements      *prometheus.CounterVec
	StockRejections     *prometheus.CounterVec
	ReportsGenerated    *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
}

// New registers the collectors in a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		OrdersCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_closed_total",
				Help:      "Orders closed by outcome",
			},
			[]string{"module", "status"},
		),
		StockMovements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stock_movements_total",
				Help:      "Stock ledger movements by action",
			},
			[]string{"module", "action"},
		),
		StockRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stock_rejections_total",
				Help:      "Stock operations rejected for insufficient stock",
			},
			[]string{"module"},
		),
		ReportsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_generated_total",
				Help:      "Spreadsheet reports generated by kind",
			},
			[]string{"module", "report"},
		),
		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Background job runs by result",
			},
			[]string{"job", "result"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and duration labelled by route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, code).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}

// RecordOrderClosed counts a completed or not completed order
func (m *Metrics) RecordOrderClosed(module, status string) {
	if m == nil {
		return
	}
	m.OrdersCompleted.WithLabelValues(module, status).Inc()
}

// RecordStockMovement counts a stock ledger movement
func (m *Metrics) RecordStockMovement(module, action string) {
	if m == nil {
		return
	}
	m.StockMovements.WithLabelValues(module, action).Inc()
}

// RecordStockRejection counts an operation rejected for insufficient stock
func (m *Metrics) RecordStockRejection(module string) {
	if m == nil {
		return
	}
	m.StockRejections.WithLabelValues(module).Inc()
}

// RecordReport counts a generated report
func (m *Metrics) RecordReport(module, report string) {
	if m == nil {
		return
	}
	m.ReportsGenerated.WithLabelValues(module, report).Inc()
}

// RecordJobRun counts a background job run
func (m *Metrics) RecordJobRun(job string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
}

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/stationery-pos/internal/database"
)

const (
	OperationCreateSale = "create_sale"
	OperationCancelSale = "cancel_sale"
)

const (
	OutcomeOK                = "ok"
	OutcomeValidation        = "validation"
	OutcomeNotFound          = "not_found"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeConflict          = "conflict"
	OutcomeStorage           = "storage"
	OutcomeCanceled          = "canceled"
	OutcomeUnknown           = "unknown"
)

type Metrics struct {
	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	saleOutcomes    *prometheus.CounterVec
	saleAmount      prometheus.Histogram
	stockMovedUnits *prometheus.CounterVec
}

// New registers every collector, plus the Go runtime and process
// collectors, on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_http_requests_total",
		Help: "Counts HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	saleOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sale_operations_total",
		Help: "Sale create and cancel attempts by outcome.",
	}, []string{"operation", "outcome"})

	saleAmount := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_sale_total_amount",
		Help:    "Distribution of completed sale totals.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000},
	})

	stockMovedUnits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_units_total",
		Help: "Product units taken out of or returned to stock.",
	}, []string{"direction"})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		saleOutcomes,
		saleAmount,
		stockMovedUnits,
	)

	return &Metrics{
		registry:        registry,
		httpRequests:    httpRequests,
		httpDuration:    httpDuration,
		saleOutcomes:    saleOutcomes,
		saleAmount:      saleAmount,
		stockMovedUnits: stockMovedUnits,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordSaleOperation counts one create or cancel attempt under the
// outcome derived from err.
func (m *Metrics) RecordSaleOperation(operation string, err error) {
	m.saleOutcomes.WithLabelValues(operation, Outcome(err)).Inc()
}

func (m *Metrics) ObserveSaleTotal(amount float64) {
	m.saleAmount.Observe(amount)
}

func (m *Metrics) AddStockMovement(direction string, units int) {
	if units <= 0 {
		return
	}
	m.stockMovedUnits.WithLabelValues(direction).Add(float64(units))
}

// Outcome maps an operation error onto a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, database.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, database.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, database.ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, database.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, database.ErrStorage):
		return OutcomeStorage
	default:
		return OutcomeUnknown
	}
}

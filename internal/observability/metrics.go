// Package observability exposes Prometheus metrics for the fulfillment core.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP and domain metrics on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	stockClamps         prometheus.Counter
	ordersAccepted      prometheus.Counter
	partialFulfillments prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medilink_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medilink_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	clamps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "medilink_stock_clamps_total",
		Help: "Stock adjustments floored at zero instead of going negative.",
	})
	accepted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "medilink_orders_accepted_total",
		Help: "Orders transitioned from pending to confirmed.",
	})
	partial := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "medilink_orders_partial_fulfillments_total",
		Help: "Accepted orders with unresolved or short stock lines.",
	})
	registry.MustRegister(requests, duration, clamps, accepted, partial)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		stockClamps:         clamps,
		ordersAccepted:      accepted,
		partialFulfillments: partial,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and duration for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// IncStockClamp counts an adjustment that was floored at zero.
func (m *Metrics) IncStockClamp() {
	if m == nil {
		return
	}
	m.stockClamps.Inc()
}

// IncOrderAccepted counts a pending order transitioning to confirmed.
func (m *Metrics) IncOrderAccepted() {
	if m == nil {
		return
	}
	m.ordersAccepted.Inc()
}

// IncPartialFulfillment counts an accept that could not apply every line.
func (m *Metrics) IncPartialFulfillment() {
	if m == nil {
		return
	}
	m.partialFulfillments.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

// Package metrics exposes Prometheus instrumentation for the HTTP layer and
// the order orchestrator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerMetrics counts HTTP requests and measures latency per route.
type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// NewServerMetrics creates HTTP metrics for the named service.
func NewServerMetrics(service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopper",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shopper",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Register registers the HTTP collectors.
func (m *ServerMetrics) Register(r prometheus.Registerer) {
	r.MustRegister(m.Requests, m.LatencyMS)
}

// Middleware records count and latency for every request, labeled by the
// mux route template.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		handler := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				handler = tmpl
			}
		}
		m.Requests.WithLabelValues(handler, strconv.Itoa(rec.status)).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// OrderMetrics counts order outcomes. A nil receiver is a no-op so tests
// and tools can run without a registry.
type OrderMetrics struct {
	Placed    prometheus.Counter
	Cancelled prometheus.Counter
	Conflicts prometheus.Counter
}

// NewOrderMetrics creates the order counters.
func NewOrderMetrics() *OrderMetrics {
	return &OrderMetrics{
		Placed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopper", Subsystem: "orders", Name: "placed_total",
			Help: "Orders successfully placed.",
		}),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopper", Subsystem: "orders", Name: "cancelled_total",
			Help: "Orders cancelled.",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopper", Subsystem: "orders", Name: "conflict_retries_total",
			Help: "Placement attempts retried after an optimistic-lock conflict.",
		}),
	}
}

// Register registers the order collectors.
func (m *OrderMetrics) Register(r prometheus.Registerer) {
	r.MustRegister(m.Placed, m.Cancelled, m.Conflicts)
}

// OrderPlaced increments the placed counter.
func (m *OrderMetrics) OrderPlaced() {
	if m == nil {
		return
	}
	m.Placed.Inc()
}

// OrderCancelled increments the cancelled counter.
func (m *OrderMetrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.Cancelled.Inc()
}

// ConflictRetried increments the conflict retry counter.
func (m *OrderMetrics) ConflictRetried() {
	if m == nil {
		return
	}
	m.Conflicts.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics provides Prometheus instrumentation for the evaluation engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationsTotal counts evaluation runs by template and outcome.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_evaluations_total",
		Help: "Total number of product evaluations",
	}, []string{"template", "data_quality"})

	// EvaluationDuration tracks the wall time of one evaluation.
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notes_evaluation_duration_seconds",
		Help:    "Product evaluation duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"template"})

	// PriceLookups counts price record lookups by result (hit, fallback, miss, fault).
	PriceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_price_lookups_total",
		Help: "Price record lookups by result",
	}, []string{"result"})

	// EventsEmitted counts events appended to the event log by type.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_events_emitted_total",
		Help: "Events appended to the event log",
	}, []string{"type"})

	// EventsSuppressed counts events dropped by deduplication.
	EventsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_events_suppressed_total",
		Help: "Events suppressed as duplicates",
	}, []string{"type"})

	// StageFaults counts contained failures by pipeline stage.
	StageFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_stage_faults_total",
		Help: "Contained faults by evaluation stage",
	}, []string{"stage"})

	// WebSocketClients tracks connected event feed clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notes_websocket_clients",
		Help: "Number of connected event feed clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notes_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notes_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern uses the mux route template to keep label cardinality bounded.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Package metrics provides Prometheus instrumentation for the settlement
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts accepted orders by direction and final status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probo_orders_total",
		Help: "Total number of orders accepted",
	}, []string{"direction", "status"})

	// TradesTotal counts executed trades by token side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probo_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// MatchedVolume tracks cumulative matched quantity per symbol.
	MatchedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probo_matched_volume_total",
		Help: "Cumulative matched quantity in tokens",
	}, []string{"symbol_id", "side"})

	// MintedVolume tracks cumulative minted pairs per symbol.
	MintedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probo_minted_volume_total",
		Help: "Cumulative minted token pairs",
	}, []string{"symbol_id"})

	// Rejections counts failed operations by reason.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probo_rejections_total",
		Help: "Operations rejected, by operation and reason",
	}, []string{"op", "reason"})

	// InvariantViolations counts aborted units of work that would have
	// broken a ledger or order invariant.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "probo_invariant_violations_total",
		Help: "Units of work aborted by an invariant violation",
	})

	// JournalFailures counts settlement records that could not be journaled.
	JournalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probo_journal_failures_total",
		Help: "Settlement journal append failures",
	}, []string{"kind"})

	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "probo_match_latency_seconds",
		Help:    "Buy order placement and matching latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketSessions tracks connected order-entry sessions.
	WebSocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "probo_websocket_sessions",
		Help: "Number of connected WebSocket order-entry sessions",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probo_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "probo_http_request_duration_seconds",
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
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start).Seconds()

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern uses the chi route pattern for the path label to avoid high
// cardinality from user and symbol IDs.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

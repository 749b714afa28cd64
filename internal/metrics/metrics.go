// Package metrics provides Prometheus instrumentation for the PnL engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts trades appended to the ledger, partitioned by kind.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnl_trades_total",
		Help: "Total number of trades recorded",
	}, []string{"kind"})

	// TradesReversed counts trades flipped to reversed.
	TradesReversed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pnl_trades_reversed_total",
		Help: "Total number of trades reversed",
	})

	// RecomputeLatency tracks full ledger replay time.
	RecomputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pnl_recompute_latency_seconds",
		Help:    "Ledger replay and valuation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OpenPositions tracks live positions after the last refresh.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnl_open_positions",
		Help: "Number of non-flat positions",
	})

	// RealizedPnL, FloatingPnL and NetValue mirror the last reconciliation summary.
	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnl_realized_total",
		Help: "Realized PnL including the carried-over amount",
	})
	FloatingPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnl_floating_total",
		Help: "Floating PnL of all open positions",
	})
	NetValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnl_net_value",
		Help: "Net account value from the last reconciliation summary",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnl_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnl_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pnl_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// LimitRejections counts trades rejected by the exposure limiter.
	LimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnl_limit_rejections_total",
		Help: "Trades rejected by the exposure limiter",
	}, []string{"scope"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps trade IDs out of the label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
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

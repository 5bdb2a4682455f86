// Package metrics provides Prometheus instrumentation for the simulator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fakestocks_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// TradeLatency tracks trade execution latency by side.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fakestocks_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// PriceWalksTotal counts per-company price updates applied by the
	// background cycle.
	PriceWalksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fakestocks_price_walks_total",
		Help: "Company price updates applied",
	})

	// PriceWalkSkipsTotal counts rejected (would-be-negative) candidates.
	PriceWalkSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fakestocks_price_walk_skips_total",
		Help: "Price updates skipped because the candidate was negative",
	})

	// ActiveSessions tracks currently bound sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fakestocks_active_sessions",
		Help: "Number of active sessions",
	})

	// AccountsRegistered counts successful registrations.
	AccountsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fakestocks_accounts_registered_total",
		Help: "Total accounts registered",
	})

	// EpochResetsTotal counts epoch boundary resets.
	EpochResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fakestocks_epoch_resets_total",
		Help: "Total epoch resets performed",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fakestocks_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fakestocks_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fakestocks_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is tiny here.
		path := r.URL.Path
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

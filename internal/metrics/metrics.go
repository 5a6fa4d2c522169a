// Package metrics provides Prometheus instrumentation for the pricing service.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed actions, partitioned by action.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_trades_total",
		Help: "Total number of market actions executed",
	}, []string{"action"})

	// TradeLatency tracks pricing plus persistence time per action.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hyperdrive_trade_latency_seconds",
		Help:    "Market action latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// FeesTotal accumulates fees charged per pool. kind is curve, flat or
	// governance.
	FeesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_fees_total",
		Help: "Cumulative fees charged, in the unit of the priced side",
	}, []string{"pool_id", "kind"})

	// ActivePools tracks the number of initialized pools.
	ActivePools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyperdrive_active_pools",
		Help: "Number of initialized pools",
	})

	// PoolSpotPrice is the full-term spot price after the last state change.
	PoolSpotPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hyperdrive_pool_spot_price",
		Help: "Full-term spot price of a bond in base",
	}, []string{"pool_id"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyperdrive_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hyperdrive_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// LimitRejections counts trades rejected by capacity or exposure limits.
	LimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyperdrive_limit_rejections_total",
		Help: "Trades rejected by capacity or exposure limits",
	}, []string{"reason"})
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

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern uses the chi route pattern for the path label to avoid high
// cardinality, falling back to the raw path outside a chi router.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
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
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

package observability

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	IndexOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bookn", Name: "index_operations_total", Help: "Index store operations."},
		[]string{"operation", "status"}, // status: ok|error|rejected
	)
	OpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookn", Name: "index_operation_duration_seconds",
			Help:    "Index store operation duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bookn", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del|degraded
	)
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "bookn", Name: "circuit_breaker_state", Help: "0 closed, 1 half-open, 2 open."},
		[]string{"operation"},
	)
	SearchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bookn", Name: "search_result_count",
			Help:    "Total matches per search.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bookn", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookn", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(IndexOps, OpLatency, CacheEvents, BreakerState, SearchResults, HTTPRequests, HTTPLatency)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveOperation(operation string, err error, dur time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	IndexOps.WithLabelValues(operation, status).Inc()
	OpLatency.WithLabelValues(operation).Observe(dur.Seconds())
}

// ObserveRejected counts calls short-circuited by an open breaker.
func ObserveRejected(operation string) {
	IndexOps.WithLabelValues(operation, "rejected").Inc()
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del|degraded
	CacheEvents.WithLabelValues(cache, event).Inc()
}

// SetBreakerState exports the breaker position: 0 closed, 1 half-open, 2 open.
func SetBreakerState(operation string, state int) {
	BreakerState.WithLabelValues(operation).Set(float64(state))
}

func ObserveSearch(total int) {
	SearchResults.Observe(float64(total))
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

// Package metrics exposes the Prometheus collectors for the pledge layer.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pledge_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pledge_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pledge_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	pledgeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pledge_layer",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Total number of registry operations.",
		},
		[]string{"operation", "success"},
	)

	upkeepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pledge_layer",
			Subsystem: "upkeep",
			Name:      "runs_total",
			Help:      "Total number of upkeep attempts.",
		},
		[]string{"success"},
	)

	fulfillments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pledge_layer",
			Subsystem: "randomness",
			Name:      "fulfillments_total",
			Help:      "Total number of fulfilled randomness requests.",
		},
	)

	rewardIndices = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pledge_layer",
			Subsystem: "randomness",
			Name:      "reward_index",
			Help:      "Distribution of drawn reward indices.",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		pledgeOperations,
		upkeepRuns,
		fulfillments,
		rewardIndices,
	)
}

// Handler returns the HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordPledgeOperation counts one registry operation outcome.
func RecordPledgeOperation(operation string, success bool) {
	pledgeOperations.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
}

// RecordUpkeepRun counts one upkeep attempt outcome.
func RecordUpkeepRun(success bool) {
	upkeepRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RecordFulfillment counts a fulfilled request and observes its index.
func RecordFulfillment(index int) {
	fulfillments.Inc()
	rewardIndices.Observe(float64(index))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so instrumented routes can still upgrade to
// websocket connections.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// InstrumentHandler wraps an HTTP handler with request counting and latency
// observation. The path label uses the route template, not the raw URL, to
// keep cardinality bounded.
func InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

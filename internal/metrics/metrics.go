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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localgw_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localgw_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "localgw_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localgw_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "route"},
	)

	functionInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localgw_function_invocations_total",
			Help: "Total number of function invocations",
		},
		[]string{"function", "integration", "status"},
	)

	functionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localgw_function_duration_seconds",
			Help:    "Function execution time in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"function", "integration"},
	)

	rebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localgw_rebuilds_total",
			Help: "Total number of bundler rebuild cycles by outcome",
		},
		[]string{"outcome"},
	)

	rebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "localgw_rebuild_duration_seconds",
			Help:    "Bundler build time in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	modulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "localgw_modules_loaded",
			Help: "Number of modules loaded by the last published rebuild cycle",
		},
	)

	handlersReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "localgw_handlers_ready",
			Help: "1 once a handler table has been published, 0 before",
		},
	)
)

// Rebuild outcomes.
const (
	RebuildPublished = "published"
	RebuildFailed    = "failed"
	RebuildHardError = "hard_error"
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration, responseSize int) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	httpResponseSize.WithLabelValues(method, route).Observe(float64(responseSize))
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func RecordFunctionInvocation(name, integration, status string, duration time.Duration) {
	functionInvocations.WithLabelValues(name, integration, status).Inc()
	functionDuration.WithLabelValues(name, integration).Observe(duration.Seconds())
}

// RecordRebuild counts one rebuild cycle. A zero duration is not observed.
func RecordRebuild(outcome string, duration time.Duration) {
	rebuildsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		rebuildDuration.Observe(duration.Seconds())
	}
}

// SetPublished records a published handler table.
func SetPublished(modules int) {
	modulesLoaded.Set(float64(modules))
	handlersReady.Set(1)
}

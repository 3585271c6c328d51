// Package metrics provides Prometheus instrumentation for the sandbox node and the harness.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	registerMu  sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Readiness probe metrics
	readinessAttemptsTotal *prometheus.CounterVec

	// Deployment metrics
	deploymentTotal    *prometheus.CounterVec
	deploymentDuration *prometheus.HistogramVec

	// Sandbox metrics
	sandboxTransactionsTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per
// process; later calls only toggle enabled.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	registerMu.Do(register)
}

func register() {
	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Readiness probe attempts
	readinessAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readiness_attempts_total",
			Help: "Total number of service readiness probe attempts",
		},
		[]string{"result"},
	)

	// Deployment outcomes
	deploymentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployment_outcome_total",
			Help: "Total number of deployments by terminal state",
		},
		[]string{"contract", "state"},
	)

	// Submit to terminal state latency
	deploymentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deployment_duration_seconds",
			Help:    "Time from submission to terminal state in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"state"},
	)

	// Transactions accepted by the sandbox node
	sandboxTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_transactions_total",
			Help: "Total number of transactions accepted by the sandbox",
		},
		[]string{"kind", "status"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}

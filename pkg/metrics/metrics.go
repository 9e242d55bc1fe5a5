package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockhand_deployments_total",
			Help: "Total number of deployments by final status",
		},
		[]string{"status"},
	)

	HealthcheckAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dockhand_healthcheck_attempts",
			Help:    "Number of poll iterations before a deployment reached a final status",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		},
	)

	HealthcheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dockhand_healthcheck_duration_seconds",
			Help:    "Wall-clock time spent waiting for a deployment's health verdict",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// Proxy admin API metrics
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockhand_proxy_requests_total",
			Help: "Total number of proxy admin API calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// Reclaim metrics
	ReclaimDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dockhand_reclaim_duration_seconds",
			Help:    "Time spent reclaiming archived resources by kind",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"kind"},
	)

	ReclaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockhand_reclaims_total",
			Help: "Total number of reclaim operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// Register registers all Dockhand metrics with the default registry.
// Call once at startup.
func Register() {
	prometheus.MustRegister(
		DeploymentsTotal,
		HealthcheckAttempts,
		HealthcheckDuration,
		ProxyRequestsTotal,
		ReclaimDuration,
		ReclaimsTotal,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics listener on addr. It blocks, so run it in a
// goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}

// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "f1replay"

var (
	// TelemetryRequests counts telemetry requests by endpoint and outcome
	TelemetryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_requests_total",
		Help:      "Telemetry requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// SessionLoadDuration observes how long session loads take
	SessionLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_load_duration_seconds",
		Help:      "Time spent loading a session from the data service.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"outcome"})

	// FramesEmitted counts telemetry frames returned to clients
	FramesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_frames_emitted_total",
		Help:      "Telemetry frames returned in chunk responses.",
	})

	// CacheLookups counts provider cache lookups by result (hit, miss, error)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_cache_lookups_total",
		Help:      "Provider cache lookups by result.",
	}, []string{"result"})

	// UpstreamRetries counts retried requests to the data service
	UpstreamRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_retries_total",
		Help:      "Retried requests to the data service.",
	})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

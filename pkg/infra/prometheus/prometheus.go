package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	RequestsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimshield_requests_total",
			Help: "Requests seen by the defense layer, by operation and decision",
		},
		[]string{"operation", "decision"},
	)

	ThreatsDetected = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimshield_threats_detected_total",
			Help: "Threat detections by operation and category",
		},
		[]string{"operation", "category"},
	)

	LimiterFailOpen = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "claimshield_limiter_fail_open_total",
			Help: "Requests allowed because the limiter store was unreachable",
		},
	)
)

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

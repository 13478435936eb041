package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compose-network/saya/metrics"
)

// HTTPMetrics counts and times API requests by method and status code.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	reg := metrics.NewComponentRegistry(metrics.Namespace, "http")
	return &HTTPMetrics{
		Requests: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Operational API requests by method and status code",
		}, []string{"method", "code"}),
		Duration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Operational API request latency",
			Buckets: metrics.DurationBuckets,
		}, []string{"method", "code"}),
	}
}

// Metrics instruments every request that reaches the router.
func Metrics(m *HTTPMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerDuration(m.Duration,
			promhttp.InstrumentHandlerCounter(m.Requests, next))
	}
}

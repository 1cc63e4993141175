package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(rateLimitedTotal) }

var rateLimitedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limited_requests_total",
		Help: "Requests refused by the per-user rate limiter.",
	},
	[]string{"operation"},
)

func IncRateLimited(op string) {
	rateLimitedTotal.WithLabelValues(norm(op)).Inc()
}

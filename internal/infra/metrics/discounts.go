package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(discountRedemptionsTotal) }

var discountRedemptionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "discount_redemptions_total",
		Help: "Discount validation outcomes by kind and result (redeemed, exhausted, expired, ...).",
	},
	[]string{"kind", "result"},
)

func IncDiscountRedemption(kind, result string) {
	discountRedemptionsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionTransitionsTotal,
		renewalRunsTotal,
		subscriptionsRenewedTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription status transitions, including NONE->ACTIVE activations.",
		},
		[]string{"from", "to"},
	)

	renewalRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewal_runs_total",
			Help: "Renewal sweeps by result ('ok', 'error', 'skipped').",
		},
		[]string{"result"},
	)

	subscriptionsRenewedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_renewed_total",
			Help: "Total number of subscriptions extended by a renewal.",
		},
	)
)

func IncSubscriptionTransition(from, to string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncRenewalRun(result string) {
	renewalRunsTotal.WithLabelValues(norm(result)).Inc()
}

func IncSubscriptionsRenewed(count int) {
	subscriptionsRenewedTotal.Add(float64(count))
}

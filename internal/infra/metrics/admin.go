package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminAccessTotal) }

var adminAccessTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_access_total",
		Help: "Tracks attempts to use admin-only operations.",
	},
	[]string{"operation", "status"}, // status: 'authorized', 'forbidden'
)

func IncAdminAccess(operation, status string) {
	adminAccessTotal.WithLabelValues(norm(operation), norm(status)).Inc()
}

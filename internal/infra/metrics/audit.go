package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(auditRecordsTotal) }

var auditRecordsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_records_total",
		Help: "Audit records by outcome: 'written', 'failed', 'dropped'.",
	},
	[]string{"result"},
)

func IncAuditRecord(result string) {
	auditRecordsTotal.WithLabelValues(norm(result)).Inc()
}

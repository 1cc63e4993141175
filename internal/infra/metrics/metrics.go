package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		ledgerTransactionsTotal,
		ledgerAmountTotal,
		optimisticRetriesTotal,
	)
}

var (
	ledgerTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger transactions by type and resulting status.",
		},
		[]string{"type", "status"},
	)

	ledgerAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_amount_total",
			Help: "Sum of committed ledger amounts by transaction type.",
		},
		[]string{"type"},
	)

	optimisticRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimistic_retries_total",
			Help: "Atomic units re-run after a version conflict, by operation.",
		},
		[]string{"resource"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Ledger helpers --------

func IncLedgerTransaction(txType, status string) {
	ledgerTransactionsTotal.WithLabelValues(norm(txType), norm(status)).Inc()
}

func AddLedgerAmount(txType string, amount float64) {
	ledgerAmountTotal.WithLabelValues(norm(txType)).Add(amount)
}

func IncOptimisticRetry(resource string) {
	optimisticRetriesTotal.WithLabelValues(norm(resource)).Inc()
}

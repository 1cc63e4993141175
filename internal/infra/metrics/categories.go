package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(categoryMutationsTotal) }

var categoryMutationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "category_mutations_total",
		Help: "Category create/update/delete attempts by result.",
	},
	[]string{"op", "result"},
)

func IncCategoryMutation(op, result string) {
	categoryMutationsTotal.WithLabelValues(norm(op), norm(result)).Inc()
}

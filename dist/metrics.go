package dist

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "debindex_distribution_generations_total",
		Help: "Distribution index generations by result (generated, skipped, failed).",
	}, []string{"result"})

	generationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "debindex_distribution_generation_duration_seconds",
		Help:    "Duration of successful distribution index generations.",
		Buckets: prometheus.DefBuckets,
	})

	componentFilesPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "debindex_component_files_pruned_total",
		Help: "Generated index bodies removed by the retention window.",
	})
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration, componentFilesPruned)
}

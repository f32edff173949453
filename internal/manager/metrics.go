package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "talion",
			Subsystem: "generate",
			Name:      "duration_seconds",
			Help:      "Duration of completed generations in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"finish_reason"},
	)

	generatedTokens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "talion",
			Subsystem: "generate",
			Name:      "tokens_total",
			Help:      "Total number of generated tokens",
		},
	)

	inflightGenerations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "talion",
			Subsystem: "generate",
			Name:      "inflight",
			Help:      "Generations currently holding a slot",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "talion",
			Subsystem: "generate",
			Name:      "queue_depth",
			Help:      "Requests holding a queue slot, running ones included",
		},
	)

	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talion",
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model load attempts by result",
		},
		[]string{"result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talion",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Completion cache lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(generationDuration, generatedTokens, inflightGenerations, queueDepth, modelLoadsTotal, cacheLookups)
}

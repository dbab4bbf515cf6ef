package recommend

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RecommendationsTotal counts recommendations by source, the
	// model-vs-fallback ratio operators watch.
	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffwise_recommendations_total",
			Help: "Total recommendations served, by source (model or fallback)",
		},
		[]string{"source"},
	)

	// FallbackTotal counts fallback activations by reason.
	FallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffwise_fallback_total",
			Help: "Fallback recommendations, by reason",
		},
		[]string{"reason"},
	)

	// InferenceSeconds observes classifier inference latency.
	InferenceSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tariffwise_inference_seconds",
			Help:    "Classifier inference latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	// LoadedModelInfo reports the currently cached model version.
	LoadedModelInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tariffwise_loaded_model_info",
			Help: "Set to 1 for the currently loaded model version",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(RecommendationsTotal)
	prometheus.MustRegister(FallbackTotal)
	prometheus.MustRegister(InferenceSeconds)
	prometheus.MustRegister(LoadedModelInfo)
}

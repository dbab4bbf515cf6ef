package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TrainingRunsTotal counts training runs by outcome.
	TrainingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariffwise_training_runs_total",
			Help: "Training runs, by result (published, insufficient_data, skipped, error)",
		},
		[]string{"result"},
	)

	// LastTrainingTimestamp is the unix time of the last published model.
	LastTrainingTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tariffwise_last_training_timestamp_seconds",
			Help: "Unix timestamp of the last successfully published model",
		},
	)

	// HoldoutFidelity reports the last run's holdout agreement with the
	// cost-model labels.
	HoldoutFidelity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tariffwise_holdout_fidelity",
			Help: "Holdout fidelity of the last published model",
		},
	)
)

func init() {
	prometheus.MustRegister(TrainingRunsTotal)
	prometheus.MustRegister(LastTrainingTimestamp)
	prometheus.MustRegister(HoldoutFidelity)
}

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shotpredict_stage_duration_seconds",
		Help:    "Wall-clock duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"stage"})

	stageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shotpredict_stage_runs_total",
		Help: "Pipeline stage runs by outcome",
	}, []string{"stage", "outcome"})

	rowsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shotpredict_rows_ingested_total",
		Help: "Rows appended to the raw dataset",
	})

	trainingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shotpredict_training_decisions_total",
		Help: "Trained models by promotion decision",
	}, []string{"decision"})

	bestAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shotpredict_best_accuracy",
		Help: "Held-out accuracy of the currently promoted model",
	})

	batchPredictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shotpredict_batch_predictions_total",
		Help: "Rows scored by the inference stage",
	})
)

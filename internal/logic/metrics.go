package logic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inferenceSeconds = promauto.NewSummary(prometheus.SummaryOpts{
		Name:       "shotpredict_inference_seconds",
		Help:       "Time taken to score one shot",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})

	modelReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shotpredict_model_reloads_total",
		Help: "Model reload attempts by outcome",
	}, []string{"outcome"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shotpredict_predictor_breaker_state",
		Help: "Prediction service circuit state (0 closed, 1 half-open, 2 open)",
	})

	breakerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shotpredict_predictor_requests_total",
		Help: "Remote prediction requests by result",
	}, []string{"result"})
)

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/logic"
	"github.com/hoopsml/shotpredict/internal/models"
)

// ModelServer scores shots with an in-process model.
type ModelServer interface {
	logic.Predictor
	Info() (*models.ModelInfo, error)
}

// Serving exposes a ModelServer as the unauthenticated prediction service
// the API calls when PREDICTION_SERVICE_URL is set.
type Serving struct {
	*Handler
	model ModelServer
}

func NewServing(model ModelServer, logger *zap.Logger) *Serving {
	return &Serving{
		Handler: New(Config{Logger: logger}),
		model:   model,
	}
}

func (s *Serving) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/health", s.ServingHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/model", s.ModelInfo)
	r.Post("/predict", s.Score)
	return r
}

// ServingHealth reports healthy only once a model is loaded.
func (s *Serving) ServingHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.model.Info(); err != nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "no_model",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ModelInfo godoc
// @Summary Describe the served model
// @Tags Serving
// @Produce json
// @Success 200 {object} models.ModelInfo
// @Failure 503 {object} map[string]string
// @Router /model [get]
func (s *Serving) ModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.model.Info()
	if err != nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Model not loaded")
		return
	}
	s.jsonResponse(w, http.StatusOK, info)
}

// Score godoc
// @Summary Score one shot
// @Tags Serving
// @Accept json
// @Produce json
// @Param body body models.ScoringItem true "Shot features"
// @Success 200 {object} models.Prediction
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /predict [post]
func (s *Serving) Score(w http.ResponseWriter, r *http.Request) {
	var item models.ScoringItem
	if err := s.decodeJSON(w, r, &item); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validator.Struct(&item); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	pred, err := s.model.Predict(r.Context(), &item)
	switch {
	case err == nil:
		s.jsonResponse(w, http.StatusOK, pred)
	case errors.Is(err, logic.ErrInvalidFeatures):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, logic.ErrModelNotLoaded):
		s.errorResponse(w, http.StatusServiceUnavailable, "Model not loaded")
	default:
		s.logger.Errorw("Scoring failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Scoring failed")
	}
}

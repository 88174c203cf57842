package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/hoopsml/shotpredict/internal/logic"
	"github.com/hoopsml/shotpredict/internal/models"
)

// Predict scores one shot and stores the prediction for later verification
// @Summary Predict shot outcome
// @Tags Predictions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body models.ScoringItem true "Processed shot features"
// @Success 200 {object} models.PredictionResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /predict [post]
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFromContext(ctx)
	start := time.Now()

	var item models.ScoringItem
	if err := h.decodeJSON(w, r, &item); err != nil {
		apiPredictions.WithLabelValues("invalid").Inc()
		h.errorResponse(w, http.StatusBadRequest, "Invalid scoring item: "+err.Error())
		return
	}
	if err := h.validator.Struct(&item); err != nil {
		apiPredictions.WithLabelValues("invalid").Inc()
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	event := models.NewPredictionEvent(&item, user.Username)
	input, _ := json.Marshal(&item)
	event.RawJSON = string(input)

	pred, err := h.predictor.Predict(ctx, &item)
	if errors.Is(err, logic.ErrInvalidFeatures) {
		apiPredictions.WithLabelValues("invalid").Inc()
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Errorw("Prediction failed", "user", user.Username, "error", err)
		apiPredictions.WithLabelValues(models.OutcomeUpstreamError).Inc()
		event.Outcome = models.OutcomeUpstreamError
		h.recordAudit(event, start)
		h.errorResponse(w, http.StatusBadGateway, "Prediction service unavailable")
		return
	}
	event.ModelVersion = pred.ModelVersion
	event.Prediction = uint8(pred.Prediction)
	event.Probability = float32(pred.Probability)

	id, err := h.predictions.SavePrediction(ctx, &models.PredictionRecord{
		Prediction:      pred.Prediction,
		Probability:     pred.Probability,
		ModelVersion:    pred.ModelVersion,
		Username:        user.Username,
		InputParameters: input,
	})
	if err != nil {
		h.logger.Errorw("Error saving prediction", "user", user.Username, "model", pred.ModelVersion, "error", err)
		apiPredictions.WithLabelValues(models.OutcomeStoreError).Inc()
		event.Outcome = models.OutcomeStoreError
		h.recordAudit(event, start)
		h.errorResponse(w, http.StatusInternalServerError, "Error saving prediction")
		return
	}

	apiPredictions.WithLabelValues(models.OutcomeOK).Inc()
	event.Outcome = models.OutcomeOK
	event.PredictionID = id
	h.recordAudit(event, start)

	h.jsonResponse(w, http.StatusOK, models.PredictionResponse{
		PredictionID:    id,
		Prediction:      pred.Prediction,
		Probability:     pred.Probability,
		ModelVersion:    pred.ModelVersion,
		InputParameters: &item,
	})
}

// recordAudit hands the event to the audit pool without blocking the request.
func (h *Handler) recordAudit(event *models.PredictionEvent, start time.Time) {
	if h.audit == nil {
		return
	}
	event.LatencyMs = float32(time.Since(start).Seconds() * 1000)
	if !h.audit.Enqueue(event) {
		h.logger.Warnw("Audit queue full, event dropped", "event_id", event.EventID)
	}
}

// GetUnverified offers a random prediction awaiting human verification
// @Summary Random unverified prediction
// @Tags Predictions
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.UnverifiedPrediction
// @Failure 401 {object} map[string]string
// @Router /predictions/verify [get]
func (h *Handler) GetUnverified(w http.ResponseWriter, r *http.Request) {
	rec, err := h.predictions.RandomUnverified(r.Context())
	if errors.Is(err, logic.ErrNoUnverified) {
		h.jsonResponse(w, http.StatusOK, models.MessageResponse{Message: "No unverified predictions available"})
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to fetch unverified prediction", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.jsonResponse(w, http.StatusOK, models.UnverifiedPrediction{
		PredictionID:    rec.ID,
		ModelPrediction: rec.Prediction,
		DateTime:        rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		InputParameters: rec.InputParameters,
	})
}

// Verify records the observed outcome of a prediction
// @Summary Verify prediction
// @Tags Predictions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body models.VerificationRequest true "Observed outcome"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /predictions/verify [post]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerificationRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.predictions.VerifyPrediction(r.Context(), req.PredictionID, *req.TrueValue)
	if errors.Is(err, logic.ErrPredictionNotFound) {
		h.errorResponse(w, http.StatusNotFound, "Prediction not found")
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to verify prediction", "prediction_id", req.PredictionID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Infow("Prediction verified",
		"prediction_id", req.PredictionID,
		"true_value", *req.TrueValue,
		"user", userFromContext(r.Context()).Username,
	)
	h.jsonResponse(w, http.StatusOK, models.MessageResponse{
		Message: fmt.Sprintf("Prediction_id:%d verified successfully", req.PredictionID),
	})
}

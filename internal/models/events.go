package models

import (
	"time"

	"github.com/google/uuid"
)

// PredictionEvent is the audit row written to ClickHouse for every scored
// request, successful or not.
type PredictionEvent struct {
	EventID      uuid.UUID
	Timestamp    time.Time
	PredictionID int64 // 0 when nothing was persisted
	Username     string
	ModelVersion string
	Outcome      string // "ok", "upstream_error", "store_error"
	Prediction   uint8
	Probability  float32

	ShotDistance float32
	XLocation    float32
	YLocation    float32
	Period       uint8

	LatencyMs float32

	// Request body for debugging
	RawJSON string
}

const (
	OutcomeOK            = "ok"
	OutcomeUpstreamError = "upstream_error"
	OutcomeStoreError    = "store_error"
)

// NewPredictionEvent fills the shot-level columns from the scored item.
func NewPredictionEvent(item *ScoringItem, username string) *PredictionEvent {
	return &PredictionEvent{
		EventID:      uuid.New(),
		Timestamp:    time.Now().UTC(),
		Username:     username,
		ShotDistance: float32(item.ShotDistance),
		XLocation:    float32(item.XLocation),
		YLocation:    float32(item.YLocation),
		Period:       uint8(item.Period),
	}
}

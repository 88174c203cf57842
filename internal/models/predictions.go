package models

import (
	"time"

	"github.com/goccy/go-json"
)

// ScoringItem is one processed shot submitted for scoring. JSON names are
// the wire names clients send; the col tag is the training column each field
// feeds.
type ScoringItem struct {
	Period           float64 `json:"Period" col:"Period" validate:"min=1,max=10"`
	MinutesRemaining float64 `json:"Minutes_Remaining" col:"Minutes Remaining" validate:"min=0,max=12"`
	SecondsRemaining float64 `json:"Seconds_Remaining" col:"Seconds Remaining" validate:"min=0,max=59"`
	ShotDistance     float64 `json:"Shot_Distance" col:"Shot Distance" validate:"min=0,max=100"`
	XLocation        float64 `json:"X_Location" col:"X Location"`
	YLocation        float64 `json:"Y_Location" col:"Y Location"`

	ActionTypeFrequency float64 `json:"Action_Type_Frequency" col:"Action Type_Frequency" validate:"min=0,max=1"`
	TeamNameFrequency   float64 `json:"Team_Name_Frequency" col:"Team Name_Frequency" validate:"min=0,max=1"`
	HomeTeamFrequency   float64 `json:"Home_Team_Frequency" col:"Home Team_Frequency" validate:"min=0,max=1"`
	AwayTeamFrequency   float64 `json:"Away_Team_Frequency" col:"Away Team_Frequency" validate:"min=0,max=1"`

	ShotType2PT int `json:"ShotType_2PT_Field_Goal" col:"ShotType_2PT Field Goal" validate:"oneof=0 1"`
	ShotType3PT int `json:"ShotType_3PT_Field_Goal" col:"ShotType_3PT Field Goal" validate:"oneof=0 1"`

	ZoneAboveTheBreak3 int `json:"ShotZoneBasic_Above_the_Break_3" col:"ShotZoneBasic_Above the Break 3" validate:"oneof=0 1"`
	ZoneBackcourt      int `json:"ShotZoneBasic_Backcourt" col:"ShotZoneBasic_Backcourt" validate:"oneof=0 1"`
	ZonePaintNonRA     int `json:"ShotZoneBasic_In_The_Paint_Non_RA" col:"ShotZoneBasic_In The Paint (Non-RA)" validate:"oneof=0 1"`
	ZoneLeftCorner3    int `json:"ShotZoneBasic_Left_Corner_3" col:"ShotZoneBasic_Left Corner 3" validate:"oneof=0 1"`
	ZoneMidRange       int `json:"ShotZoneBasic_Mid_Range" col:"ShotZoneBasic_Mid-Range" validate:"oneof=0 1"`
	ZoneRestricted     int `json:"ShotZoneBasic_Restricted_Area" col:"ShotZoneBasic_Restricted Area" validate:"oneof=0 1"`
	ZoneRightCorner3   int `json:"ShotZoneBasic_Right_Corner_3" col:"ShotZoneBasic_Right Corner 3" validate:"oneof=0 1"`

	AreaBackCourt        int `json:"ShotZoneArea_Back_Court_BC" col:"ShotZoneArea_Back Court(BC)" validate:"oneof=0 1"`
	AreaCenter           int `json:"ShotZoneArea_Center_C" col:"ShotZoneArea_Center(C)" validate:"oneof=0 1"`
	AreaLeftSideCenter   int `json:"ShotZoneArea_Left_Side_Center_LC" col:"ShotZoneArea_Left Side Center(LC)" validate:"oneof=0 1"`
	AreaLeftSide         int `json:"ShotZoneArea_Left_Side_L" col:"ShotZoneArea_Left Side(L)" validate:"oneof=0 1"`
	AreaRightSideCenter  int `json:"ShotZoneArea_Right_Side_Center_RC" col:"ShotZoneArea_Right Side Center(RC)" validate:"oneof=0 1"`
	AreaRightSide        int `json:"ShotZoneArea_Right_Side_R" col:"ShotZoneArea_Right Side(R)" validate:"oneof=0 1"`

	Range16To24      int `json:"ShotZoneRange_16_24_ft" col:"ShotZoneRange_16-24 ft." validate:"oneof=0 1"`
	Range24Plus      int `json:"ShotZoneRange_24_ft" col:"ShotZoneRange_24+ ft." validate:"oneof=0 1"`
	Range8To16       int `json:"ShotZoneRange_8_16_ft" col:"ShotZoneRange_8-16 ft." validate:"oneof=0 1"`
	RangeBackCourt   int `json:"ShotZoneRange_Back_Court_Shot" col:"ShotZoneRange_Back Court Shot" validate:"oneof=0 1"`
	RangeLessThan8   int `json:"ShotZoneRange_Less_Than_8_ft" col:"ShotZoneRange_Less Than 8 ft." validate:"oneof=0 1"`

	SeasonPlayoffs int `json:"SeasonType_Playoffs" col:"SeasonType_Playoffs" validate:"oneof=0 1"`
	SeasonRegular  int `json:"SeasonType_Regular_Season" col:"SeasonType_Regular Season" validate:"oneof=0 1"`

	GameIDFrequency      float64 `json:"Game_ID_Frequency" col:"Game ID_Frequency" validate:"min=0,max=1"`
	GameEventIDFrequency float64 `json:"Game_Event_ID_Frequency" col:"Game Event ID_Frequency" validate:"min=0,max=1"`
	PlayerIDFrequency    float64 `json:"Player_ID_Frequency" col:"Player ID_Frequency" validate:"min=0,max=1"`

	Year      int `json:"Year" col:"Year" validate:"min=1946,max=2100"`
	Month     int `json:"Month" col:"Month" validate:"min=1,max=12"`
	Day       int `json:"Day" col:"Day" validate:"min=1,max=31"`
	DayOfWeek int `json:"Day_of_Week" col:"Day_of_Week" validate:"min=0,max=6"`
}

// Features returns the item keyed by training column name.
func (s *ScoringItem) Features() map[string]float64 {
	return scoringFeatures(s)
}

// Prediction is a scored shot.
type Prediction struct {
	Prediction   int     `json:"prediction"`
	Probability  float64 `json:"probability"`
	ModelVersion string  `json:"model_version"`
}

// ModelInfo describes the model a predictor is serving.
type ModelInfo struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Accuracy  float64   `json:"accuracy"`
	Columns   int       `json:"columns"`
	TrainedAt time.Time `json:"trained_at"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// PredictionRecord is a persisted prediction awaiting or holding human
// verification.
type PredictionRecord struct {
	ID               int64           `json:"prediction_id"`
	Prediction       int             `json:"prediction"`
	Probability      float64         `json:"probability"`
	ModelVersion     string          `json:"model_version"`
	Username         string          `json:"username"`
	InputParameters  json.RawMessage `json:"input_parameters"`
	UserVerification *int            `json:"user_verification,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PredictionResponse is returned from the scoring endpoint.
type PredictionResponse struct {
	PredictionID    int64        `json:"prediction_id"`
	Prediction      int          `json:"prediction"`
	Probability     float64      `json:"probability"`
	ModelVersion    string       `json:"model_version"`
	InputParameters *ScoringItem `json:"input_parameters"`
}

// UnverifiedPrediction is offered to a reviewer for verification.
type UnverifiedPrediction struct {
	PredictionID    int64           `json:"prediction_id"`
	ModelPrediction int             `json:"model_prediction"`
	DateTime        string          `json:"date_time"`
	InputParameters json.RawMessage `json:"input_parameters"`
}

// VerificationRequest records the observed outcome of a prediction.
type VerificationRequest struct {
	PredictionID int64 `json:"prediction_id" validate:"required,gt=0"`
	TrueValue    *int  `json:"true_value" validate:"required,oneof=0 1"`
}

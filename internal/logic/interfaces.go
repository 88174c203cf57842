package logic

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hoopsml/shotpredict/internal/models"
)

var (
	ErrUserExists           = errors.New("username already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidCredentials   = errors.New("incorrect username or password")
	ErrInactiveUser         = errors.New("inactive user")
	ErrPredictionNotFound   = errors.New("prediction not found")
	ErrNoUnverified         = errors.New("no unverified predictions available")
	ErrPredictorUnavailable = errors.New("prediction service unavailable")
	ErrModelNotLoaded       = errors.New("no model loaded")
	ErrInvalidFeatures      = errors.New("invalid feature vector")
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// UserStore persists API accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, hashedPassword string, disabled bool) (*models.User, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
}

// PredictionStore persists scored shots and their verification.
type PredictionStore interface {
	SavePrediction(ctx context.Context, rec *models.PredictionRecord) (int64, error)
	RandomUnverified(ctx context.Context) (*models.PredictionRecord, error)
	VerifyPrediction(ctx context.Context, id int64, trueValue int) error
}

// AuthService handles accounts and bearer tokens.
type AuthService interface {
	Signup(ctx context.Context, req models.SignupRequest) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.TokenResponse, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Predictor scores one shot.
type Predictor interface {
	Predict(ctx context.Context, item *models.ScoringItem) (*models.Prediction, error)
}

package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hoopsml/shotpredict/internal/models"
)

// PostgresStore keeps users and predictions in PostgreSQL.
type PostgresStore struct {
	pg PgPool
}

func NewPostgresStore(pg PgPool) *PostgresStore {
	return &PostgresStore{pg: pg}
}

// =============================================================================
// USERS
// =============================================================================

func (s *PostgresStore) CreateUser(ctx context.Context, username, hashedPassword string, disabled bool) (*models.User, error) {
	u := &models.User{Username: username, HashedPassword: hashedPassword, Disabled: disabled}
	err := s.pg.QueryRow(ctx, `
		INSERT INTO users (username, hashed_password, disabled)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, username, hashedPassword, disabled).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.pg.QueryRow(ctx, `
		SELECT id, username, hashed_password, disabled, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.HashedPassword, &u.Disabled, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// =============================================================================
// PREDICTIONS
// =============================================================================

func (s *PostgresStore) SavePrediction(ctx context.Context, rec *models.PredictionRecord) (int64, error) {
	var id int64
	err := s.pg.QueryRow(ctx, `
		INSERT INTO predictions (prediction, probability, model_version, username, input_parameters)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, rec.Prediction, rec.Probability, rec.ModelVersion, rec.Username, string(rec.InputParameters)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save prediction: %w", err)
	}
	return id, nil
}

// offerHold is how long an offered prediction is withheld from other
// reviewers.
const offerHold = "5 minutes"

// RandomUnverified picks a random prediction nobody has verified and holds it
// briefly so concurrent reviewers are offered different rows.
func (s *PostgresStore) RandomUnverified(ctx context.Context) (*models.PredictionRecord, error) {
	var (
		rec   models.PredictionRecord
		input string
	)
	err := s.pg.QueryRow(ctx, `
		UPDATE predictions
		SET offered_at = now()
		WHERE id = (
			SELECT id FROM predictions
			WHERE user_verification IS NULL
			  AND (offered_at IS NULL OR offered_at < now() - $1::interval)
			ORDER BY random()
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, prediction, probability, model_version, COALESCE(username, ''), input_parameters::text, created_at
	`, offerHold).Scan(&rec.ID, &rec.Prediction, &rec.Probability, &rec.ModelVersion, &rec.Username, &input, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoUnverified
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unverified prediction: %w", err)
	}
	rec.InputParameters = []byte(input)
	return &rec, nil
}

func (s *PostgresStore) VerifyPrediction(ctx context.Context, id int64, trueValue int) error {
	tag, err := s.pg.Exec(ctx, `
		UPDATE predictions
		SET user_verification = $1, verified_at = now()
		WHERE id = $2
	`, trueValue, id)
	if err != nil {
		return fmt.Errorf("failed to verify prediction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPredictionNotFound
	}
	return nil
}

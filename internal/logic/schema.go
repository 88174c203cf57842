package logic

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              BIGSERIAL PRIMARY KEY,
		username        VARCHAR(255) UNIQUE NOT NULL,
		hashed_password VARCHAR(255) NOT NULL,
		disabled        BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS predictions (
		id                BIGSERIAL PRIMARY KEY,
		prediction        SMALLINT NOT NULL CHECK (prediction IN (0, 1)),
		probability       DOUBLE PRECISION NOT NULL DEFAULT 0,
		model_version     TEXT NOT NULL DEFAULT '',
		username          VARCHAR(255),
		input_parameters  JSONB NOT NULL,
		user_verification SMALLINT CHECK (user_verification IN (0, 1)),
		offered_at        TIMESTAMPTZ,
		verified_at       TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS predictions_unverified_idx
		ON predictions (id) WHERE user_verification IS NULL`,
}

// EnsureSchema creates the users and predictions tables if they are missing.
func EnsureSchema(ctx context.Context, pg PgPool) error {
	for _, stmt := range schema {
		if _, err := pg.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

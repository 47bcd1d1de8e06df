// Package postgres provides a PostgreSQL-backed implementation of
// [profile.Store]. It keeps voice and noise profiles durable across
// process restarts behind a single [pgxpool.Pool].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	p, err := store.GetVoice(ctx, "alice")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlVoiceProfiles = `
CREATE TABLE IF NOT EXISTS voice_profiles (
    id                   TEXT              PRIMARY KEY,
    name                 TEXT              NOT NULL DEFAULT '',
    language             TEXT              NOT NULL DEFAULT '',
    created_at           TIMESTAMPTZ       NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ       NOT NULL DEFAULT now(),
    calibration          JSONB             NOT NULL DEFAULT '{}',
    recognition_accuracy DOUBLE PRECISION  NOT NULL DEFAULT 0,
    sample_count         INTEGER           NOT NULL DEFAULT 0
);`

const ddlNoiseProfiles = `
CREATE TABLE IF NOT EXISTS noise_profiles (
    id                 TEXT                PRIMARY KEY,
    name               TEXT                NOT NULL DEFAULT '',
    environment        TEXT                NOT NULL DEFAULT '',
    noise_floor        DOUBLE PRECISION    NOT NULL DEFAULT 0,
    frequency_profile  DOUBLE PRECISION[]  NOT NULL DEFAULT '{}',
    adaptive_threshold DOUBLE PRECISION    NOT NULL DEFAULT 0,
    created_at         TIMESTAMPTZ         NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ         NOT NULL DEFAULT now()
);`

// Migrate ensures all required tables exist. Every statement is idempotent,
// so Migrate is safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlVoiceProfiles, ddlNoiseProfiles} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("profile store: migrate: %w", err)
		}
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kothalabs/kotha/pkg/language"
	"github.com/kothalabs/kotha/pkg/profile"
)

// Compile-time assertion that Store satisfies the profile.Store interface.
var _ profile.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [profile.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn, verifies
// connectivity, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("profile store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("profile store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// AddVoice implements [profile.Store.AddVoice].
func (s *Store) AddVoice(ctx context.Context, p profile.VoiceProfile) (profile.VoiceProfile, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	calib, err := json.Marshal(p.Calibration)
	if err != nil {
		return profile.VoiceProfile{}, fmt.Errorf("profile store: marshal calibration: %w", err)
	}

	const q = `
		INSERT INTO voice_profiles
		    (id, name, language, created_at, updated_at, calibration, recognition_accuracy, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		p.ID, p.Name, string(p.Language), p.CreatedAt, p.UpdatedAt,
		calib, p.RecognitionAccuracy, p.SampleCount,
	)
	if err != nil {
		return profile.VoiceProfile{}, fmt.Errorf("profile store: add voice profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.VoiceProfile{}, profile.ErrDuplicateID
	}
	return p, nil
}

// GetVoice implements [profile.Store.GetVoice].
func (s *Store) GetVoice(ctx context.Context, id string) (profile.VoiceProfile, error) {
	const q = `
		SELECT id, name, language, created_at, updated_at, calibration, recognition_accuracy, sample_count
		FROM   voice_profiles
		WHERE  id = $1`

	p, err := scanVoice(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.VoiceProfile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.VoiceProfile{}, fmt.Errorf("profile store: get voice profile: %w", err)
	}
	return p, nil
}

// ListVoice implements [profile.Store.ListVoice].
func (s *Store) ListVoice(ctx context.Context) ([]profile.VoiceProfile, error) {
	const q = `
		SELECT id, name, language, created_at, updated_at, calibration, recognition_accuracy, sample_count
		FROM   voice_profiles`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("profile store: list voice profiles: %w", err)
	}
	defer rows.Close()

	var result []profile.VoiceProfile
	for rows.Next() {
		p, err := scanVoice(rows)
		if err != nil {
			return nil, fmt.Errorf("profile store: scan voice profile: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile store: list voice profiles: %w", err)
	}
	return result, nil
}

// UpdateVoice implements [profile.Store.UpdateVoice].
func (s *Store) UpdateVoice(ctx context.Context, p profile.VoiceProfile) error {
	calib, err := json.Marshal(p.Calibration)
	if err != nil {
		return fmt.Errorf("profile store: marshal calibration: %w", err)
	}

	const q = `
		UPDATE voice_profiles
		SET    name = $2, language = $3, updated_at = $4, calibration = $5,
		       recognition_accuracy = $6, sample_count = $7
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q,
		p.ID, p.Name, string(p.Language), p.UpdatedAt,
		calib, p.RecognitionAccuracy, p.SampleCount,
	)
	if err != nil {
		return fmt.Errorf("profile store: update voice profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// RemoveVoice implements [profile.Store.RemoveVoice].
func (s *Store) RemoveVoice(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM voice_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("profile store: remove voice profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// SaveNoise implements [profile.Store.SaveNoise].
func (s *Store) SaveNoise(ctx context.Context, p profile.NoiseProfile) error {
	if p.ID == "" {
		return fmt.Errorf("profile store: noise profile ID must not be empty")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	const q = `
		INSERT INTO noise_profiles
		    (id, name, environment, noise_floor, frequency_profile, adaptive_threshold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, environment = EXCLUDED.environment,
		    noise_floor = EXCLUDED.noise_floor, frequency_profile = EXCLUDED.frequency_profile,
		    adaptive_threshold = EXCLUDED.adaptive_threshold, updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, q,
		p.ID, p.Name, p.Environment, p.NoiseFloor,
		p.FrequencyProfile, p.AdaptiveThreshold, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("profile store: save noise profile: %w", err)
	}
	return nil
}

// GetNoise implements [profile.Store.GetNoise].
func (s *Store) GetNoise(ctx context.Context, id string) (profile.NoiseProfile, error) {
	const q = `
		SELECT id, name, environment, noise_floor, frequency_profile, adaptive_threshold, created_at, updated_at
		FROM   noise_profiles
		WHERE  id = $1`

	p, err := scanNoise(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.NoiseProfile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.NoiseProfile{}, fmt.Errorf("profile store: get noise profile: %w", err)
	}
	return p, nil
}

// ListNoise implements [profile.Store.ListNoise].
func (s *Store) ListNoise(ctx context.Context) ([]profile.NoiseProfile, error) {
	const q = `
		SELECT id, name, environment, noise_floor, frequency_profile, adaptive_threshold, created_at, updated_at
		FROM   noise_profiles`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("profile store: list noise profiles: %w", err)
	}
	defer rows.Close()

	var result []profile.NoiseProfile
	for rows.Next() {
		p, err := scanNoise(rows)
		if err != nil {
			return nil, fmt.Errorf("profile store: scan noise profile: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile store: list noise profiles: %w", err)
	}
	return result, nil
}

// RemoveNoise implements [profile.Store.RemoveNoise].
func (s *Store) RemoveNoise(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM noise_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("profile store: remove noise profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// newID returns a fresh profile ID.
func newID() string { return uuid.NewString() }

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanVoice(row pgx.Row) (profile.VoiceProfile, error) {
	var (
		p     profile.VoiceProfile
		lang  string
		calib []byte
	)
	err := row.Scan(&p.ID, &p.Name, &lang, &p.CreatedAt, &p.UpdatedAt,
		&calib, &p.RecognitionAccuracy, &p.SampleCount)
	if err != nil {
		return profile.VoiceProfile{}, err
	}
	p.Language = language.Tag(lang)
	if len(calib) > 0 {
		if err := json.Unmarshal(calib, &p.Calibration); err != nil {
			return profile.VoiceProfile{}, fmt.Errorf("unmarshal calibration: %w", err)
		}
	}
	return p, nil
}

func scanNoise(row pgx.Row) (profile.NoiseProfile, error) {
	var p profile.NoiseProfile
	err := row.Scan(&p.ID, &p.Name, &p.Environment, &p.NoiseFloor,
		&p.FrequencyProfile, &p.AdaptiveThreshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return profile.NoiseProfile{}, err
	}
	return p, nil
}

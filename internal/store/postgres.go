package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rkm/fieldsat/internal/models"
)

// PostgresStore persists observations in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while migrating postgres: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS observations (
			id TEXT PRIMARY KEY,
			field_id TEXT NOT NULL,
			capture_date TIMESTAMPTZ NOT NULL,
			ndvi DOUBLE PRECISION NOT NULL,
			ndvi_change DOUBLE PRECISION,
			stress_level TEXT NOT NULL,
			image_url TEXT,
			source TEXT NOT NULL,
			cloud_coverage DOUBLE PRECISION,
			resolution DOUBLE PRECISION,
			confidence DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_observations_field_capture
			ON observations (field_id, capture_date DESC, created_at DESC);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, obs models.SatelliteObservation) error {
	if obs.FieldID == "" {
		return fmt.Errorf("%w: observation has no field id", models.ErrInvalidInput)
	}

	const query = `
		INSERT INTO observations (
			id, field_id, capture_date, ndvi, ndvi_change, stress_level,
			image_url, source, cloud_coverage, resolution, confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.pool.Exec(ctx, query,
		obs.ID,
		obs.FieldID,
		obs.CaptureDate,
		obs.NDVI,
		obs.NDVIChange,
		string(obs.StressLevel),
		obs.ImageURL,
		string(obs.Source),
		obs.CloudCoverage,
		obs.Resolution,
		obs.Confidence,
		obs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting observation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 0)
}

func (s *PostgresStore) Previous(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 1)
}

func (s *PostgresStore) History(ctx context.Context, fieldID string, limit int) ([]models.SatelliteObservation, error) {
	const query = `
		SELECT id, field_id, capture_date, ndvi, ndvi_change, stress_level,
			image_url, source, cloud_coverage, resolution, confidence, created_at
		FROM observations
		WHERE field_id = $1
		ORDER BY capture_date DESC, created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, fieldID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying observations: %w", err)
	}
	defer rows.Close()

	var out []models.SatelliteObservation
	for rows.Next() {
		var (
			obs            models.SatelliteObservation
			stress, source string
		)
		if err := rows.Scan(
			&obs.ID, &obs.FieldID, &obs.CaptureDate, &obs.NDVI, &obs.NDVIChange, &stress,
			&obs.ImageURL, &source, &obs.CloudCoverage, &obs.Resolution, &obs.Confidence, &obs.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning observation: %w", err)
		}
		obs.StressLevel = models.StressLevel(stress)
		obs.Source = models.Source(source)
		obs.CaptureDate = obs.CaptureDate.UTC()
		obs.CreatedAt = obs.CreatedAt.UTC()
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

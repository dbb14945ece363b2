package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rkm/fieldsat/internal/models"
)

// SQLiteStore persists observations in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS observations (
			id TEXT PRIMARY KEY,
			field_id TEXT NOT NULL,
			capture_date INTEGER NOT NULL,
			ndvi REAL NOT NULL,
			ndvi_change REAL,
			stress_level TEXT NOT NULL,
			image_url TEXT,
			source TEXT NOT NULL,
			cloud_coverage REAL,
			resolution REAL,
			confidence REAL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_observations_field_capture
			ON observations(field_id, capture_date DESC, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, obs models.SatelliteObservation) error {
	if obs.FieldID == "" {
		return fmt.Errorf("%w: observation has no field id", models.ErrInvalidInput)
	}

	query := `
		INSERT INTO observations (
			id, field_id, capture_date, ndvi, ndvi_change, stress_level,
			image_url, source, cloud_coverage, resolution, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		obs.ID,
		obs.FieldID,
		obs.CaptureDate.UnixNano(),
		obs.NDVI,
		nullFloat(obs.NDVIChange),
		string(obs.StressLevel),
		nullString(obs.ImageURL),
		string(obs.Source),
		nullFloat(obs.CloudCoverage),
		nullFloat(obs.Resolution),
		nullFloat(obs.Confidence),
		obs.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("error inserting observation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Latest(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 0)
}

func (s *SQLiteStore) Previous(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 1)
}

func (s *SQLiteStore) History(ctx context.Context, fieldID string, limit int) ([]models.SatelliteObservation, error) {
	query := `
		SELECT id, field_id, capture_date, ndvi, ndvi_change, stress_level,
			image_url, source, cloud_coverage, resolution, confidence, created_at
		FROM observations
		WHERE field_id = ?
		ORDER BY capture_date DESC, created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, fieldID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying observations: %w", err)
	}
	defer rows.Close()

	var out []models.SatelliteObservation
	for rows.Next() {
		var (
			obs                                   models.SatelliteObservation
			capture, created                      int64
			stress, source                        string
			change, cloud, resolution, confidence sql.NullFloat64
			imageURL                              sql.NullString
		)
		if err := rows.Scan(
			&obs.ID, &obs.FieldID, &capture, &obs.NDVI, &change, &stress,
			&imageURL, &source, &cloud, &resolution, &confidence, &created,
		); err != nil {
			return nil, fmt.Errorf("error scanning observation: %w", err)
		}

		obs.CaptureDate = time.Unix(0, capture).UTC()
		obs.CreatedAt = time.Unix(0, created).UTC()
		obs.StressLevel = models.StressLevel(stress)
		obs.Source = models.Source(source)
		obs.NDVIChange = floatPtr(change)
		obs.CloudCoverage = floatPtr(cloud)
		obs.Resolution = floatPtr(resolution)
		obs.Confidence = floatPtr(confidence)
		if imageURL.Valid {
			obs.ImageURL = &imageURL.String
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

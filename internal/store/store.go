// Package store persists satellite observations as an append-only log per
// field. Queries return observations newest first by capture date, with
// creation time breaking ties.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/rkm/fieldsat/internal/models"
)

// ErrNotFound is returned when a field has no matching observation.
var ErrNotFound = errors.New("observation not found")

// ObservationStore is the observation cache. Implementations never update
// or delete an appended observation.
type ObservationStore interface {
	// Append stores a new observation.
	Append(ctx context.Context, obs models.SatelliteObservation) error

	// Latest returns the most recent observation for a field.
	Latest(ctx context.Context, fieldID string) (*models.SatelliteObservation, error)

	// Previous returns the second most recent observation for a field.
	Previous(ctx context.Context, fieldID string) (*models.SatelliteObservation, error)

	// History returns up to limit observations, newest first.
	History(ctx context.Context, fieldID string, limit int) ([]models.SatelliteObservation, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// DefaultHistoryLimit applies when History is called with a non-positive limit.
const DefaultHistoryLimit = 50

// newerFirst orders observations by capture date, then creation time, both
// descending.
func newerFirst(obs []models.SatelliteObservation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if !obs[i].CaptureDate.Equal(obs[j].CaptureDate) {
			return obs[i].CaptureDate.After(obs[j].CaptureDate)
		}
		return obs[i].CreatedAt.After(obs[j].CreatedAt)
	})
}

// nth returns the n-th newest observation using the store's History.
func nth(ctx context.Context, s ObservationStore, fieldID string, n int) (*models.SatelliteObservation, error) {
	list, err := s.History(ctx, fieldID, n+1)
	if err != nil {
		return nil, err
	}
	if len(list) <= n {
		return nil, ErrNotFound
	}
	obs := list[n]
	return &obs, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

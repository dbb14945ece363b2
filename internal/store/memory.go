package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/rkm/fieldsat/internal/models"
)

// MemoryStore keeps observations in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	fields map[string][]models.SatelliteObservation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fields: make(map[string][]models.SatelliteObservation),
	}
}

func (s *MemoryStore) Append(_ context.Context, obs models.SatelliteObservation) error {
	if obs.FieldID == "" {
		return fmt.Errorf("%w: observation has no field id", models.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.fields[obs.FieldID], obs)
	newerFirst(list)
	s.fields[obs.FieldID] = list
	return nil
}

func (s *MemoryStore) Latest(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 0)
}

func (s *MemoryStore) Previous(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 1)
}

func (s *MemoryStore) History(_ context.Context, fieldID string, limit int) ([]models.SatelliteObservation, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.fields[fieldID]
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]models.SatelliteObservation, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

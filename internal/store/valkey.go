package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/rkm/fieldsat/internal/models"
)

// ValkeyStore keeps one sorted set per field, scored by capture time in
// milliseconds, whose members are JSON-encoded observations.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore wraps an existing client. Keys are namespaced by prefix.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "fieldsat"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

func (s *ValkeyStore) fieldKey(fieldID string) string {
	return fmt.Sprintf("%s:observations:%s", s.prefix, fieldID)
}

func (s *ValkeyStore) Append(ctx context.Context, obs models.SatelliteObservation) error {
	if obs.FieldID == "" {
		return fmt.Errorf("%w: observation has no field id", models.ErrInvalidInput)
	}

	member, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("error encoding observation: %w", err)
	}

	score := float64(obs.CaptureDate.UnixMilli())
	cmd := s.client.B().Zadd().Key(s.fieldKey(obs.FieldID)).ScoreMember().ScoreMember(score, string(member)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("error appending observation: %w", err)
	}
	return nil
}

func (s *ValkeyStore) Latest(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 0)
}

func (s *ValkeyStore) Previous(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 1)
}

func (s *ValkeyStore) History(ctx context.Context, fieldID string, limit int) ([]models.SatelliteObservation, error) {
	limit = normalizeLimit(limit)

	cmd := s.client.B().Zrevrange().Key(s.fieldKey(fieldID)).Start(0).Stop(int64(limit - 1)).Build()
	members, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying observations: %w", err)
	}

	out := make([]models.SatelliteObservation, 0, len(members))
	for _, m := range members {
		var obs models.SatelliteObservation
		if err := json.Unmarshal([]byte(m), &obs); err != nil {
			return nil, fmt.Errorf("error decoding observation: %w", err)
		}
		out = append(out, obs)
	}
	// members sharing a score come back in reverse lexical order
	newerFirst(out)
	return out, nil
}

func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}

// Package events publishes observation lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
)

// ObservationCreated is emitted after a fetched observation is cached.
const ObservationCreated = "observation.created"

// Publisher announces new observations.
type Publisher interface {
	PublishObservation(ctx context.Context, obs models.SatelliteObservation) error
	Close() error
}

// Event is the message payload.
type Event struct {
	Type        string                      `json:"type"`
	OccurredAt  time.Time                   `json:"occurredAt"`
	Observation models.SatelliteObservation `json:"observation"`
}

// messageWriter is the subset of kafkago.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher produces events to a Kafka topic keyed by field id, so all
// events of a field land on one partition in order.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
	logger *slog.Logger
}

// NewKafkaPublisher creates a Kafka producer for the configured topic.
func NewKafkaPublisher(cfg config.EventsConfig, logger *slog.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, now: time.Now, logger: logger}
}

// PublishObservation implements Publisher.
func (p *KafkaPublisher) PublishObservation(ctx context.Context, obs models.SatelliteObservation) error {
	msg, err := serializeToMessage(obs, p.now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ObservationCreated, err)
	}

	p.logger.DebugContext(ctx, "observation event published",
		slog.String("field_id", obs.FieldID),
		slog.String("observation_id", obs.ID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an observation event into a Kafka message.
func serializeToMessage(obs models.SatelliteObservation, at time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(Event{Type: ObservationCreated, OccurredAt: at.UTC(), Observation: obs})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(obs.FieldID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ObservationCreated)},
			{Key: "source", Value: []byte(obs.Source)},
		},
	}, nil
}

// Noop discards events. It is used when publishing is disabled.
type Noop struct{}

func (Noop) PublishObservation(context.Context, models.SatelliteObservation) error { return nil }

func (Noop) Close() error { return nil }

package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rkm/fieldsat/internal/models"
)

// MongoStore persists observations in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type observationDocument struct {
	ID            string    `bson:"_id"`
	FieldID       string    `bson:"field_id"`
	CaptureDate   time.Time `bson:"capture_date"`
	NDVI          float64   `bson:"ndvi"`
	NDVIChange    *float64  `bson:"ndvi_change,omitempty"`
	StressLevel   string    `bson:"stress_level"`
	ImageURL      *string   `bson:"image_url,omitempty"`
	Source        string    `bson:"source"`
	CloudCoverage *float64  `bson:"cloud_coverage,omitempty"`
	Resolution    *float64  `bson:"resolution,omitempty"`
	Confidence    *float64  `bson:"confidence,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
}

// NewMongoStore connects to uri and uses database.collection.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error while pinging mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "field_id", Value: 1},
			{Key: "capture_date", Value: -1},
			{Key: "created_at", Value: -1},
		},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error creating mongo index: %w", err)
	}

	return &MongoStore{client: client, collection: coll}, nil
}

func (s *MongoStore) Append(ctx context.Context, obs models.SatelliteObservation) error {
	if obs.FieldID == "" {
		return fmt.Errorf("%w: observation has no field id", models.ErrInvalidInput)
	}
	if _, err := s.collection.InsertOne(ctx, toDocument(obs)); err != nil {
		return fmt.Errorf("error inserting observation: %w", err)
	}
	return nil
}

func (s *MongoStore) Latest(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 0)
}

func (s *MongoStore) Previous(ctx context.Context, fieldID string) (*models.SatelliteObservation, error) {
	return nth(ctx, s, fieldID, 1)
}

func (s *MongoStore) History(ctx context.Context, fieldID string, limit int) ([]models.SatelliteObservation, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "capture_date", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cur, err := s.collection.Find(ctx, bson.M{"field_id": fieldID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying observations: %w", err)
	}
	defer cur.Close(ctx)

	var docs []observationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding observations: %w", err)
	}

	out := make([]models.SatelliteObservation, len(docs))
	for i, d := range docs {
		out[i] = d.toObservation()
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toDocument(o models.SatelliteObservation) observationDocument {
	return observationDocument{
		ID:            o.ID,
		FieldID:       o.FieldID,
		CaptureDate:   o.CaptureDate,
		NDVI:          o.NDVI,
		NDVIChange:    o.NDVIChange,
		StressLevel:   string(o.StressLevel),
		ImageURL:      o.ImageURL,
		Source:        string(o.Source),
		CloudCoverage: o.CloudCoverage,
		Resolution:    o.Resolution,
		Confidence:    o.Confidence,
		CreatedAt:     o.CreatedAt,
	}
}

func (d observationDocument) toObservation() models.SatelliteObservation {
	return models.SatelliteObservation{
		ID:            d.ID,
		FieldID:       d.FieldID,
		CaptureDate:   d.CaptureDate.UTC(),
		NDVI:          d.NDVI,
		NDVIChange:    d.NDVIChange,
		StressLevel:   models.StressLevel(d.StressLevel),
		ImageURL:      d.ImageURL,
		Source:        models.Source(d.Source),
		CloudCoverage: d.CloudCoverage,
		Resolution:    d.Resolution,
		Confidence:    d.Confidence,
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

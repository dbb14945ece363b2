// Package archive keeps the raw provider payloads observations were derived
// from in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
)

// Archiver stores the raw payload behind an observation.
type Archiver interface {
	Archive(ctx context.Context, obs models.SatelliteObservation, payload []byte) error
}

// Key returns the object key for obs: {source}/{fieldId}/{captureDate}.json.
func Key(obs models.SatelliteObservation) string {
	return fmt.Sprintf("%s/%s/%s.json", obs.Source, obs.FieldID, obs.CaptureDate.UTC().Format("2006-01-02"))
}

// MinioArchive stores payloads in a bucket through the S3 API.
type MinioArchive struct {
	client *minio.Client
	bucket string
	logger *slog.Logger

	mu      sync.Mutex
	ensured bool
}

// NewMinioArchive constructs the archive client.
func NewMinioArchive(cfg config.ArchiveConfig, logger *slog.Logger) (*MinioArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init archive client: %w", err)
	}
	return &MinioArchive{client: client, bucket: cfg.Bucket, logger: logger.With("component", "archive")}, nil
}

func (a *MinioArchive) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ensured {
		return nil
	}

	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err == nil && exists {
		a.ensured = true
		return nil
	}
	err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return fmt.Errorf("create archive bucket: %w", err)
	}
	a.ensured = true
	return nil
}

// Archive implements Archiver. Empty payloads are skipped.
func (a *MinioArchive) Archive(ctx context.Context, obs models.SatelliteObservation, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}

	key := Key(obs)
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:      "application/json",
		DisableMultipart: true,
		UserMetadata: map[string]string{
			"observation-id": obs.ID,
		},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}

	a.logger.DebugContext(ctx, "payload archived",
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)
	return nil
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// Noop discards payloads. It is used when archiving is disabled.
type Noop struct{}

func (Noop) Archive(context.Context, models.SatelliteObservation, []byte) error { return nil }

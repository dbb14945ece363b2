package sentinel2

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/sentinel2/sentinel2test"
)

var field = models.FieldBounds{North: 48.11, South: 48.1, East: 11.61, West: 11.6}

func newPipeline(t *testing.T, srv *sentinel2test.Server, id string) *Pipeline {
	t.Helper()
	profile := config.DefaultProfiles().Get(models.SourceCopernicus)
	return NewPipeline(models.SourceCopernicus, Endpoints{
		ClientID:      id,
		ClientSecret:  "secret",
		TokenURL:      srv.TokenURL(),
		CatalogURL:    srv.CatalogURL(),
		StatisticsURL: srv.StatisticsURL(),
		Timeout:       5 * time.Second,
	}, *profile, provider.SearchOptions{WindowDays: 10, MaxCloudCover: 30, Limit: 20},
		config.AuthConfig{ExpiryMargin: time.Minute, MaxAttempts: 1}).
		WithClock(clockwork.NewFakeClockAt(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)))
}

func TestFetchLatestObservation(t *testing.T) {
	srv := sentinel2test.NewServer(t)
	srv.Items = []sentinel2test.Item{
		{ID: "cloudy", Datetime: "2024-06-14T10:30:00Z", CloudCover: 25},
		{ID: "clear", Datetime: "2024-06-10T10:30:00Z", CloudCover: 5},
	}
	srv.Statistics = sentinel2test.StatisticsResponse([]float64{0.04, 0.07, 0.05, 0.35, 0.2, 0.12}, 2000, 0, 0.6, 0.8)

	p := newPipeline(t, srv, "id")
	res, err := p.FetchLatestObservation(context.Background(), "field-1", field)
	require.NoError(t, err)

	obs := res.Observation
	assert.Equal(t, models.SourceCopernicus, obs.Source)
	assert.Equal(t, "field-1", obs.FieldID)
	assert.Equal(t, time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC), obs.CaptureDate)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), obs.CreatedAt)
	assert.InDelta(t, 0.7, obs.NDVI, 1e-9)
	assert.Equal(t, 5.0, *obs.CloudCoverage)
	assert.Equal(t, 10.0, *obs.Resolution)
	assert.True(t, res.SWIR)
	assert.NotEmpty(t, res.Raw)

	// second fetch reuses the cached token
	_, err = p.FetchLatestObservation(context.Background(), "field-1", field)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.TokenRequests.Load())
	assert.Equal(t, int32(2), srv.StatisticsRequests.Load())
}

func TestFetchLatestObservationMissingCredentials(t *testing.T) {
	srv := sentinel2test.NewServer(t)

	p := newPipeline(t, srv, "")
	_, err := p.FetchLatestObservation(context.Background(), "field-1", field)

	assert.True(t, errors.Is(err, models.ErrNotAvailable))
	assert.True(t, errors.Is(err, models.ErrConfigurationMissing))
	assert.Equal(t, int32(0), srv.SearchRequests.Load())
}

func TestFetchLatestObservationNoScenes(t *testing.T) {
	srv := sentinel2test.NewServer(t)

	_, err := newPipeline(t, srv, "id").FetchLatestObservation(context.Background(), "field-1", field)

	assert.True(t, errors.Is(err, models.ErrNotAvailable))
	assert.True(t, errors.Is(err, models.ErrNoScenes))
	assert.Equal(t, int32(0), srv.StatisticsRequests.Load())
}

func TestFetchLatestObservationStatisticsFailure(t *testing.T) {
	srv := sentinel2test.NewServer(t)
	srv.Items = []sentinel2test.Item{{ID: "clear", Datetime: "2024-06-10T10:30:00Z", CloudCover: 5}}
	srv.StatisticsStatus = http.StatusServiceUnavailable
	srv.Statistics = "maintenance"

	_, err := newPipeline(t, srv, "id").FetchLatestObservation(context.Background(), "field-1", field)

	assert.True(t, errors.Is(err, models.ErrNotAvailable))
	assert.Contains(t, err.Error(), "status 503")
}

func TestFetchLatestObservationInvalidBounds(t *testing.T) {
	srv := sentinel2test.NewServer(t)

	_, err := newPipeline(t, srv, "id").FetchLatestObservation(context.Background(), "field-1",
		models.FieldBounds{North: 1, South: 2, East: 3, West: 2})

	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	assert.False(t, errors.Is(err, models.ErrNotAvailable))
}

func TestFetchLatestObservationTokenDeadline(t *testing.T) {
	release := make(chan struct{})
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(tokens.Close)
	t.Cleanup(func() { close(release) })

	srv := sentinel2test.NewServer(t)
	profile := config.DefaultProfiles().Get(models.SourceCopernicus)
	p := NewPipeline(models.SourceCopernicus, Endpoints{
		ClientID:      "id",
		ClientSecret:  "secret",
		TokenURL:      tokens.URL,
		CatalogURL:    srv.CatalogURL(),
		StatisticsURL: srv.StatisticsURL(),
		Timeout:       300 * time.Millisecond,
	}, *profile, provider.SearchOptions{WindowDays: 10, MaxCloudCover: 30, Limit: 20},
		config.AuthConfig{ExpiryMargin: time.Minute, MaxAttempts: 3, RetryDelay: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.FetchLatestObservation(ctx, "field-1", field)

	assert.True(t, errors.Is(err, models.ErrNotAvailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, int32(0), srv.SearchRequests.Load())
}

func TestFetchLatestObservationFailureLeftToCaller(t *testing.T) {
	srv := sentinel2test.NewServer(t)

	var logs bytes.Buffer
	p := newPipeline(t, srv, "id").WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))

	_, err := p.FetchLatestObservation(context.Background(), "field-1", field)

	require.True(t, errors.Is(err, models.ErrNoScenes))
	assert.NotContains(t, logs.String(), "no scenes available")
	assert.NotContains(t, logs.String(), "provider request failed")
}

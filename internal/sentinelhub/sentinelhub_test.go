package sentinelhub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/sentinel2/sentinel2test"
	"github.com/rkm/fieldsat/internal/statistics"
)

var (
	field  = models.FieldBounds{North: 45.51, South: 45.5, East: -73.59, West: -73.6}
	search = provider.SearchOptions{WindowDays: 10, MaxCloudCover: 30, Limit: 20}
	auth   = config.AuthConfig{ExpiryMargin: time.Minute, MaxAttempts: 1}
)

func TestConfidence(t *testing.T) {
	tests := []struct {
		name   string
		result statistics.Result
		want   float64
	}{
		{name: "no samples", result: statistics.Result{}, want: 0.8},
		{name: "no masked samples", result: statistics.Result{SampleCount: 1000}, want: 0.8},
		{name: "half masked", result: statistics.Result{SampleCount: 1000, NoDataCount: 500}, want: 0.7},
		{name: "all masked", result: statistics.Result{SampleCount: 1000, NoDataCount: 1000}, want: 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(0.8, &tt.result), 1e-9)
		})
	}
}

func TestAdapter(t *testing.T) {
	srv := sentinel2test.NewServer(t)
	srv.Items = []sentinel2test.Item{{ID: "S2A_MSIL2A", Datetime: time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339), CloudCover: 0}}
	srv.Statistics = sentinel2test.StatisticsResponse([]float64{0.03, 0.06, 0.04, 0.45, 0.22, 0.11}, 20000, 5000, 0.8, 0.9)

	a := New(config.SentinelHubConfig{
		ClientID:      "sh-client",
		ClientSecret:  "secret",
		TokenURL:      srv.TokenURL(),
		CatalogURL:    srv.CatalogURL(),
		StatisticsURL: srv.StatisticsURL(),
		Timeout:       5 * time.Second,
	}, *config.DefaultProfiles().Get(models.SourceSentinelHub), search, auth)

	res, err := a.FetchLatestObservation(context.Background(), "field-9", field)
	require.NoError(t, err)

	assert.Equal(t, models.SourceSentinelHub, a.Source())
	assert.Equal(t, models.SourceSentinelHub, res.Observation.Source)
	assert.InDelta(t, 0.85, res.Observation.NDVI, 1e-9)

	// 25% masked samples cost 0.05
	require.NotNil(t, res.Observation.Confidence)
	assert.InDelta(t, 0.9, *res.Observation.Confidence, 1e-9)
}

func TestAdapterNotConfigured(t *testing.T) {
	a := New(config.SentinelHubConfig{Timeout: time.Second}, *config.DefaultProfiles().Get(models.SourceSentinelHub), search, auth)

	_, err := a.FetchLatestObservation(context.Background(), "field-9", field)
	assert.True(t, errors.Is(err, models.ErrConfigurationMissing))
}

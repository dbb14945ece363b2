package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/fieldsat/internal/models"
)

var day0 = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

func history(values ...float64) []models.SatelliteObservation {
	out := make([]models.SatelliteObservation, len(values))
	for i, v := range values {
		out[i] = models.SatelliteObservation{
			FieldID:     "field-1",
			CaptureDate: day0.AddDate(0, 0, 5*i),
			NDVI:        v,
		}
	}
	return out
}

func TestAnalyzeInsufficientHistory(t *testing.T) {
	_, err := Analyze(history(0.5, 0.6))
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestAnalyzeImproving(t *testing.T) {
	got, err := Analyze(history(0.3, 0.4, 0.5, 0.6))
	require.NoError(t, err)

	assert.Equal(t, "field-1", got.FieldID)
	assert.InDelta(t, 0.1, got.Trend.Slope, 1e-9)
	assert.Equal(t, Improving, got.Trend.Direction)
	assert.Equal(t, SignificanceHigh, got.Trend.Significance)
	assert.Equal(t, models.StressHigh, got.StressLevel)
	assert.InDelta(t, 0.45, got.Statistics.Mean, 1e-9)
	assert.Equal(t, 4, got.Observations)
	assert.Equal(t, day0, got.From)
	assert.Equal(t, day0.AddDate(0, 0, 15), got.To)
	assert.Contains(t, got.Recommendations, "Increase irrigation frequency")
	assert.Contains(t, got.Recommendations, "Continue current management practices")
}

func TestAnalyzeOrdersByCaptureDate(t *testing.T) {
	obs := history(0.8, 0.7, 0.6)
	obs[0], obs[2] = obs[2], obs[0]

	got, err := Analyze(obs)
	require.NoError(t, err)
	assert.Equal(t, Declining, got.Trend.Direction)
	assert.InDelta(t, -0.1, got.Trend.Slope, 1e-9)
	assert.Contains(t, got.Recommendations, "Investigate causes of declining vegetation health")
}

func TestAnalyzeStableHealthyField(t *testing.T) {
	got, err := Analyze(history(0.75, 0.75, 0.75))
	require.NoError(t, err)

	assert.Equal(t, Stable, got.Trend.Direction)
	assert.Equal(t, SignificanceLow, got.Trend.Significance)
	assert.Equal(t, models.StressLow, got.StressLevel)
	assert.Empty(t, got.Anomalies)
	assert.Empty(t, got.Recommendations)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
}

func TestAnalyzeDetectsAnomalies(t *testing.T) {
	got, err := Analyze(history(0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.0))
	require.NoError(t, err)

	require.Len(t, got.Anomalies, 1)
	assert.Equal(t, "low", got.Anomalies[0].Type)
	assert.Equal(t, 0.0, got.Anomalies[0].NDVI)
	assert.InDelta(t, 0.45, got.Anomalies[0].Deviation, 1e-9)
}

func TestAnalyzeSevereStress(t *testing.T) {
	got, err := Analyze(history(0.1, 0.12, 0.11))
	require.NoError(t, err)

	assert.Equal(t, models.StressSevere, got.StressLevel)
	assert.Equal(t, "Immediate irrigation required to prevent crop damage", got.Recommendations[0])
	assert.GreaterOrEqual(t, got.Confidence, 0.0)
	assert.LessOrEqual(t, got.Confidence, 0.95)
}

func TestRecommendationsManyAnomalies(t *testing.T) {
	recs := recommendations(models.StressLow, Stable, 3)
	assert.Equal(t, []string{
		"High variability detected - investigate field uniformity",
		"Consider precision management approaches",
	}, recs)
}

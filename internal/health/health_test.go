package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/fieldsat/internal/models"
)

func intPtr(v int) *int { return &v }

func TestAssessHealthyField(t *testing.T) {
	got := Assess(Input{
		NDVI: 0.75,
		NDWI: models.Float64(0.4),
		NDMI: models.Float64(0.35),
	})

	assert.Equal(t, models.HealthExcellent, got.Overall)
	assert.Equal(t, models.StressNone, got.StressLevel)
	assert.Empty(t, got.StressFactors)
	assert.NotNil(t, got.StressFactors)
	assert.Equal(t, DefaultConfidence, got.Confidence)
}

func TestAssessSparseVegetation(t *testing.T) {
	got := Assess(Input{NDVI: 0.18})

	assert.Contains(t, []models.StressLevel{models.StressHigh, models.StressSevere}, got.StressLevel)
	assert.NotEmpty(t, got.Recommendations)
	assert.Equal(t, []string{"low vegetation vigor"}, got.StressFactors)
	assert.Equal(t, models.HealthPoor, got.Overall)
}

func TestStressLevelThresholds(t *testing.T) {
	tests := []struct {
		ndvi float64
		want models.StressLevel
	}{
		{0.9, models.StressNone},
		{0.6, models.StressNone},
		{0.59, models.StressLow},
		{0.45, models.StressLow},
		{0.44, models.StressModerate},
		{0.3, models.StressModerate},
		{0.29, models.StressHigh},
		{0.1, models.StressHigh},
		{0.09, models.StressSevere},
		{-0.4, models.StressSevere},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StressLevelFor(tt.ndvi), "ndvi=%v", tt.ndvi)
	}
}

func TestOverallThresholds(t *testing.T) {
	assert.Equal(t, models.HealthExcellent, OverallFor(0.7))
	assert.Equal(t, models.HealthGood, OverallFor(0.55))
	assert.Equal(t, models.HealthFair, OverallFor(0.35))
	assert.Equal(t, models.HealthPoor, OverallFor(0.15))
	assert.Equal(t, models.HealthCritical, OverallFor(0.05))
}

func TestAssessFactorOrderFollowsRuleOrder(t *testing.T) {
	stats := &models.NDVIStatistics{Mean: 0.2, Std: 0.3, ValidPixels: 10, WaterPixels: 5}
	got := Assess(Input{
		NDVI:       0.5,
		NDWI:       models.Float64(-0.3),
		NDMI:       models.Float64(0.0),
		EVI:        models.Float64(0.1),
		Statistics: stats,
	})

	require.Equal(t, []string{
		"low vegetation vigor",
		"water stress",
		"moisture stress",
		"low canopy density",
		"high within-field variability",
		"standing water or flooding",
	}, got.StressFactors)
}

func TestAssessDeduplicatesRecommendations(t *testing.T) {
	got := Assess(Input{
		NDVI: 0.65,
		NDWI: models.Float64(-0.5),
		NDMI: models.Float64(-0.2),
	})

	require.Len(t, got.StressFactors, 2)
	count := 0
	for _, r := range got.Recommendations {
		if r == adviceIrrigation {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, got.Recommendations, 1)
}

func TestAssessUsesStatisticsMean(t *testing.T) {
	got := Assess(Input{NDVI: 0.8, Statistics: &models.NDVIStatistics{Mean: 0.2, ValidPixels: 1}})
	assert.Equal(t, models.StressHigh, got.StressLevel)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, DefaultConfidence, Confidence(nil))
	assert.Equal(t, DefaultConfidence, Confidence(&Quality{}))

	clearSky := Confidence(&Quality{CloudCoverage: models.Float64(0), PixelCount: intPtr(5000)})
	assert.InDelta(t, 0.95, clearSky, 1e-9)

	cloudy := Confidence(&Quality{CloudCoverage: models.Float64(50), PixelCount: intPtr(5000)})
	assert.InDelta(t, 0.65, cloudy, 1e-9)

	worst := Confidence(&Quality{CloudCoverage: models.Float64(100), PixelCount: intPtr(10)})
	assert.InDelta(t, 0.15, worst, 1e-9)

	clamped := Confidence(&Quality{CloudCoverage: models.Float64(250), PixelCount: intPtr(-1)})
	assert.GreaterOrEqual(t, clamped, 0.0)
	assert.LessOrEqual(t, clamped, 1.0)
}

func TestAssessLowConfidenceAdvice(t *testing.T) {
	got := Assess(Input{
		NDVI:    0.7,
		Quality: &Quality{CloudCoverage: models.Float64(90), PixelCount: intPtr(50)},
	})
	assert.Less(t, got.Confidence, LowConfidence)
	assert.Contains(t, got.Recommendations, adviceLowConfidence)
}

func TestInputFromIndices(t *testing.T) {
	in := InputFromIndices(models.VegetationIndices{NDVI: 0.5, NDWI: -0.4, NDMI: 0.2, EVI: 0.4}, nil, nil)
	require.NotNil(t, in.NDWI)
	assert.Equal(t, -0.4, *in.NDWI)
	assert.Equal(t, 0.2, *in.NDMI)
	assert.Equal(t, 0.4, *in.EVI)
}

package statistics

import (
	"math"
	"time"

	"github.com/rkm/fieldsat/internal/fieldstats"
	"github.com/rkm/fieldsat/internal/health"
	"github.com/rkm/fieldsat/internal/indices"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
)

// Scene identifies the acquisition statistics were computed for.
type Scene struct {
	ID         string
	Acquired   time.Time
	CloudCover float64
}

// Observed carries everything needed to turn statistics into a provider
// result.
type Observed struct {
	FieldID    string
	Source     models.Source
	Scene      Scene
	Resolution float64
	Stats      *Result
	// Adjust optionally refines the quality-based confidence.
	Adjust    func(confidence float64) float64
	CreatedAt time.Time
}

// Assemble computes indices and NDVI statistics and builds the observation.
// The observation NDVI is the per-pixel mean when a histogram is available,
// otherwise the NDVI of the mean bands.
func Assemble(o Observed) *provider.Result {
	idx := indices.Calculate(o.Stats.Bands)
	if !o.Stats.SWIR {
		idx.NDMI = 0
	}

	var stats *models.NDVIStatistics
	if len(o.Stats.Histogram) > 0 {
		if s, err := fieldstats.FromHistogram(o.Stats.Histogram); err == nil {
			stats = &s
		}
	}

	ndvi := idx.NDVI
	if stats != nil {
		ndvi = stats.Mean
	}

	pixels := o.Stats.ValidPixels()
	q := &health.Quality{
		CloudCoverage: models.Float64(o.Scene.CloudCover),
		PixelCount:    &pixels,
	}

	confidence := health.Confidence(q)
	if o.Adjust != nil {
		confidence = clampConfidence(o.Adjust(confidence))
	}

	obs := models.NewObservation(o.FieldID, o.Source, o.Scene.Acquired, ndvi, o.CreatedAt)
	obs.StressLevel = health.StressLevelFor(ndvi)
	obs.CloudCoverage = models.Float64(o.Scene.CloudCover)
	obs.Resolution = models.Float64(o.Resolution)
	obs.Confidence = models.Float64(confidence)

	return &provider.Result{
		Observation: obs,
		Indices:     &idx,
		Statistics:  stats,
		Quality:     q,
		SWIR:        o.Stats.SWIR,
		Raw:         o.Stats.Raw,
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

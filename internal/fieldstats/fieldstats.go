// Package fieldstats aggregates per-pixel NDVI values into field statistics.
package fieldstats

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/rkm/fieldsat/internal/models"
)

// Land-cover thresholds applied to individual pixels.
const (
	WaterThreshold    = 0.0
	BareSoilThreshold = 0.2
)

// Compute summarises a non-empty population of NDVI values.
//
// Quantiles use linear interpolation between closest ranks (Hyndman-Fan
// type 7, the default of R and NumPy): for probability p over n sorted
// values the rank is h = (n-1)*p and the result interpolates between
// sorted[floor(h)] and sorted[ceil(h)].
func Compute(values []float64) (models.NDVIStatistics, error) {
	if len(values) == 0 {
		return models.NDVIStatistics{}, fmt.Errorf("%w: empty pixel population", models.ErrInvalidInput)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.NDVIStatistics{}, fmt.Errorf("%w: non-finite value at index %d", models.ErrInvalidInput, i)
		}
	}

	data := stats.Float64Data(values)

	mean, err := stats.Mean(data)
	if err != nil {
		return models.NDVIStatistics{}, fmt.Errorf("mean: %w", err)
	}
	std, err := stats.StandardDeviationPopulation(data)
	if err != nil {
		return models.NDVIStatistics{}, fmt.Errorf("standard deviation: %w", err)
	}
	minV, err := stats.Min(data)
	if err != nil {
		return models.NDVIStatistics{}, fmt.Errorf("min: %w", err)
	}
	maxV, err := stats.Max(data)
	if err != nil {
		return models.NDVIStatistics{}, fmt.Errorf("max: %w", err)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	result := models.NDVIStatistics{
		// summation error must not push the mean outside the observed range
		Mean:   math.Min(maxV, math.Max(minV, mean)),
		Median: Quantile(sorted, 0.5),
		Min:    minV,
		Max:    maxV,
		Std:    std,
		Q25:    Quantile(sorted, 0.25),
		Q75:    Quantile(sorted, 0.75),
	}

	for _, v := range values {
		if v >= -1 && v <= 1 {
			result.ValidPixels++
		}
		if v < WaterThreshold {
			result.WaterPixels++
		}
		if v >= WaterThreshold && v < BareSoilThreshold {
			result.BaresoilPixels++
		}
	}

	return result, nil
}

// Quantile returns the type-7 quantile of an ascending slice. p is clamped
// to [0,1]. It returns 0 for an empty slice.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	p = math.Min(1, math.Max(0, p))

	h := float64(n-1) * p
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	frac := h - float64(lo)
	v := sorted[lo] + frac*(sorted[hi]-sorted[lo])
	return math.Min(sorted[hi], math.Max(sorted[lo], v))
}

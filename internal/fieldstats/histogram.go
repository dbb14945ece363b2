package fieldstats

import (
	"fmt"
	"math"
	"sort"

	"github.com/rkm/fieldsat/internal/models"
)

// HistogramBin is one bucket of a provider-computed NDVI histogram.
type HistogramBin struct {
	LowEdge  float64 `json:"lowEdge"`
	HighEdge float64 `json:"highEdge"`
	Count    int     `json:"count"`
}

func (b HistogramBin) centre() float64 {
	return (b.LowEdge + b.HighEdge) / 2
}

// FromHistogram computes statistics over the population a histogram
// describes, with every pixel placed at its bin centre. Pixel counts are the
// bin counts themselves and quantiles are the type-7 quantiles of that
// population, so results are exact up to the bin width at any raster size.
func FromHistogram(bins []HistogramBin) (models.NDVIStatistics, error) {
	filled := make([]HistogramBin, 0, len(bins))
	total := 0
	for _, b := range bins {
		if b.Count < 0 {
			return models.NDVIStatistics{}, fmt.Errorf("%w: negative bin count", models.ErrInvalidInput)
		}
		if c := b.centre(); math.IsNaN(c) || math.IsInf(c, 0) {
			return models.NDVIStatistics{}, fmt.Errorf("%w: non-finite bin edges", models.ErrInvalidInput)
		}
		if b.Count == 0 {
			continue
		}
		filled = append(filled, b)
		total += b.Count
	}
	if total == 0 {
		return models.NDVIStatistics{}, fmt.Errorf("%w: histogram has no samples", models.ErrInvalidInput)
	}

	sort.SliceStable(filled, func(i, j int) bool { return filled[i].centre() < filled[j].centre() })

	n := float64(total)
	var sum float64
	for _, b := range filled {
		sum += b.centre() * float64(b.Count)
	}
	mean := sum / n

	var squares float64
	for _, b := range filled {
		d := b.centre() - mean
		squares += d * d * float64(b.Count)
	}

	minV := filled[0].centre()
	maxV := filled[len(filled)-1].centre()

	result := models.NDVIStatistics{
		Mean:   math.Min(maxV, math.Max(minV, mean)),
		Median: binQuantile(filled, total, 0.5),
		Min:    minV,
		Max:    maxV,
		Std:    math.Sqrt(squares / n),
		Q25:    binQuantile(filled, total, 0.25),
		Q75:    binQuantile(filled, total, 0.75),
	}

	for _, b := range filled {
		c := b.centre()
		if c >= -1 && c <= 1 {
			result.ValidPixels += b.Count
		}
		if c < WaterThreshold {
			result.WaterPixels += b.Count
		}
		if c >= WaterThreshold && c < BareSoilThreshold {
			result.BaresoilPixels += b.Count
		}
	}

	return result, nil
}

// binQuantile is Quantile over the population of bin centres without
// expanding it. bins must be non-empty, sorted by centre and sum to total.
func binQuantile(bins []HistogramBin, total int, p float64) float64 {
	p = math.Min(1, math.Max(0, p))
	h := float64(total-1) * p
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))

	loV, hiV := valueAtRank(bins, lo), valueAtRank(bins, hi)
	if lo == hi {
		return loV
	}
	v := loV + (h-float64(lo))*(hiV-loV)
	return math.Min(hiV, math.Max(loV, v))
}

// valueAtRank returns the zero-based rank-th smallest value of the population.
func valueAtRank(bins []HistogramBin, rank int) float64 {
	seen := 0
	for _, b := range bins {
		seen += b.Count
		if rank < seen {
			return b.centre()
		}
	}
	return bins[len(bins)-1].centre()
}

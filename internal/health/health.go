// Package health classifies field health from vegetation indices and NDVI
// statistics.
package health

import (
	"math"

	"github.com/rkm/fieldsat/internal/models"
)

// DefaultConfidence is used when no quality information is available.
const DefaultConfidence = 0.6

// Quality describes the observation a set of indices came from.
type Quality struct {
	CloudCoverage *float64 `json:"cloudCoverage,omitempty"`
	PixelCount    *int     `json:"pixelCount,omitempty"`
}

// Input is everything Assess can use. Only NDVI is required; auxiliary
// indices left nil do not contribute stress factors.
type Input struct {
	NDVI       float64                `json:"ndvi"`
	NDWI       *float64               `json:"ndwi,omitempty"`
	NDMI       *float64               `json:"ndmi,omitempty"`
	EVI        *float64               `json:"evi,omitempty"`
	Statistics *models.NDVIStatistics `json:"statistics,omitempty"`
	Quality    *Quality               `json:"quality,omitempty"`
}

// InputFromIndices builds an Input that uses every index in idx.
func InputFromIndices(idx models.VegetationIndices, stats *models.NDVIStatistics, q *Quality) Input {
	return Input{
		NDVI:       idx.NDVI,
		NDWI:       models.Float64(idx.NDWI),
		NDMI:       models.Float64(idx.NDMI),
		EVI:        models.Float64(idx.EVI),
		Statistics: stats,
		Quality:    q,
	}
}

// Assess produces a HealthAssessment. The NDVI basis is the statistics mean
// when statistics are present, otherwise the NDVI index.
func Assess(in Input) models.HealthAssessment {
	basis := in.basis()
	level := StressLevelFor(basis)
	confidence := Confidence(in.Quality)

	factors := make([]string, 0)
	advice := newAdviceList()
	for _, r := range factorRules {
		if r.triggered(in, basis) {
			factors = append(factors, r.factor)
			advice.add(r.advice)
		}
	}
	if level == models.StressHigh || level == models.StressSevere {
		advice.add(adviceStressed)
	}
	if confidence < LowConfidence {
		advice.add(adviceLowConfidence)
	}

	return models.HealthAssessment{
		Overall:         OverallFor(basis),
		StressLevel:     level,
		Confidence:      confidence,
		StressFactors:   factors,
		Recommendations: advice.items,
	}
}

func (in Input) basis() float64 {
	if in.Statistics != nil {
		return in.Statistics.Mean
	}
	return in.NDVI
}

// StressLevelFor buckets an NDVI value into a stress level.
func StressLevelFor(ndvi float64) models.StressLevel {
	switch {
	case ndvi >= 0.6:
		return models.StressNone
	case ndvi >= 0.45:
		return models.StressLow
	case ndvi >= 0.3:
		return models.StressModerate
	case ndvi >= 0.1:
		return models.StressHigh
	default:
		return models.StressSevere
	}
}

// OverallFor buckets an NDVI value into an overall health category.
func OverallFor(ndvi float64) models.OverallHealth {
	switch {
	case ndvi >= 0.7:
		return models.HealthExcellent
	case ndvi >= 0.5:
		return models.HealthGood
	case ndvi >= 0.3:
		return models.HealthFair
	case ndvi >= 0.1:
		return models.HealthPoor
	default:
		return models.HealthCritical
	}
}

// Confidence scores observation quality in [0,1]. Without any quality
// information it returns DefaultConfidence.
func Confidence(q *Quality) float64 {
	if q == nil || (q.CloudCoverage == nil && q.PixelCount == nil) {
		return DefaultConfidence
	}

	c := maxConfidence
	if q.CloudCoverage != nil {
		cloud := math.Min(100, math.Max(0, *q.CloudCoverage))
		c -= cloud / 100 * cloudPenalty
	}
	if q.PixelCount != nil {
		switch {
		case *q.PixelCount < 100:
			c -= 0.2
		case *q.PixelCount < 1000:
			c -= 0.1
		}
	}
	return math.Min(maxConfidence, math.Max(minConfidence, c))
}

const (
	maxConfidence = 0.95
	minConfidence = 0.1
	cloudPenalty  = 0.6
)

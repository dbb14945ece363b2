// Package trend analyses a field's NDVI history for stress patterns.
package trend

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/rkm/fieldsat/internal/models"
)

// MinObservations is the shortest history Analyze accepts.
const MinObservations = 3

// ErrInsufficientHistory is returned when fewer than MinObservations
// observations are supplied.
var ErrInsufficientHistory = errors.New("insufficient observation history")

// Direction of the NDVI trend.
type Direction string

const (
	Improving Direction = "improving"
	Declining Direction = "declining"
	Stable    Direction = "stable"
)

// Significance of the NDVI trend slope.
type Significance string

const (
	SignificanceHigh     Significance = "high"
	SignificanceModerate Significance = "moderate"
	SignificanceLow      Significance = "low"
)

// Summary holds distribution statistics over the history.
type Summary struct {
	Mean                   float64 `json:"mean"`
	Std                    float64 `json:"std"`
	Min                    float64 `json:"min"`
	Max                    float64 `json:"max"`
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
}

// Trend is the least-squares slope of NDVI per observation.
type Trend struct {
	Direction    Direction    `json:"direction"`
	Slope        float64      `json:"slope"`
	Significance Significance `json:"significance"`
}

// Anomaly is an observation more than two standard deviations from the mean.
type Anomaly struct {
	Date      time.Time `json:"date"`
	NDVI      float64   `json:"ndvi"`
	Deviation float64   `json:"deviation"`
	Type      string    `json:"type"`
}

// Analysis is the result of Analyze.
type Analysis struct {
	FieldID         string             `json:"fieldId"`
	StressLevel     models.StressLevel `json:"stressLevel"`
	Confidence      float64            `json:"confidence"`
	Statistics      Summary            `json:"statistics"`
	Trend           Trend              `json:"trend"`
	Anomalies       []Anomaly          `json:"anomalies"`
	Recommendations []string           `json:"recommendations"`
	Observations    int                `json:"observations"`
	From            time.Time          `json:"from"`
	To              time.Time          `json:"to"`
}

// Analyze computes stress statistics, trend and anomalies over the given
// observations. Input order does not matter; observations are evaluated in
// capture order.
func Analyze(observations []models.SatelliteObservation) (*Analysis, error) {
	if len(observations) < MinObservations {
		return nil, fmt.Errorf("%w: need %d observations, got %d", ErrInsufficientHistory, MinObservations, len(observations))
	}

	ordered := make([]models.SatelliteObservation, len(observations))
	copy(ordered, observations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CaptureDate.Before(ordered[j].CaptureDate)
	})

	values := make(stats.Float64Data, len(ordered))
	series := make(stats.Series, len(ordered))
	for i, o := range ordered {
		values[i] = o.NDVI
		series[i] = stats.Coordinate{X: float64(i), Y: o.NDVI}
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return nil, fmt.Errorf("mean: %w", err)
	}
	std, err := stats.StandardDeviationPopulation(values)
	if err != nil {
		return nil, fmt.Errorf("standard deviation: %w", err)
	}
	minV, _ := stats.Min(values)
	maxV, _ := stats.Max(values)

	slope, err := slopeOf(series)
	if err != nil {
		return nil, err
	}

	cv := 0.0
	if mean > 0 {
		cv = std / mean
	}

	anomalies := make([]Anomaly, 0)
	threshold := 2 * std
	for _, o := range ordered {
		dev := math.Abs(o.NDVI - mean)
		if dev > threshold {
			kind := "high"
			if o.NDVI < mean {
				kind = "low"
			}
			anomalies = append(anomalies, Anomaly{Date: o.CaptureDate, NDVI: o.NDVI, Deviation: dev, Type: kind})
		}
	}

	level := stressLevel(mean)
	direction := directionOf(slope)

	return &Analysis{
		FieldID:     ordered[0].FieldID,
		StressLevel: level,
		Confidence:  math.Max(0, math.Min(0.95, 0.7+(1-cv)*0.25)),
		Statistics: Summary{
			Mean:                   mean,
			Std:                    std,
			Min:                    minV,
			Max:                    maxV,
			CoefficientOfVariation: cv,
		},
		Trend: Trend{
			Direction:    direction,
			Slope:        slope,
			Significance: significanceOf(slope),
		},
		Anomalies:       anomalies,
		Recommendations: recommendations(level, direction, len(anomalies)),
		Observations:    len(ordered),
		From:            ordered[0].CaptureDate,
		To:              ordered[len(ordered)-1].CaptureDate,
	}, nil
}

// slopeOf fits a least-squares line and returns its slope.
func slopeOf(series stats.Series) (float64, error) {
	fitted, err := stats.LinearRegression(series)
	if err != nil {
		return 0, fmt.Errorf("linear regression: %w", err)
	}
	first, last := fitted[0], fitted[len(fitted)-1]
	if last.X == first.X {
		return 0, nil
	}
	return (last.Y - first.Y) / (last.X - first.X), nil
}

func stressLevel(mean float64) models.StressLevel {
	switch {
	case mean > 0.7:
		return models.StressLow
	case mean > 0.5:
		return models.StressModerate
	case mean > 0.3:
		return models.StressHigh
	default:
		return models.StressSevere
	}
}

func directionOf(slope float64) Direction {
	switch {
	case slope > 0.01:
		return Improving
	case slope < -0.01:
		return Declining
	default:
		return Stable
	}
}

func significanceOf(slope float64) Significance {
	switch abs := math.Abs(slope); {
	case abs > 0.02:
		return SignificanceHigh
	case abs > 0.005:
		return SignificanceModerate
	default:
		return SignificanceLow
	}
}

func recommendations(level models.StressLevel, direction Direction, anomalies int) []string {
	recs := make([]string, 0)

	switch level {
	case models.StressSevere:
		recs = append(recs,
			"Immediate irrigation required to prevent crop damage",
			"Consider emergency nutrient application",
			"Investigate potential pest or disease issues",
		)
	case models.StressHigh:
		recs = append(recs,
			"Increase irrigation frequency",
			"Monitor for pest and disease pressure",
			"Consider stress-reducing treatments",
		)
	case models.StressModerate:
		recs = append(recs,
			"Optimize irrigation timing",
			"Monitor crop development closely",
		)
	}

	switch direction {
	case Declining:
		recs = append(recs,
			"Investigate causes of declining vegetation health",
			"Consider soil testing for nutrient deficiencies",
		)
	case Improving:
		recs = append(recs, "Continue current management practices")
	}

	if anomalies > 2 {
		recs = append(recs,
			"High variability detected - investigate field uniformity",
			"Consider precision management approaches",
		)
	}

	return recs
}

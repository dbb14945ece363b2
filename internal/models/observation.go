package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source identifies the provider an observation came from.
type Source string

const (
	SourcePlanet      Source = "planet"
	SourceCopernicus  Source = "copernicus"
	SourceSentinelHub Source = "sentinel_hub"
	SourceEarthEngine Source = "earth_engine"
)

// Sources lists every known provider.
var Sources = []Source{SourcePlanet, SourceCopernicus, SourceSentinelHub, SourceEarthEngine}

// ParseSource converts a configuration string into a Source.
func ParseSource(s string) (Source, error) {
	for _, src := range Sources {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// StressLevel buckets vegetation stress.
type StressLevel string

const (
	StressNone     StressLevel = "NONE"
	StressLow      StressLevel = "LOW"
	StressModerate StressLevel = "MODERATE"
	StressHigh     StressLevel = "HIGH"
	StressSevere   StressLevel = "SEVERE"
)

// OverallHealth is the coarse health category of a field.
type OverallHealth string

const (
	HealthExcellent OverallHealth = "excellent"
	HealthGood      OverallHealth = "good"
	HealthFair      OverallHealth = "fair"
	HealthPoor      OverallHealth = "poor"
	HealthCritical  OverallHealth = "critical"
)

// SatelliteObservation is one NDVI reading for a field. Observations are
// immutable once created; a newer observation supersedes an older one.
type SatelliteObservation struct {
	ID            string      `json:"id"`
	FieldID       string      `json:"fieldId"`
	CaptureDate   time.Time   `json:"captureDate"`
	NDVI          float64     `json:"ndvi"`
	NDVIChange    *float64    `json:"ndviChange"`
	StressLevel   StressLevel `json:"stressLevel"`
	ImageURL      *string     `json:"imageUrl"`
	Source        Source      `json:"source"`
	CloudCoverage *float64    `json:"cloudCoverage,omitempty"`
	Resolution    *float64    `json:"resolution,omitempty"`
	Confidence    *float64    `json:"confidence,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// NewObservation returns an observation with a fresh ID.
func NewObservation(fieldID string, source Source, captureDate time.Time, ndvi float64, createdAt time.Time) SatelliteObservation {
	return SatelliteObservation{
		ID:          uuid.NewString(),
		FieldID:     fieldID,
		CaptureDate: captureDate.UTC(),
		NDVI:        ndvi,
		Source:      source,
		CreatedAt:   createdAt.UTC(),
	}
}

// Age returns how old the observation is relative to now.
func (o SatelliteObservation) Age(now time.Time) time.Duration {
	return now.Sub(o.CaptureDate)
}

// HealthAssessment is derived from indices and statistics and never stored.
type HealthAssessment struct {
	Overall         OverallHealth `json:"overall"`
	StressLevel     StressLevel   `json:"stressLevel"`
	Confidence      float64       `json:"confidence"`
	StressFactors   []string      `json:"stressFactors"`
	Recommendations []string      `json:"recommendations"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package provider defines the contract shared by satellite data source
// adapters and the helpers they have in common.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/rkm/fieldsat/internal/health"
	"github.com/rkm/fieldsat/internal/models"
)

// Provider produces the most recent observation a data source has for a field.
//
// Implementations return an error wrapping models.ErrNotAvailable whenever no
// observation can be produced, joined with the specific cause.
type Provider interface {
	Source() models.Source
	FetchLatestObservation(ctx context.Context, fieldID string, bounds models.FieldBounds) (*Result, error)
}

// Result is a successful adapter fetch.
type Result struct {
	Observation models.SatelliteObservation
	Indices     *models.VegetationIndices
	Statistics  *models.NDVIStatistics
	Quality     *health.Quality
	// SWIR reports whether Indices.NDMI was computed from SWIR bands.
	SWIR bool
	// Raw is the provider payload the observation was derived from.
	Raw []byte
}

// HealthInput builds the health assessment input for the result. Indices the
// provider could not compute are left out.
func (r *Result) HealthInput() health.Input {
	if r.Indices == nil {
		return health.Input{
			NDVI:       r.Observation.NDVI,
			Statistics: r.Statistics,
			Quality:    r.Quality,
		}
	}

	in := health.InputFromIndices(*r.Indices, r.Statistics, r.Quality)
	if !r.SWIR {
		in.NDMI = nil
	}
	return in
}

// NotAvailable wraps cause so that it matches both models.ErrNotAvailable and
// the cause itself.
func NotAvailable(cause error) error {
	if cause == nil {
		return models.ErrNotAvailable
	}
	if errors.Is(cause, models.ErrNotAvailable) {
		return cause
	}
	return fmt.Errorf("%w: %w", models.ErrNotAvailable, cause)
}

// LogFailure logs an adapter failure at a level matching its cause:
// missing configuration is a warning, an empty catalogue is informational
// and anything else is an error. Adapters return failures unlogged so each
// one is logged once, by the caller.
func LogFailure(ctx context.Context, logger *slog.Logger, source models.Source, err error) {
	attrs := []any{
		slog.String("source", string(source)),
		slog.String("error", err.Error()),
	}

	switch {
	case errors.Is(err, models.ErrConfigurationMissing):
		logger.WarnContext(ctx, "provider not configured", attrs...)
	case errors.Is(err, models.ErrNoScenes):
		logger.InfoContext(ctx, "no scenes available", attrs...)
	case errors.Is(err, models.ErrMalformedResponse):
		logger.WarnContext(ctx, "malformed provider response", attrs...)
	default:
		logger.ErrorContext(ctx, "provider request failed", attrs...)
	}
}

// SearchWindow is the acquisition time range searched around a target date.
type SearchWindow struct {
	Start time.Time
	End   time.Time
}

// NewSearchWindow returns the window of days either side of target.
func NewSearchWindow(target time.Time, days int) SearchWindow {
	span := time.Duration(days) * 24 * time.Hour
	target = target.UTC()
	return SearchWindow{
		Start: target.Add(-span),
		End:   target.Add(span),
	}
}

// SearchOptions are the catalogue search parameters shared by all adapters.
type SearchOptions struct {
	WindowDays    int
	MaxCloudCover float64
	Limit         int
}

// metersPerDegree approximates the length of one degree of latitude.
const metersPerDegree = 111320.0

// MaxRasterSize caps each side of a statistics raster in pixels.
const MaxRasterSize = 2500

// RasterSize returns the pixel width and height that cover bounds at the
// given ground resolution in meters, capped at MaxRasterSize per side.
func RasterSize(bounds models.FieldBounds, resolution float64) (width, height int) {
	if resolution <= 0 {
		resolution = 10
	}

	midLat := (bounds.North + bounds.South) / 2 * math.Pi / 180
	widthMeters := (bounds.East - bounds.West) * metersPerDegree * math.Cos(midLat)
	heightMeters := (bounds.North - bounds.South) * metersPerDegree

	return rasterSide(widthMeters / resolution), rasterSide(heightMeters / resolution)
}

func rasterSide(px float64) int {
	n := int(math.Ceil(px))
	if n < 1 {
		return 1
	}
	if n > MaxRasterSize {
		return MaxRasterSize
	}
	return n
}

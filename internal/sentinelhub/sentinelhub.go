// Package sentinelhub adapts Sentinel Hub to the provider interface.
package sentinelhub

import (
	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/sentinel2"
	"github.com/rkm/fieldsat/internal/statistics"
)

// noDataPenalty is subtracted from confidence in proportion to the share of
// masked samples.
const noDataPenalty = 0.2

// Adapter fetches Sentinel-2 L2A observations from Sentinel Hub.
type Adapter struct {
	*sentinel2.Pipeline
}

// New creates a Sentinel Hub adapter.
func New(cfg config.SentinelHubConfig, profile config.ProviderProfile, search provider.SearchOptions, auth config.AuthConfig) *Adapter {
	p := sentinel2.NewPipeline(models.SourceSentinelHub, sentinel2.Endpoints{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		TokenURL:          cfg.TokenURL,
		CatalogURL:        cfg.CatalogURL,
		StatisticsURL:     cfg.StatisticsURL,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, profile, search, auth)

	return &Adapter{Pipeline: p.WithConfidence(Confidence)}
}

// Confidence lowers confidence by the masked share of the field.
func Confidence(confidence float64, r *statistics.Result) float64 {
	if r.SampleCount <= 0 {
		return confidence
	}
	ratio := float64(r.NoDataCount) / float64(r.SampleCount)
	return confidence - ratio*noDataPenalty
}

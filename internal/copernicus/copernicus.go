// Package copernicus adapts the Copernicus Data Space Ecosystem to the
// provider interface. Scenes are found through the CDSE STAC catalogue and
// aggregated with the CDSE deployment of the Statistical API.
package copernicus

import (
	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/sentinel2"
)

// Adapter fetches Sentinel-2 L2A observations from CDSE.
type Adapter struct {
	*sentinel2.Pipeline
}

// New creates a Copernicus adapter.
func New(cfg config.CopernicusConfig, profile config.ProviderProfile, search provider.SearchOptions, auth config.AuthConfig) *Adapter {
	return &Adapter{
		Pipeline: sentinel2.NewPipeline(models.SourceCopernicus, sentinel2.Endpoints{
			ClientID:          cfg.ClientID,
			ClientSecret:      cfg.ClientSecret,
			TokenURL:          cfg.TokenURL,
			CatalogURL:        cfg.CatalogURL,
			StatisticsURL:     cfg.StatisticsURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, profile, search, auth),
	}
}

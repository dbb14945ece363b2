// Package sentinel2 implements the observation pipeline shared by providers
// that serve Sentinel-2 L2A through a STAC catalogue and the Statistical API.
package sentinel2

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rkm/fieldsat/internal/catalog"
	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/oauth"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/statistics"
)

// Endpoints holds the credentials and URLs of one provider deployment.
type Endpoints struct {
	ClientID          string
	ClientSecret      string
	TokenURL          string
	CatalogURL        string
	StatisticsURL     string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Pipeline finds the least cloudy recent scene for a field and aggregates
// its bands over the field bounds.
type Pipeline struct {
	source    models.Source
	profile   config.ProviderProfile
	search    provider.SearchOptions
	catalog   *catalog.Client
	stats     *statistics.Client
	configErr error
	adjust    func(confidence float64, r *statistics.Result) float64
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewPipeline creates a pipeline. Missing credentials do not fail
// construction; every fetch then reports models.ErrConfigurationMissing.
func NewPipeline(source models.Source, ep Endpoints, profile config.ProviderProfile, search provider.SearchOptions, auth config.AuthConfig) *Pipeline {
	p := &Pipeline{
		source:  source,
		profile: profile,
		search:  search,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}

	httpClient := provider.NewHTTPClient(ep.Timeout, ep.RequestsPerSecond)

	tokens, err := oauth.ClientCredentials(oauth.Credentials{
		ClientID:     ep.ClientID,
		ClientSecret: ep.ClientSecret,
		TokenURL:     ep.TokenURL,
	}, oauth.Options{
		ExpiryMargin: auth.ExpiryMargin,
		MaxAttempts:  auth.MaxAttempts,
		RetryDelay:   auth.RetryDelay,
		HTTPClient:   httpClient,
	})
	if err != nil {
		p.configErr = err
		return p
	}

	authorized := oauth.Client(httpClient, tokens)
	p.catalog = catalog.NewClient(ep.CatalogURL, authorized)
	p.stats = statistics.NewClient(ep.StatisticsURL, authorized)
	return p
}

// WithLogger sets a custom logger for the pipeline and its clients.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	if p.catalog != nil {
		p.catalog.WithLogger(p.logger)
		p.stats.WithLogger(p.logger)
	}
	return p
}

// WithClock sets the clock that decides the search window.
func (p *Pipeline) WithClock(clock clockwork.Clock) *Pipeline {
	p.clock = clock
	return p
}

// WithConfidence sets a provider-specific confidence adjustment.
func (p *Pipeline) WithConfidence(adjust func(confidence float64, r *statistics.Result) float64) *Pipeline {
	p.adjust = adjust
	return p
}

// Source implements provider.Provider.
func (p *Pipeline) Source() models.Source {
	return p.source
}

// FetchLatestObservation implements provider.Provider.
func (p *Pipeline) FetchLatestObservation(ctx context.Context, fieldID string, bounds models.FieldBounds) (*provider.Result, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	if p.configErr != nil {
		return nil, provider.NotAvailable(p.configErr)
	}

	now := p.clock.Now()
	window := provider.NewSearchWindow(now, p.search.WindowDays)

	scene, err := p.catalog.FindBestScene(ctx, p.profile.Collection, bounds, window, p.search)
	if err != nil {
		return nil, provider.NotAvailable(err)
	}

	stats, err := p.stats.Fetch(ctx, statistics.Query{
		Bounds:        bounds,
		DataType:      p.profile.Collection,
		Day:           scene.Acquired,
		Bands:         p.profile.Bands,
		Resolution:    p.profile.Resolution,
		MaxCloudCover: p.search.MaxCloudCover,
	})
	if err != nil {
		return nil, provider.NotAvailable(err)
	}

	var adjust func(float64) float64
	if p.adjust != nil {
		adjust = func(c float64) float64 { return p.adjust(c, stats) }
	}

	result := statistics.Assemble(statistics.Observed{
		FieldID:    fieldID,
		Source:     p.source,
		Scene:      statistics.Scene{ID: scene.ID, Acquired: scene.Acquired, CloudCover: scene.CloudCover},
		Resolution: p.profile.Resolution,
		Stats:      stats,
		Adjust:     adjust,
		CreatedAt:  now,
	})

	p.logger.InfoContext(ctx, "observation fetched",
		slog.String("source", string(p.source)),
		slog.String("field_id", fieldID),
		slog.String("scene_id", scene.ID),
		slog.Float64("ndvi", result.Observation.NDVI),
		slog.Float64("cloud_cover", scene.CloudCover),
	)

	return result, nil
}

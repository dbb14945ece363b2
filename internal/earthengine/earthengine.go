// Package earthengine adapts Google Earth Engine to the provider interface.
// Band means are reduced server-side, so no pixel population is available
// and observations carry no NDVI statistics.
package earthengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/oauth2"

	"github.com/rkm/fieldsat/internal/catalog"
	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/health"
	"github.com/rkm/fieldsat/internal/indices"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/oauth"
	"github.com/rkm/fieldsat/internal/provider"
)

// Scope grants access to the Earth Engine API.
const Scope = "https://www.googleapis.com/auth/earthengine"

// Adapter fetches Sentinel-2 observations from Earth Engine.
type Adapter struct {
	client    *Client
	profile   config.ProviderProfile
	opts      provider.SearchOptions
	configErr error
	clock     clockwork.Clock
	logger    *slog.Logger
}

// New creates an Earth Engine adapter authenticated with the service
// account key in cfg.CredentialsFile.
func New(cfg config.EarthEngineConfig, profile config.ProviderProfile, opts provider.SearchOptions) *Adapter {
	if cfg.CredentialsFile == "" {
		return notConfigured(profile, opts, fmt.Errorf("%w: earth engine credentials file is required", models.ErrConfigurationMissing))
	}

	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return notConfigured(profile, opts, fmt.Errorf("%w: failed to read earth engine credentials: %w", models.ErrConfigurationMissing, err))
	}

	httpClient := provider.NewHTTPClient(cfg.Timeout, cfg.RequestsPerSecond)
	tokens, err := oauth.ServiceAccount(key, httpClient, Scope)
	if err != nil {
		return notConfigured(profile, opts, fmt.Errorf("%w: %w", models.ErrConfigurationMissing, err))
	}

	return NewWithTokenSource(cfg, profile, opts, tokens)
}

// NewWithTokenSource creates an adapter that authorizes requests with tokens.
func NewWithTokenSource(cfg config.EarthEngineConfig, profile config.ProviderProfile, opts provider.SearchOptions, tokens oauth2.TokenSource) *Adapter {
	if cfg.Project == "" {
		return notConfigured(profile, opts, fmt.Errorf("%w: earth engine project is required", models.ErrConfigurationMissing))
	}

	httpClient := provider.NewHTTPClient(cfg.Timeout, cfg.RequestsPerSecond)
	a := notConfigured(profile, opts, nil)
	a.client = NewClient(cfg.BaseURL, cfg.Project, oauth.Client(httpClient, tokens))
	return a
}

func notConfigured(profile config.ProviderProfile, opts provider.SearchOptions, err error) *Adapter {
	return &Adapter{
		profile:   profile,
		opts:      opts,
		configErr: err,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger for the adapter and its client.
func (a *Adapter) WithLogger(logger *slog.Logger) *Adapter {
	a.logger = logger
	if a.client != nil {
		a.client.WithLogger(logger)
	}
	return a
}

// WithClock sets the clock that decides the search window.
func (a *Adapter) WithClock(clock clockwork.Clock) *Adapter {
	a.clock = clock
	return a
}

// Source implements provider.Provider.
func (a *Adapter) Source() models.Source {
	return models.SourceEarthEngine
}

// FetchLatestObservation implements provider.Provider.
func (a *Adapter) FetchLatestObservation(ctx context.Context, fieldID string, bounds models.FieldBounds) (*provider.Result, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	fail := func(err error) (*provider.Result, error) {
		return nil, provider.NotAvailable(err)
	}

	if a.configErr != nil {
		return fail(a.configErr)
	}

	now := a.clock.Now()
	window := provider.NewSearchWindow(now, a.opts.WindowDays)
	region := geojson.NewGeometry(bounds.Polygon())

	list, err := a.client.ListImages(ctx, a.profile.Collection, region, window.Start, window.End, a.opts.MaxCloudCover, a.opts.Limit)
	if err != nil {
		return fail(err)
	}

	scene, err := a.selectScene(ctx, list.Images)
	if err != nil {
		return fail(err)
	}

	names := a.profile.Bands.Names()
	computed, err := a.client.Compute(ctx, meanExpression(scene.ID, names, region, a.profile.Resolution))
	if err != nil {
		return fail(err)
	}

	bands, err := a.reflectance(computed, names)
	if err != nil {
		return fail(err)
	}

	swir := a.profile.Bands.HasSWIR()
	idx := indices.Calculate(bands)
	if !swir {
		idx.NDMI = 0
	}

	q := &health.Quality{CloudCoverage: models.Float64(scene.CloudCover)}

	obs := models.NewObservation(fieldID, models.SourceEarthEngine, scene.Acquired, idx.NDVI, now)
	obs.StressLevel = health.StressLevelFor(idx.NDVI)
	obs.CloudCoverage = models.Float64(scene.CloudCover)
	obs.Resolution = models.Float64(a.profile.Resolution)
	obs.Confidence = models.Float64(health.Confidence(q))

	a.logger.InfoContext(ctx, "observation fetched",
		slog.String("source", string(models.SourceEarthEngine)),
		slog.String("field_id", fieldID),
		slog.String("image_id", scene.ID),
		slog.Float64("ndvi", obs.NDVI),
	)

	return &provider.Result{
		Observation: obs,
		Indices:     &idx,
		Quality:     q,
		SWIR:        swir,
	}, nil
}

func (a *Adapter) selectScene(ctx context.Context, images []Image) (catalog.Scene, error) {
	scenes := make([]catalog.Scene, 0, len(images))
	for _, img := range images {
		cloud, ok := img.Properties[cloudProperty].(float64)
		if img.ID == "" || img.StartTime.IsZero() || !ok || cloud < 0 || cloud > 100 {
			a.logger.WarnContext(ctx, "skipping malformed Earth Engine image",
				slog.String("name", img.Name),
			)
			continue
		}
		if cloud > a.opts.MaxCloudCover {
			continue
		}
		scenes = append(scenes, catalog.Scene{
			ID:         img.ID,
			Collection: a.profile.Collection,
			Acquired:   img.StartTime.UTC(),
			CloudCover: cloud,
		})
	}

	best, ok := catalog.SelectLowestCloud(scenes)
	if !ok {
		return catalog.Scene{}, fmt.Errorf("%w: no %s images", models.ErrNoScenes, a.profile.Collection)
	}
	return best, nil
}

// reflectance converts reduced digital numbers into reflectance bands.
func (a *Adapter) reflectance(resp *ComputeResponse, names []string) (models.SpectralBands, error) {
	values := make([]float64, len(names))
	for i, name := range names {
		v, ok := resp.Result[name]
		if !ok {
			return models.SpectralBands{}, fmt.Errorf("%w: band %s missing from result", models.ErrMalformedResponse, name)
		}
		// null means the region had no unmasked pixels
		if v == nil {
			return models.SpectralBands{}, fmt.Errorf("%w: no valid pixels", models.ErrNoScenes)
		}
		values[i] = *v / a.profile.Bands.Scale
	}

	bands := models.SpectralBands{Blue: values[0], Green: values[1], Red: values[2], NIR: values[3]}
	if len(values) == 6 {
		bands.SWIR1 = values[4]
		bands.SWIR2 = values[5]
	}
	return bands, nil
}

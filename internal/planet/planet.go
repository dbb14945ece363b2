// Package planet adapts PlanetScope imagery to the provider interface.
//
// Scenes are found with the Planet Data API. Pixel aggregates come from the
// Statistical API reading a PlanetScope bring-your-own-collection, so the
// adapter needs both a Planet API key and Sentinel Hub OAuth credentials.
package planet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/rkm/fieldsat/internal/catalog"
	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/oauth"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/statistics"
)

// hazePenalty scales the share of non-clear pixels
// subtracted from confidence.
const hazePenalty = 0.1

// Adapter fetches PlanetScope observations.
type Adapter struct {
	search    *Client
	stats     *statistics.Client
	profile   config.ProviderProfile
	dataType  string
	opts      provider.SearchOptions
	configErr error
	clock     clockwork.Clock
	logger    *slog.Logger
}

// New creates a Planet adapter. Missing configuration does not fail
// construction; every fetch then reports models.ErrConfigurationMissing.
func New(cfg config.PlanetConfig, profile config.ProviderProfile, opts provider.SearchOptions, auth config.AuthConfig) *Adapter {
	a := &Adapter{
		profile:  profile,
		dataType: "byoc-" + cfg.CollectionID,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}

	switch {
	case cfg.APIKey == "":
		a.configErr = fmt.Errorf("%w: planet API key is required", models.ErrConfigurationMissing)
		return a
	case cfg.CollectionID == "":
		a.configErr = fmt.Errorf("%w: planet statistics collection id is required", models.ErrConfigurationMissing)
		return a
	}

	httpClient := provider.NewHTTPClient(cfg.Timeout, cfg.RequestsPerSecond)

	tokens, err := oauth.ClientCredentials(oauth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}, oauth.Options{
		ExpiryMargin: auth.ExpiryMargin,
		MaxAttempts:  auth.MaxAttempts,
		RetryDelay:   auth.RetryDelay,
		HTTPClient:   httpClient,
	})
	if err != nil {
		a.configErr = err
		return a
	}

	a.search = NewClient(cfg.DataURL, cfg.APIKey, httpClient)
	a.stats = statistics.NewClient(cfg.StatisticsURL, oauth.Client(httpClient, tokens))
	return a
}

// WithLogger sets a custom logger for the adapter and its clients.
func (a *Adapter) WithLogger(logger *slog.Logger) *Adapter {
	a.logger = logger
	if a.search != nil {
		a.search.WithLogger(logger)
		a.stats.WithLogger(logger)
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
	return models.SourcePlanet
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

	resp, err := a.search.QuickSearch(ctx, NewSearchRequest(bounds, window, a.opts.MaxCloudCover), a.opts.Limit)
	if err != nil {
		return fail(err)
	}

	scene, clearPercent, err := a.selectScene(ctx, resp.Features)
	if err != nil {
		return fail(err)
	}

	stats, err := a.stats.Fetch(ctx, statistics.Query{
		Bounds:        bounds,
		DataType:      a.dataType,
		Day:           scene.Acquired,
		Bands:         a.profile.Bands,
		Resolution:    a.profile.Resolution,
		MaxCloudCover: a.opts.MaxCloudCover,
	})
	if err != nil {
		return fail(err)
	}

	var adjust func(float64) float64
	if clearPercent != nil {
		adjust = func(c float64) float64 {
			return Confidence(c, *clearPercent)
		}
	}

	result := statistics.Assemble(statistics.Observed{
		FieldID:    fieldID,
		Source:     models.SourcePlanet,
		Scene:      statistics.Scene{ID: scene.ID, Acquired: scene.Acquired, CloudCover: scene.CloudCover},
		Resolution: a.profile.Resolution,
		Stats:      stats,
		Adjust:     adjust,
		CreatedAt:  now,
	})

	a.logger.InfoContext(ctx, "observation fetched",
		slog.String("source", string(models.SourcePlanet)),
		slog.String("field_id", fieldID),
		slog.String("scene_id", scene.ID),
		slog.Float64("ndvi", result.Observation.NDVI),
	)

	return result, nil
}

// selectScene picks the least cloudy well-formed feature and returns its
// clear percentage when known.
func (a *Adapter) selectScene(ctx context.Context, features []*Feature) (catalog.Scene, *int, error) {
	scenes := make([]catalog.Scene, 0, len(features))
	clearPercent := make(map[string]*int, len(features))

	for _, f := range features {
		scene, err := sceneFromFeature(f)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping malformed Planet feature",
				slog.String("error", err.Error()),
			)
			continue
		}
		if scene.CloudCover > a.opts.MaxCloudCover {
			continue
		}
		scenes = append(scenes, scene)
		clearPercent[scene.ID] = f.Properties.ClearPercent
	}

	best, ok := catalog.SelectLowestCloud(scenes)
	if !ok {
		return catalog.Scene{}, nil, fmt.Errorf("%w: no %s scenes", models.ErrNoScenes, ItemType)
	}
	return best, clearPercent[best.ID], nil
}

func sceneFromFeature(f *Feature) (catalog.Scene, error) {
	if f == nil || f.ID == "" || f.Properties == nil {
		return catalog.Scene{}, fmt.Errorf("%w: feature without id or properties", models.ErrMalformedResponse)
	}
	p := f.Properties
	if p.Acquired.IsZero() {
		return catalog.Scene{}, fmt.Errorf("%w: feature %s has no acquisition time", models.ErrMalformedResponse, f.ID)
	}
	if p.CloudCover == nil || *p.CloudCover < 0 || *p.CloudCover > 1 {
		return catalog.Scene{}, fmt.Errorf("%w: feature %s has invalid cloud cover", models.ErrMalformedResponse, f.ID)
	}
	return catalog.Scene{
		ID:         f.ID,
		Collection: ItemType,
		Acquired:   p.Acquired.UTC(),
		CloudCover: *p.CloudCover * 100,
	}, nil
}

// Confidence lowers confidence by the share of pixels that are not clear.
func Confidence(confidence float64, clearPercent int) float64 {
	if clearPercent < 0 {
		clearPercent = 0
	}
	if clearPercent > 100 {
		clearPercent = 100
	}
	return confidence - float64(100-clearPercent)/100*hazePenalty
}

// Package server assembles the field analysis service so it can be run on its
// own or embedded in another application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/rkm/fieldsat/internal/api"
	"github.com/rkm/fieldsat/internal/archive"
	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/copernicus"
	"github.com/rkm/fieldsat/internal/earthengine"
	"github.com/rkm/fieldsat/internal/events"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/observability"
	"github.com/rkm/fieldsat/internal/orchestrator"
	"github.com/rkm/fieldsat/internal/planet"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/sentinelhub"
	"github.com/rkm/fieldsat/internal/store"
)

// Options overrides parts of the service built from configuration.
type Options struct {
	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics receives orchestrator metrics.
	// Default: observability.NewMetrics(), registered with the default registry
	Metrics *observability.Metrics

	// Store replaces the store selected by cfg.Store.
	Store store.ObservationStore

	// Providers replaces the adapters built from cfg.
	Providers []provider.Provider

	// Clock drives staleness checks and provider search windows.
	// Default: the real clock
	Clock clockwork.Clock
}

// Server is the assembled service.
type Server struct {
	router       chi.Router
	orchestrator *orchestrator.Orchestrator
	store        store.ObservationStore
	publisher    events.Publisher
	logger       *slog.Logger
}

// New builds the service described by cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	logger := opts.Logger

	providers := opts.Providers
	if providers == nil {
		profiles, err := loadProfiles(cfg.Profiles, logger)
		if err != nil {
			return nil, err
		}
		providers, err = Providers(cfg, profiles, opts.Clock, logger)
		if err != nil {
			return nil, err
		}
	}

	s := opts.Store
	if s == nil {
		var err error
		s, err = store.Open(ctx, cfg.Store, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open observation store: %w", err)
		}
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Events, logger)
		logger.Info("publishing observation events", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	var archiver archive.Archiver = archive.Noop{}
	if cfg.Archive.Enabled {
		a, err := archive.NewMinioArchive(cfg.Archive, logger)
		if err != nil {
			publisher.Close()
			s.Close()
			return nil, fmt.Errorf("failed to create archive: %w", err)
		}
		archiver = a
		logger.Info("archiving provider responses", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	orch := orchestrator.New(s, providers, cfg.Orchestrator).
		WithLogger(logger).
		WithMetrics(opts.Metrics).
		WithClock(opts.Clock).
		WithPublisher(publisher).
		WithArchiver(archiver)
	logger.Info("provider priority", "sources", orch.Sources())

	handlers := api.NewHandlers(orch, s, logger)
	router := api.NewRouter(handlers, api.RouterOptions{RateLimit: cfg.RateLimit}, logger)

	return &Server{
		router:       router,
		orchestrator: orch,
		store:        s,
		publisher:    publisher,
		logger:       logger,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Orchestrator returns the orchestrator behind the HTTP API.
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

// Close flushes the event publisher and closes the store.
func (s *Server) Close() error {
	return errors.Join(s.publisher.Close(), s.store.Close())
}

// Providers builds the adapters listed in cfg.Orchestrator.Priority, in that
// order. Adapters without credentials are still built; they report
// ErrConfigurationMissing on every fetch.
func Providers(cfg *config.Config, profiles *config.ProfileRegistry, clock clockwork.Clock, logger *slog.Logger) ([]provider.Provider, error) {
	sources, err := cfg.Orchestrator.Sources()
	if err != nil {
		return nil, err
	}

	search := provider.SearchOptions{
		WindowDays:    cfg.Search.WindowDays,
		MaxCloudCover: cfg.Search.MaxCloudCover,
		Limit:         cfg.Search.Limit,
	}

	providers := make([]provider.Provider, 0, len(sources))
	for _, src := range sources {
		profile := profiles.Get(src)
		if profile == nil {
			return nil, fmt.Errorf("no profile registered for source %q", src)
		}

		var p provider.Provider
		switch src {
		case models.SourcePlanet:
			p = planet.New(cfg.Planet, *profile, search, cfg.Auth).WithLogger(logger).WithClock(clock)
		case models.SourceCopernicus:
			p = copernicus.New(cfg.Copernicus, *profile, search, cfg.Auth).WithLogger(logger).WithClock(clock)
		case models.SourceSentinelHub:
			p = sentinelhub.New(cfg.SentinelHub, *profile, search, cfg.Auth).WithLogger(logger).WithClock(clock)
		case models.SourceEarthEngine:
			p = earthengine.New(cfg.EarthEngine, *profile, search).WithLogger(logger).WithClock(clock)
		default:
			return nil, fmt.Errorf("unsupported source %q", src)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func loadProfiles(cfg config.ProfilesConfig, logger *slog.Logger) (*config.ProfileRegistry, error) {
	if cfg.Dir == "" {
		return config.DefaultProfiles(), nil
	}
	profiles, err := config.LoadProfiles(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider profiles: %w", err)
	}
	logger.Info("loaded provider profiles", "dir", cfg.Dir, "count", profiles.Count())
	return profiles, nil
}

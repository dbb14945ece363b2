// Package orchestrator produces the observation for a field by consulting the
// observation cache and falling back through data source adapters in
// priority order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rkm/fieldsat/internal/archive"
	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/events"
	"github.com/rkm/fieldsat/internal/health"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/observability"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/store"
)

// Status describes where the returned observation came from.
type Status string

const (
	StatusFreshCache Status = "fresh_cache"
	StatusFetched    Status = "fetched"
	StatusStaleCache Status = "stale_cache"
	StatusNoData     Status = "no_data"
)

// Default settings used when the configuration leaves them unset.
const (
	DefaultStaleAfter     = 7 * 24 * time.Hour
	DefaultAdapterTimeout = 30 * time.Second
)

// Attempt records one adapter call.
type Attempt struct {
	Source   models.Source `json:"source"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"durationNs"`

	// Err is the adapter error, nil on success.
	Err error `json:"-"`
}

// Outcome is the result of a field analysis. A NoData outcome has no
// observation and no assessment.
type Outcome struct {
	Status      Status                       `json:"status"`
	Observation *models.SatelliteObservation `json:"observation"`
	Assessment  *models.HealthAssessment     `json:"assessment"`
	Attempts    []Attempt                    `json:"attempts"`
}

// Orchestrator runs the cache-then-adapters fallback for a field. It holds no
// per-field state; everything it knows about a field lives in the store.
type Orchestrator struct {
	store          store.ObservationStore
	providers      []provider.Provider
	staleAfter     time.Duration
	adapterTimeout time.Duration

	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	publisher events.Publisher
	archiver  archive.Archiver
}

// New creates an orchestrator that tries providers in the given order.
func New(s store.ObservationStore, providers []provider.Provider, cfg config.OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		store:          s,
		providers:      providers,
		staleAfter:     cfg.StaleAfter,
		adapterTimeout: cfg.AdapterTimeout,
		logger:         slog.Default(),
		clock:          clockwork.NewRealClock(),
		publisher:      events.Noop{},
		archiver:       archive.Noop{},
	}
	if o.staleAfter <= 0 {
		o.staleAfter = DefaultStaleAfter
	}
	if o.adapterTimeout <= 0 {
		o.adapterTimeout = DefaultAdapterTimeout
	}
	return o
}

// WithLogger sets a custom logger for the orchestrator.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// WithMetrics sets the metrics the orchestrator records to.
func (o *Orchestrator) WithMetrics(m *observability.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithClock sets the clock used for staleness checks.
func (o *Orchestrator) WithClock(clock clockwork.Clock) *Orchestrator {
	o.clock = clock
	return o
}

// WithPublisher sets the publisher notified of newly cached observations.
func (o *Orchestrator) WithPublisher(p events.Publisher) *Orchestrator {
	o.publisher = p
	return o
}

// WithArchiver sets where raw provider payloads are archived.
func (o *Orchestrator) WithArchiver(a archive.Archiver) *Orchestrator {
	o.archiver = a
	return o
}

// Sources returns the adapter sources in the order they are tried.
func (o *Orchestrator) Sources() []models.Source {
	sources := make([]models.Source, len(o.providers))
	for i, p := range o.providers {
		sources[i] = p.Source()
	}
	return sources
}

// Analyze returns the best available observation for a field.
//
// A cached observation younger than the staleness threshold is returned
// without calling any adapter. Otherwise adapters are tried one at a time and
// the first success is cached and returned. A success whose scene is no newer
// than the cached observation returns the cached row instead. When every
// adapter fails, the latest cached observation is returned regardless of age.
// If there is none the outcome has status no_data and a nil error.
//
// Only invalid bounds or an empty field id produce an error.
func (o *Orchestrator) Analyze(ctx context.Context, fieldID string, bounds models.FieldBounds) (*Outcome, error) {
	if fieldID == "" {
		return nil, fmt.Errorf("%w: field id is required", models.ErrInvalidInput)
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger.With(slog.String("field_id", fieldID))

	latest, err := o.store.Latest(ctx, fieldID)
	if err != nil {
		latest = nil
		if !errors.Is(err, store.ErrNotFound) {
			logger.ErrorContext(ctx, "failed to read observation cache",
				slog.String("error", err.Error()),
			)
		}
	}

	if latest != nil && latest.Age(o.clock.Now()) < o.staleAfter {
		o.recordCacheLookup(observability.CacheFresh)
		logger.DebugContext(ctx, "serving fresh cached observation",
			slog.String("source", string(latest.Source)),
			slog.Time("capture_date", latest.CaptureDate),
		)
		return o.finish(fromCache(StatusFreshCache, latest, nil)), nil
	}

	attempts := make([]Attempt, 0, len(o.providers))
	for _, p := range o.providers {
		result, attempt := o.try(ctx, p, fieldID, bounds)
		attempts = append(attempts, attempt)
		if result == nil {
			provider.LogFailure(ctx, logger, p.Source(), attempt.Err)
			continue
		}

		obs := result.Observation
		obs.FieldID = fieldID

		if latest != nil && !obs.CaptureDate.After(latest.CaptureDate) {
			return o.finish(o.unchanged(ctx, logger, latest, result, attempts)), nil
		}

		// previous is read before the append so the new observation is never
		// compared against itself.
		if latest != nil {
			change := obs.NDVI - latest.NDVI
			obs.NDVIChange = &change
		}
		o.persist(ctx, logger, obs, result.Raw)

		assessment := health.Assess(result.HealthInput())
		logger.InfoContext(ctx, "fetched observation",
			slog.String("source", string(obs.Source)),
			slog.Time("capture_date", obs.CaptureDate),
			slog.Float64("ndvi", obs.NDVI),
			slog.Int("attempts", len(attempts)),
		)
		return o.finish(&Outcome{
			Status:      StatusFetched,
			Observation: &obs,
			Assessment:  &assessment,
			Attempts:    attempts,
		}), nil
	}

	if latest != nil {
		o.recordCacheLookup(observability.CacheStale)
		logger.WarnContext(ctx, "all providers unavailable, serving stale observation",
			slog.String("source", string(latest.Source)),
			slog.Time("capture_date", latest.CaptureDate),
		)
		return o.finish(fromCache(StatusStaleCache, latest, attempts)), nil
	}

	o.recordCacheLookup(observability.CacheMiss)
	logger.InfoContext(ctx, "no observation available",
		slog.Int("attempts", len(attempts)),
	)
	return o.finish(&Outcome{Status: StatusNoData, Attempts: attempts}), nil
}

// unchanged answers a fetch that found no acquisition newer than the cached
// observation. The cached row is returned and nothing is appended, so the
// history holds each scene once.
func (o *Orchestrator) unchanged(ctx context.Context, logger *slog.Logger, latest *models.SatelliteObservation, result *provider.Result, attempts []Attempt) *Outcome {
	logger.InfoContext(ctx, "no acquisition newer than cached observation",
		slog.String("source", string(result.Observation.Source)),
		slog.Time("capture_date", result.Observation.CaptureDate),
		slog.Time("cached_capture_date", latest.CaptureDate),
	)

	cached := *latest
	if result.Observation.Source != latest.Source || !result.Observation.CaptureDate.Equal(latest.CaptureDate) {
		return fromCache(StatusFetched, &cached, attempts)
	}

	assessment := health.Assess(result.HealthInput())
	return &Outcome{
		Status:      StatusFetched,
		Observation: &cached,
		Assessment:  &assessment,
		Attempts:    attempts,
	}
}

// try calls one adapter with its own timeout. A nil result means the adapter
// did not produce an observation.
func (o *Orchestrator) try(ctx context.Context, p provider.Provider, fieldID string, bounds models.FieldBounds) (*provider.Result, Attempt) {
	source := p.Source()
	attemptCtx, cancel := context.WithTimeout(ctx, o.adapterTimeout)
	defer cancel()

	start := o.clock.Now()
	result, err := p.FetchLatestObservation(attemptCtx, fieldID, bounds)
	elapsed := o.clock.Since(start)

	attempt := Attempt{Source: source, Duration: elapsed}
	switch {
	case err == nil && result == nil:
		err = provider.NotAvailable(fmt.Errorf("%s returned no result", source))
		fallthrough
	case err != nil:
		attempt.Err = err
		attempt.Error = err.Error()
		attempt.Outcome = observability.OutcomeError
		if errors.Is(err, models.ErrNotAvailable) {
			attempt.Outcome = observability.OutcomeUnavailable
		}
		result = nil
	default:
		attempt.Outcome = observability.OutcomeSuccess
	}

	if o.metrics != nil {
		o.metrics.AdapterAttempts.WithLabelValues(string(source), attempt.Outcome).Inc()
		o.metrics.AdapterDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
	}
	return result, attempt
}

// persist writes a fetched observation through to the cache and its side
// channels. Failures are logged and never returned.
func (o *Orchestrator) persist(ctx context.Context, logger *slog.Logger, obs models.SatelliteObservation, raw []byte) {
	if err := o.store.Append(ctx, obs); err != nil {
		if o.metrics != nil {
			o.metrics.CacheWriteFailures.Inc()
		}
		logger.ErrorContext(ctx, "failed to cache observation",
			slog.String("observation_id", obs.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := o.publisher.PublishObservation(ctx, obs); err != nil {
		logger.ErrorContext(ctx, "failed to publish observation",
			slog.String("observation_id", obs.ID),
			slog.String("error", err.Error()),
		)
	}

	if len(raw) == 0 {
		return
	}
	if err := o.archiver.Archive(ctx, obs, raw); err != nil {
		logger.ErrorContext(ctx, "failed to archive provider response",
			slog.String("observation_id", obs.ID),
			slog.String("key", archive.Key(obs)),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) recordCacheLookup(result string) {
	if o.metrics != nil {
		o.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (o *Orchestrator) finish(out *Outcome) *Outcome {
	if o.metrics != nil {
		o.metrics.Analyses.WithLabelValues(string(out.Status)).Inc()
	}
	return out
}

// fromCache builds an outcome for a cached observation. Only NDVI and cloud
// coverage survive in the cache, so the assessment is derived from those.
func fromCache(status Status, obs *models.SatelliteObservation, attempts []Attempt) *Outcome {
	in := health.Input{NDVI: obs.NDVI}
	if obs.CloudCoverage != nil {
		in.Quality = &health.Quality{CloudCoverage: obs.CloudCoverage}
	}
	assessment := health.Assess(in)
	if attempts == nil {
		attempts = []Attempt{}
	}
	return &Outcome{
		Status:      status,
		Observation: obs,
		Assessment:  &assessment,
		Attempts:    attempts,
	}
}

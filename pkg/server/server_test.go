package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/health"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/observability"
	"github.com/rkm/fieldsat/internal/provider"
	"github.com/rkm/fieldsat/internal/store"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type stubProvider struct {
	source models.Source
	ndvi   float64
	err    error
}

func (p stubProvider) Source() models.Source { return p.source }

func (p stubProvider) FetchLatestObservation(_ context.Context, fieldID string, _ models.FieldBounds) (*provider.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	obs := models.NewObservation(fieldID, p.source, testNow.Add(-48*time.Hour), p.ndvi, testNow)
	obs.StressLevel = health.StressLevelFor(p.ndvi)
	return &provider.Result{Observation: obs}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func testOptions(providers ...provider.Provider) Options {
	return Options{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   observability.NewMetricsForTesting(),
		Store:     store.NewMemoryStore(),
		Providers: providers,
		Clock:     clockwork.NewFakeClockAt(testNow),
	}
}

func TestNew(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t), testOptions(
		stubProvider{source: models.SourcePlanet, err: provider.NotAvailable(models.ErrConfigurationMissing)},
		stubProvider{source: models.SourceCopernicus, ndvi: 0.52},
	))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	assert.Equal(t, []models.Source{models.SourcePlanet, models.SourceCopernicus}, srv.Orchestrator().Sources())

	req := httptest.NewRequest("GET", "/fields/field-9/observation?north=10.1&south=10&east=20.1&west=20", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"source":"copernicus"`)

	// The fetched observation is now cached.
	req = httptest.NewRequest("GET", "/fields/field-9/observations", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestNewWithoutProvidersConfigured(t *testing.T) {
	opts := testOptions()
	opts.Providers = nil

	srv, err := New(context.Background(), testConfig(t), opts)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	// Every default adapter is built but none has credentials.
	assert.Equal(t, []models.Source{
		models.SourcePlanet,
		models.SourceSentinelHub,
		models.SourceCopernicus,
		models.SourceEarthEngine,
	}, srv.Orchestrator().Sources())

	req := httptest.NewRequest("GET", "/fields/field-1/observation?north=10.1&south=10&east=20.1&west=20", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NoData"`)
}

func TestProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Orchestrator.Priority = []string{"earth_engine", "planet"}

	providers, err := Providers(cfg, config.DefaultProfiles(), clockwork.NewFakeClockAt(testNow), slog.Default())
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, models.SourceEarthEngine, providers[0].Source())
	assert.Equal(t, models.SourcePlanet, providers[1].Source())

	t.Run("unknown source", func(t *testing.T) {
		cfg.Orchestrator.Priority = []string{"landsat"}
		_, err := Providers(cfg, config.DefaultProfiles(), clockwork.NewRealClock(), slog.Default())
		assert.Error(t, err)
	})

	t.Run("missing profile", func(t *testing.T) {
		cfg.Orchestrator.Priority = []string{"planet"}
		_, err := Providers(cfg, config.NewProfileRegistry(), clockwork.NewRealClock(), slog.Default())
		assert.ErrorContains(t, err, "no profile registered")
	})
}

func TestNewInvalidProfilesDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Profiles.Dir = t.TempDir() + "/missing"

	opts := testOptions()
	opts.Providers = nil
	_, err := New(context.Background(), cfg, opts)
	assert.ErrorContains(t, err, "failed to load provider profiles")
}

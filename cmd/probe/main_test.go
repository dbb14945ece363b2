package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
)

type stubProvider struct {
	source models.Source
	err    error
}

func (p stubProvider) Source() models.Source { return p.source }

func (p stubProvider) FetchLatestObservation(_ context.Context, fieldID string, _ models.FieldBounds) (*provider.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	obs := models.NewObservation(fieldID, p.source, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 0.612, time.Now())
	obs.CloudCoverage = models.Float64(4.5)
	obs.Confidence = models.Float64(0.91)
	return &provider.Result{Observation: obs}, nil
}

func TestProbe(t *testing.T) {
	providers := []provider.Provider{
		stubProvider{source: models.SourcePlanet, err: provider.NotAvailable(models.ErrConfigurationMissing)},
		stubProvider{source: models.SourceSentinelHub, err: provider.NotAvailable(models.ErrNoScenes)},
		stubProvider{source: models.SourceCopernicus},
		stubProvider{source: models.SourceEarthEngine, err: errors.New("dial tcp: i/o timeout")},
	}
	bounds := models.FieldBounds{North: 1.01, South: 1, East: 2.01, West: 2}

	rows := probe(context.Background(), providers, "f1", bounds, time.Second)
	require.Len(t, rows, 4)

	var buf bytes.Buffer
	require.NoError(t, printRows(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "SOURCE")
	assert.Contains(t, lines[1], "not configured")
	assert.Contains(t, lines[2], "no scenes")
	assert.Contains(t, lines[3], "0.612")
	assert.Contains(t, lines[3], "4.5%")
	assert.Contains(t, lines[3], "2026-06-01")
	assert.Contains(t, lines[3], "good")
	assert.Contains(t, lines[4], "i/o timeout")
}

func TestRunRejectsInvalidBounds(t *testing.T) {
	err := run([]string{"-north", "1", "-south", "2", "-east", "3", "-west", "2"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

package statistics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
)

var (
	s2Bands     = config.BandMapping{Blue: "B02", Green: "B03", Red: "B04", NIR: "B08", SWIR1: "B11", SWIR2: "B12", Scale: 1}
	planetBands = config.BandMapping{Blue: "blue", Green: "green", Red: "red", NIR: "nir", Scale: 10000}
	testBounds  = models.FieldBounds{North: 48.11, South: 48.1, East: 11.61, West: 11.6}
)

// statisticsResponse renders a response with the given band means and a
// two-bin NDVI histogram.
func statisticsResponse(means []string, samples, noData int) string {
	var bands []string
	for i, m := range means {
		bands = append(bands, fmt.Sprintf(`"B%d":{"stats":{"min":0,"max":1,"mean":%s,"stDev":0.01,"sampleCount":%d,"noDataCount":%d}}`, i, m, samples, noData))
	}
	return fmt.Sprintf(`{"data":[{"interval":{"from":"2024-06-10T00:00:00Z","to":"2024-06-11T00:00:00Z"},"outputs":{
		"bands":{"bands":{%s}},
		"ndvi":{"bands":{"B0":{"stats":{"min":0.5,"max":0.8,"mean":0.65,"stDev":0.05,"sampleCount":%d,"noDataCount":%d},
			"histogram":{"bins":[{"lowEdge":0.5,"highEdge":0.6,"count":40},{"lowEdge":0.7,"highEdge":0.8,"count":60}]}}}}
	}}],"status":"OK"}`, strings.Join(bands, ","), samples, noData)
}

func TestEvalscript(t *testing.T) {
	script, err := Evalscript(s2Bands)
	require.NoError(t, err)

	assert.Contains(t, script, `bands: ["B02", "B03", "B04", "B08", "B11", "B12", "dataMask"]`)
	assert.Contains(t, script, `{ id: "bands", bands: 6, sampleType: "FLOAT32" }`)
	assert.Contains(t, script, "(s.B08 - s.B04) / (s.B08 + s.B04)")
	assert.Contains(t, script, "bands: [s.B02, s.B03, s.B04, s.B08, s.B11, s.B12]")

	script, err = Evalscript(planetBands)
	require.NoError(t, err)
	assert.Contains(t, script, "bands: 4,")
	assert.Contains(t, script, "s.red / 10000")

	_, err = Evalscript(config.BandMapping{})
	assert.Error(t, err)
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(Query{
		Bounds:        testBounds,
		DataType:      "sentinel-2-l2a",
		Day:           time.Date(2024, 6, 10, 10, 32, 0, 0, time.UTC),
		Bands:         s2Bands,
		Resolution:    10,
		MaxCloudCover: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{11.6, 48.1, 11.61, 48.11}, req.Input.Bounds.BBox)
	assert.Equal(t, crsWGS84, req.Input.Bounds.Properties.CRS)
	assert.Equal(t, "leastCC", req.Input.Data[0].DataFilter.MosaickingOrder)
	assert.Equal(t, 30.0, req.Input.Data[0].DataFilter.MaxCloudCoverage)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), req.Aggregation.TimeRange.From)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), req.Aggregation.TimeRange.To)
	assert.Equal(t, "P1D", req.Aggregation.AggregationInterval.Of)
	assert.Greater(t, req.Aggregation.Width, 0)
	assert.Greater(t, req.Aggregation.Height, 0)

	hist := req.Calculations["ndvi"].Histograms["default"]
	assert.Equal(t, HistogramSpec{NBins: 40, LowEdge: -1, HighEdge: 1}, hist)
}

func TestParse(t *testing.T) {
	raw := statisticsResponse([]string{"0.04", "0.07", "0.05", "0.35", "0.2", "0.12"}, 1200, 200)

	r, err := Parse([]byte(raw), s2Bands)
	require.NoError(t, err)

	assert.Equal(t, models.SpectralBands{Blue: 0.04, Green: 0.07, Red: 0.05, NIR: 0.35, SWIR1: 0.2, SWIR2: 0.12}, r.Bands)
	assert.True(t, r.SWIR)
	assert.Equal(t, 1000, r.ValidPixels())
	assert.Len(t, r.Histogram, 2)
	assert.Equal(t, raw, string(r.Raw))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "not json", raw: "<html>", want: models.ErrMalformedResponse},
		{name: "empty data", raw: `{"data":[],"status":"OK"}`, want: models.ErrNoScenes},
		{name: "interval error", raw: `{"data":[{"error":{"type":"EXECUTION_ERROR"}}]}`, want: models.ErrNoScenes},
		{name: "missing output", raw: `{"data":[{"outputs":{}}]}`, want: models.ErrMalformedResponse},
		{name: "missing band", raw: statisticsResponse([]string{"0.1", "0.1"}, 10, 0), want: models.ErrMalformedResponse},
		{name: "nan mean", raw: statisticsResponse([]string{`"NaN"`, "0.1", "0.1", "0.1"}, 10, 10), want: models.ErrNoScenes},
		{name: "all no data", raw: statisticsResponse([]string{"0.1", "0.1", "0.1", "0.1"}, 10, 10), want: models.ErrNoScenes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw), planetBands)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if req.Input.Data[0].Type != "byoc-123" {
			t.Errorf("expected byoc data type, got %s", req.Input.Data[0].Type)
		}
		_, _ = io.WriteString(w, statisticsResponse([]string{"0.04", "0.07", "0.05", "0.35"}, 500, 0))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	r, err := client.Fetch(context.Background(), Query{
		Bounds:     testBounds,
		DataType:   "byoc-123",
		Day:        time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Bands:      planetBands,
		Resolution: 3,
	})
	require.NoError(t, err)
	assert.False(t, r.SWIR)
	assert.Equal(t, 0.35, r.Bands.NIR)
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).Fetch(context.Background(), Query{Bounds: testBounds, Bands: s2Bands, Resolution: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestAssemble(t *testing.T) {
	r, err := Parse([]byte(statisticsResponse([]string{"0.04", "0.07", "0.05", "0.35", "0.2", "0.12"}, 1200, 200)), s2Bands)
	require.NoError(t, err)

	acquired := time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC)
	created := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	res := Assemble(Observed{
		FieldID:    "field-1",
		Source:     models.SourceSentinelHub,
		Scene:      Scene{ID: "S2", Acquired: acquired, CloudCover: 10},
		Resolution: 10,
		Stats:      r,
		Adjust:     func(c float64) float64 { return c - 0.05 },
		CreatedAt:  created,
	})

	obs := res.Observation
	assert.Equal(t, "field-1", obs.FieldID)
	assert.Equal(t, models.SourceSentinelHub, obs.Source)
	assert.Equal(t, acquired, obs.CaptureDate)
	assert.Equal(t, created, obs.CreatedAt)
	assert.NotEmpty(t, obs.ID)

	// histogram centres 0.55 x 40 and 0.75 x 60
	require.NotNil(t, res.Statistics)
	assert.InDelta(t, 0.67, obs.NDVI, 1e-9)
	assert.InDelta(t, res.Statistics.Mean, obs.NDVI, 1e-12)
	assert.Equal(t, models.StressNone, obs.StressLevel)

	require.NotNil(t, obs.Confidence)
	// 0.95 - 0.06 cloud penalty - 0.05 adjustment
	assert.InDelta(t, 0.84, *obs.Confidence, 1e-9)
	assert.Equal(t, 10.0, *obs.Resolution)
	assert.Equal(t, 10.0, *obs.CloudCoverage)

	require.NotNil(t, res.Indices)
	assert.InDelta(t, (0.35-0.05)/(0.35+0.05), res.Indices.NDVI, 1e-9)
	assert.True(t, res.SWIR)
}

func TestAssembleWithoutSWIRDropsNDMI(t *testing.T) {
	r, err := Parse([]byte(statisticsResponse([]string{"0.04", "0.07", "0.05", "0.35"}, 100, 0)), planetBands)
	require.NoError(t, err)
	r.Histogram = nil

	res := Assemble(Observed{FieldID: "f", Source: models.SourcePlanet, Stats: r, Resolution: 3})

	assert.Nil(t, res.Statistics)
	assert.Equal(t, 0.0, res.Indices.NDMI)
	assert.Equal(t, res.Indices.NDVI, res.Observation.NDVI)
	assert.Nil(t, res.HealthInput().NDMI)
}

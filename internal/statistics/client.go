// Package statistics talks to the Sentinel Hub Statistical API, which
// aggregates band values over an area without downloading imagery.
package statistics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/fieldstats"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
)

// Query describes one day of statistics over a field.
type Query struct {
	Bounds models.FieldBounds
	// DataType is the collection type, e.g. sentinel-2-l2a or byoc-<id>.
	DataType      string
	Day           time.Time
	Bands         config.BandMapping
	Resolution    float64
	MaxCloudCover float64
}

// Result holds the field-level aggregates of a single day.
type Result struct {
	Bands       models.SpectralBands
	SWIR        bool
	Histogram   []fieldstats.HistogramBin
	SampleCount int
	NoDataCount int
	Raw         []byte
}

// ValidPixels returns the number of samples that carried data.
func (r *Result) ValidPixels() int {
	n := r.SampleCount - r.NoDataCount
	if n < 0 {
		return 0
	}
	return n
}

// Client handles communication with the Statistical API.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Statistical API client. httpClient must authorize
// requests, see oauth.Client.
func NewClient(url string, httpClient *http.Client) *Client {
	return &Client{
		url:        url,
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// NewRequest builds the request body for q. The time range covers the whole
// UTC day of q.Day.
func NewRequest(q Query) (*Request, error) {
	script, err := Evalscript(q.Bands)
	if err != nil {
		return nil, err
	}

	from := time.Date(q.Day.Year(), q.Day.Month(), q.Day.Day(), 0, 0, 0, 0, time.UTC)
	width, height := provider.RasterSize(q.Bounds, q.Resolution)

	return &Request{
		Input: Input{
			Bounds: Bounds{
				BBox:       q.Bounds.BBox(),
				Properties: BoundsProperties{CRS: crsWGS84},
			},
			Data: []DataInput{{
				Type: q.DataType,
				DataFilter: DataFilter{
					MosaickingOrder:  "leastCC",
					MaxCloudCoverage: q.MaxCloudCover,
				},
			}},
		},
		Aggregation: Aggregation{
			TimeRange:           TimeRange{From: from, To: from.Add(24 * time.Hour)},
			AggregationInterval: Interval{Of: "P1D"},
			Width:               width,
			Height:              height,
			Evalscript:          script,
		},
		Calculations: map[string]Calculation{
			"ndvi": {
				Histograms: map[string]HistogramSpec{
					"default": {NBins: HistogramBins, LowEdge: histogramLow, HighEdge: histogramHigh},
				},
			},
		},
	}, nil
}

// Fetch requests statistics for q. A day without valid pixels yields
// models.ErrNoScenes.
func (c *Client) Fetch(ctx context.Context, q Query) (*Result, error) {
	req, err := NewRequest(q)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode statistics request: %w", err)
	}

	c.logger.DebugContext(ctx, "requesting statistics",
		slog.String("data_type", q.DataType),
		slog.Time("day", req.Aggregation.TimeRange.From),
		slog.Int("width", req.Aggregation.Width),
		slog.Int("height", req.Aggregation.Height),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("statistics API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read statistics response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "statistics API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(raw)),
		)
		return nil, fmt.Errorf("statistics API returned status %d: %s", resp.StatusCode, string(raw))
	}

	result, err := Parse(raw, q.Bands)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "statistics received",
		slog.Int("valid_pixels", result.ValidPixels()),
		slog.Float64("red", result.Bands.Red),
		slog.Float64("nir", result.Bands.NIR),
	)

	return result, nil
}

// Parse decodes a Statistical API response produced by the evalscript for
// bands.
func Parse(raw []byte, bands config.BandMapping) (*Result, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode statistics response: %w", models.ErrMalformedResponse, err)
	}

	var interval *IntervalData
	for i := range resp.Data {
		if resp.Data[i].Error == nil {
			interval = &resp.Data[i]
			break
		}
	}
	if interval == nil {
		return nil, fmt.Errorf("%w: no statistics for the requested day", models.ErrNoScenes)
	}

	out, ok := interval.Outputs["bands"]
	if !ok {
		return nil, fmt.Errorf("%w: missing bands output", models.ErrMalformedResponse)
	}

	n := len(bands.Names())
	means := make([]float64, n)
	var first Stats
	for i := 0; i < n; i++ {
		b, ok := out.Bands[fmt.Sprintf("B%d", i)]
		if !ok {
			return nil, fmt.Errorf("%w: missing band B%d", models.ErrMalformedResponse, i)
		}
		if i == 0 {
			first = b.Stats
		}
		if !b.Stats.Mean.Finite() {
			return nil, fmt.Errorf("%w: no valid pixels", models.ErrNoScenes)
		}
		means[i] = float64(b.Stats.Mean)
	}

	result := &Result{
		Bands: models.SpectralBands{
			Blue:  means[0],
			Green: means[1],
			Red:   means[2],
			NIR:   means[3],
		},
		SWIR:        bands.HasSWIR(),
		SampleCount: first.SampleCount,
		NoDataCount: first.NoDataCount,
		Raw:         raw,
	}
	if result.SWIR {
		result.Bands.SWIR1 = means[4]
		result.Bands.SWIR2 = means[5]
	}

	if result.ValidPixels() == 0 {
		return nil, fmt.Errorf("%w: no valid pixels", models.ErrNoScenes)
	}

	if ndvi, ok := interval.Outputs["ndvi"]; ok {
		if b, ok := ndvi.Bands["B0"]; ok && b.Histogram != nil {
			result.Histogram = b.Histogram.Bins
		}
	}

	return result, nil
}

package planet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
)

// Client handles communication with the Planet Data API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Data API client authenticated with apiKey.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// NewSearchRequest builds a quick-search filter for scenes over bounds
// acquired within window with at most maxCloud percent cloud cover.
func NewSearchRequest(bounds models.FieldBounds, window provider.SearchWindow, maxCloud float64) *Request {
	return &Request{
		ItemTypes: []string{ItemType},
		Filter: &AndFilter{
			Type: "AndFilter",
			Config: []interface{}{
				&GeoFilter{
					Type:      "GeometryFilter",
					FieldName: "geometry",
					Config:    geojson.NewGeometry(bounds.Polygon()),
				},
				&DateRangeFilter{
					Type:      "DateRangeFilter",
					FieldName: "acquired",
					Config:    &DateRange{Start: window.Start, End: window.End},
				},
				&RangeFilter{
					Type:      "RangeFilter",
					FieldName: "cloud_cover",
					Config:    &Range{LTE: maxCloud / 100},
				},
			},
		},
	}
}

// QuickSearch runs a quick search sorted by acquisition date, newest first.
func (c *Client) QuickSearch(ctx context.Context, req *Request, limit int) (*Response, error) {
	query := url.Values{}
	query.Set("_sort", "acquired desc")
	if limit > 0 {
		query.Set("_page_size", strconv.Itoa(limit))
	}
	searchURL := c.baseURL + "/quick-search?" + query.Encode()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	c.logger.DebugContext(ctx, "executing Planet quick search",
		slog.String("url", searchURL),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.apiKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Planet API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "Planet API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)),
		)
		return nil, fmt.Errorf("Planet API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode Planet response: %w", models.ErrMalformedResponse, err)
	}

	c.logger.DebugContext(ctx, "Planet search completed",
		slog.Int("feature_count", len(result.Features)),
	)

	return &result, nil
}

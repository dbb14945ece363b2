package earthengine

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
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/rkm/fieldsat/internal/models"
)

// publicProject owns the public data catalogue assets.
const publicProject = "earthengine-public"

// Client handles communication with the Earth Engine REST API.
type Client struct {
	baseURL    string
	project    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a REST client billing requests to project. httpClient
// must authorize requests.
func NewClient(baseURL, project string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		project:    project,
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// ListImages lists images of collection intersecting region between start
// and end with cloud cover at most maxCloud percent.
func (c *Client) ListImages(ctx context.Context, collection string, region *geojson.Geometry, start, end time.Time, maxCloud float64, pageSize int) (*ListImagesResponse, error) {
	regionJSON, err := json.Marshal(region)
	if err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}

	query := url.Values{}
	query.Set("startTime", start.UTC().Format(time.RFC3339))
	query.Set("endTime", end.UTC().Format(time.RFC3339))
	query.Set("region", string(regionJSON))
	query.Set("filter", fmt.Sprintf("%s <= %g", cloudProperty, maxCloud))
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}

	listURL := fmt.Sprintf("%s/v1/projects/%s/assets/%s:listImages?%s", c.baseURL, publicProject, collection, query.Encode())

	var result ListImagesResponse
	if err := c.do(ctx, http.MethodGet, listURL, nil, &result); err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "Earth Engine listImages completed",
		slog.Int("image_count", len(result.Images)),
	)
	return &result, nil
}

// Compute evaluates expr.
func (c *Client) Compute(ctx context.Context, expr Expression) (*ComputeResponse, error) {
	body, err := json.Marshal(ComputeRequest{Expression: expr})
	if err != nil {
		return nil, fmt.Errorf("failed to encode compute request: %w", err)
	}

	computeURL := fmt.Sprintf("%s/v1/projects/%s/value:compute", c.baseURL, c.project)

	var result ComputeResponse
	if err := c.do(ctx, http.MethodPost, computeURL, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-User-Project", c.project)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Earth Engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "Earth Engine returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)),
		)
		return fmt.Errorf("Earth Engine returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode Earth Engine response: %w", models.ErrMalformedResponse, err)
	}
	return nil
}

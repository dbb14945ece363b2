// Package catalog searches STAC API catalogues for Sentinel-2 scenes.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/provider"
)

// Client handles communication with a STAC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new STAC API client. httpClient carries any
// authorization the catalogue requires.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Search posts req to the catalogue search endpoint.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*ItemCollection, error) {
	searchURL := c.baseURL + "/search"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	c.logger.DebugContext(ctx, "executing STAC search",
		slog.String("url", searchURL),
		slog.String("datetime", req.DateTime),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("STAC API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "STAC API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)),
		)
		return nil, fmt.Errorf("STAC API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode STAC response: %w", models.ErrMalformedResponse, err)
	}

	c.logger.DebugContext(ctx, "STAC search completed",
		slog.Int("feature_count", len(result.Features)),
	)

	return &result, nil
}

// FindBestScene searches collection for scenes over bounds inside window and
// returns the least cloudy one. Malformed items are logged and skipped.
// It returns models.ErrNoScenes when nothing qualifies.
func (c *Client) FindBestScene(ctx context.Context, collection string, bounds models.FieldBounds, window provider.SearchWindow, opts provider.SearchOptions) (*Scene, error) {
	req := &SearchRequest{
		BBox:        bounds.BBox(),
		DateTime:    FormatInterval(window.Start, window.End),
		Collections: []string{collection},
		Limit:       opts.Limit,
		Sortby:      []SortbyItem{{Field: "properties.datetime", Direction: "desc"}},
		Filter:      CloudCoverFilter(opts.MaxCloudCover),
		FilterLang:  "cql2-json",
	}

	result, err := c.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	scenes := make([]Scene, 0, len(result.Features))
	for _, item := range result.Features {
		scene, err := SceneFromItem(item)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping malformed catalogue item",
				slog.String("error", err.Error()),
			)
			continue
		}
		// catalogues that ignore the filter still must not win with cloudy scenes
		if scene.CloudCover > opts.MaxCloudCover {
			continue
		}
		scenes = append(scenes, scene)
	}

	best, ok := SelectLowestCloud(scenes)
	if !ok {
		return nil, fmt.Errorf("%w: %s between %s", models.ErrNoScenes, collection, req.DateTime)
	}

	c.logger.DebugContext(ctx, "selected scene",
		slog.String("scene_id", best.ID),
		slog.Float64("cloud_cover", best.CloudCover),
		slog.Time("acquired", best.Acquired),
	)

	return &best, nil
}

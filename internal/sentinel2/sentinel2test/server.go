// Package sentinel2test provides a fake Sentinel-2 provider deployment for
// adapter tests: an OAuth token endpoint, a STAC catalogue and a Statistical
// API backed by canned responses.
package sentinel2test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// Item is a catalogue entry served by the fake catalogue.
type Item struct {
	ID         string
	Datetime   string
	CloudCover float64
}

// Server is a running fake deployment.
type Server struct {
	*httptest.Server

	// Items are returned by every catalogue search.
	Items []Item
	// Statistics is the Statistical API response body.
	Statistics string
	// StatisticsStatus overrides the Statistical API status code when set.
	StatisticsStatus int

	TokenRequests      atomic.Int32
	SearchRequests     atomic.Int32
	StatisticsRequests atomic.Int32
}

// NewServer starts a fake deployment that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		s.TokenRequests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"test-token","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/stac/search", func(w http.ResponseWriter, r *http.Request) {
		s.SearchRequests.Add(1)
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		features := make([]map[string]any, 0, len(s.Items))
		for _, it := range s.Items {
			features = append(features, map[string]any{
				"type":         "Feature",
				"stac_version": "1.0.0",
				"id":           it.ID,
				"collection":   "sentinel-2-l2a",
				"geometry":     nil,
				"properties":   map[string]any{"datetime": it.Datetime, "eo:cloud_cover": it.CloudCover},
				"links":        []any{},
				"assets":       map[string]any{},
			})
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_ = json.NewEncoder(w).Encode(map[string]any{"type": "FeatureCollection", "features": features, "links": []any{}})
	})
	mux.HandleFunc("/statistics", func(w http.ResponseWriter, r *http.Request) {
		s.StatisticsRequests.Add(1)
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if s.StatisticsStatus != 0 {
			w.WriteHeader(s.StatisticsStatus)
		}
		_, _ = io.WriteString(w, s.Statistics)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer test-token"
}

// TokenURL returns the token endpoint.
func (s *Server) TokenURL() string { return s.URL + "/token" }

// CatalogURL returns the catalogue root.
func (s *Server) CatalogURL() string { return s.URL + "/stac" }

// StatisticsURL returns the Statistical API endpoint.
func (s *Server) StatisticsURL() string { return s.URL + "/statistics" }

// StatisticsResponse renders a Statistical API response with the given band
// means, sample counts and an NDVI histogram of two equally filled bins
// centred on ndviLow and ndviHigh.
func StatisticsResponse(means []float64, samples, noData int, ndviLow, ndviHigh float64) string {
	bands := make([]string, 0, len(means))
	for i, m := range means {
		bands = append(bands, fmt.Sprintf(`"B%d":{"stats":{"min":0,"max":1,"mean":%g,"stDev":0.01,"sampleCount":%d,"noDataCount":%d}}`,
			i, m, samples, noData))
	}
	valid := samples - noData
	return fmt.Sprintf(`{"data":[{"interval":{"from":"2024-06-10T00:00:00Z","to":"2024-06-11T00:00:00Z"},"outputs":{`+
		`"bands":{"bands":{%s}},`+
		`"ndvi":{"bands":{"B0":{"stats":{"min":0,"max":1,"mean":0.5,"stDev":0.1,"sampleCount":%d,"noDataCount":%d},`+
		`"histogram":{"bins":[{"lowEdge":%g,"highEdge":%g,"count":%d},{"lowEdge":%g,"highEdge":%g,"count":%d}]}}}}}}],"status":"OK"}`,
		strings.Join(bands, ","), samples, noData,
		ndviLow-0.025, ndviLow+0.025, valid/2, ndviHigh-0.025, ndviHigh+0.025, valid-valid/2)
}

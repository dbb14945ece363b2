package catalog

import (
	"fmt"
	"time"

	gostac "github.com/planetlabs/go-stac"
	"github.com/planetlabs/go-ogc/filter"

	"github.com/rkm/fieldsat/internal/models"
)

// CloudCoverProperty is the STAC eo extension cloud-cover property.
const CloudCoverProperty = "eo:cloud_cover"

// SortbyItem represents a single sort criterion
type SortbyItem struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // "asc" or "desc"
}

// SearchRequest is a STAC API item search body.
type SearchRequest struct {
	BBox        []float64      `json:"bbox,omitempty"`
	DateTime    string         `json:"datetime,omitempty"`
	Collections []string       `json:"collections,omitempty"`
	Limit       int            `json:"limit,omitempty"`
	Sortby      []SortbyItem   `json:"sortby,omitempty"`
	Filter      *filter.Filter `json:"filter,omitempty"`
	FilterLang  string         `json:"filter-lang,omitempty"`
}

// ItemCollection is a STAC search response page.
type ItemCollection struct {
	Type     string         `json:"type"`
	Features []*gostac.Item `json:"features"`
	Links    []*gostac.Link `json:"links"`
}

// Scene is a catalogue item reduced to the fields scene selection needs.
type Scene struct {
	ID         string
	Collection string
	Acquired   time.Time
	CloudCover float64
}

// CloudCoverFilter returns a CQL2 filter matching items with cloud cover at
// or below max percent.
func CloudCoverFilter(max float64) *filter.Filter {
	return &filter.Filter{
		Expression: &filter.Comparison{
			Name:  "<=",
			Left:  &filter.Property{Name: CloudCoverProperty},
			Right: &filter.Number{Value: max},
		},
	}
}

// FormatInterval formats a closed datetime interval as used by the STAC
// datetime parameter.
func FormatInterval(start, end time.Time) string {
	return start.UTC().Format(time.RFC3339) + "/" + end.UTC().Format(time.RFC3339)
}

// SceneFromItem extracts a Scene from a STAC item. Items without an
// acquisition datetime or cloud cover are malformed.
func SceneFromItem(item *gostac.Item) (Scene, error) {
	if item == nil || item.Id == "" {
		return Scene{}, fmt.Errorf("%w: item has no id", models.ErrMalformedResponse)
	}

	acquired, err := parseItemTime(item.Properties)
	if err != nil {
		return Scene{}, fmt.Errorf("%w: item %s: %w", models.ErrMalformedResponse, item.Id, err)
	}

	cloud, ok := toFloat(item.Properties[CloudCoverProperty])
	if !ok {
		return Scene{}, fmt.Errorf("%w: item %s has no %s", models.ErrMalformedResponse, item.Id, CloudCoverProperty)
	}
	if cloud < 0 || cloud > 100 {
		return Scene{}, fmt.Errorf("%w: item %s cloud cover %g out of range", models.ErrMalformedResponse, item.Id, cloud)
	}

	return Scene{
		ID:         item.Id,
		Collection: item.Collection,
		Acquired:   acquired,
		CloudCover: cloud,
	}, nil
}

// parseItemTime reads datetime, falling back to start_datetime for items
// that only carry a range.
func parseItemTime(props map[string]any) (time.Time, error) {
	for _, key := range []string{"datetime", "start_datetime"} {
		s, ok := props[key].(string)
		if !ok || s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s %q: %w", key, s, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("missing datetime")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// SelectLowestCloud returns the scene with the lowest cloud cover. Ties go
// to the most recent acquisition. It reports false for an empty slice.
func SelectLowestCloud(scenes []Scene) (Scene, bool) {
	if len(scenes) == 0 {
		return Scene{}, false
	}

	best := scenes[0]
	for _, s := range scenes[1:] {
		if s.CloudCover < best.CloudCover ||
			(s.CloudCover == best.CloudCover && s.Acquired.After(best.Acquired)) {
			best = s
		}
	}
	return best, true
}

package planet

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// ItemType is the PlanetScope scene item type.
const ItemType = "PSScene"

type GeoFilter struct {
	Type      string            `json:"type"`
	Config    *geojson.Geometry `json:"config"`
	FieldName string            `json:"field_name"`
}

type DateRange struct {
	Start time.Time `json:"gte"`
	End   time.Time `json:"lte"`
}

type DateRangeFilter struct {
	Type      string     `json:"type"`
	FieldName string     `json:"field_name"`
	Config    *DateRange `json:"config"`
}

type Range struct {
	LTE float64 `json:"lte"`
}

type RangeFilter struct {
	Type      string `json:"type"`
	FieldName string `json:"field_name"`
	Config    *Range `json:"config"`
}

type AndFilter struct {
	Type   string        `json:"type"`
	Config []interface{} `json:"config"`
}

type Properties struct {
	Acquired time.Time `json:"acquired"`
	// CloudCover is a fraction in [0,1].
	CloudCover      *float64 `json:"cloud_cover"`
	ClearPercent    *int     `json:"clear_percent"`
	SatelliteID     string   `json:"satellite_id"`
	PixelResolution float64  `json:"pixel_resolution"`
}

type Feature struct {
	Geometry   *geojson.Geometry `json:"geometry"`
	ID         string            `json:"id"`
	Properties *Properties       `json:"properties"`
}

type Request struct {
	Filter    interface{} `json:"filter"`
	ItemTypes []string    `json:"item_types"`
}

type Response struct {
	Features []*Feature `json:"features"`
}

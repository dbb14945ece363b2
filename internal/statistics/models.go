package statistics

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/rkm/fieldsat/internal/fieldstats"
)

// crsWGS84 is sent with bounding boxes in longitude, latitude order.
const crsWGS84 = "http://www.opengis.net/def/crs/EPSG/0/4326"

// Histogram settings for per-pixel NDVI.
const (
	HistogramBins = 40
	histogramLow  = -1.0
	histogramHigh = 1.0
)

// Request is a Statistical API request body.
type Request struct {
	Input        Input                  `json:"input"`
	Aggregation  Aggregation            `json:"aggregation"`
	Calculations map[string]Calculation `json:"calculations,omitempty"`
}

type Input struct {
	Bounds Bounds      `json:"bounds"`
	Data   []DataInput `json:"data"`
}

type Bounds struct {
	BBox       []float64        `json:"bbox"`
	Properties BoundsProperties `json:"properties"`
}

type BoundsProperties struct {
	CRS string `json:"crs"`
}

type DataInput struct {
	Type       string     `json:"type"`
	DataFilter DataFilter `json:"dataFilter"`
}

type DataFilter struct {
	MosaickingOrder  string  `json:"mosaickingOrder,omitempty"`
	MaxCloudCoverage float64 `json:"maxCloudCoverage"`
}

type Aggregation struct {
	TimeRange           TimeRange `json:"timeRange"`
	AggregationInterval Interval  `json:"aggregationInterval"`
	Width               int       `json:"width"`
	Height              int       `json:"height"`
	Evalscript          string    `json:"evalscript"`
}

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Interval struct {
	Of string `json:"of"`
}

type Calculation struct {
	Histograms map[string]HistogramSpec `json:"histograms,omitempty"`
}

type HistogramSpec struct {
	NBins    int     `json:"nBins"`
	LowEdge  float64 `json:"lowEdge"`
	HighEdge float64 `json:"highEdge"`
}

// Response is a Statistical API response body.
type Response struct {
	Data   []IntervalData `json:"data"`
	Status string         `json:"status"`
}

type IntervalData struct {
	Interval TimeRange         `json:"interval"`
	Outputs  map[string]Output `json:"outputs"`
	Error    *IntervalError    `json:"error,omitempty"`
}

type IntervalError struct {
	Type string `json:"type"`
}

type Output struct {
	Bands map[string]BandStats `json:"bands"`
}

type BandStats struct {
	Stats     Stats      `json:"stats"`
	Histogram *Histogram `json:"histogram,omitempty"`
}

type Stats struct {
	Min         Float `json:"min"`
	Max         Float `json:"max"`
	Mean        Float `json:"mean"`
	StDev       Float `json:"stDev"`
	SampleCount int   `json:"sampleCount"`
	NoDataCount int   `json:"noDataCount"`
}

type Histogram struct {
	Bins []fieldstats.HistogramBin `json:"bins"`
}

// Float decodes numbers as well as the "NaN" and "Infinity" strings the API
// emits when a band has no valid samples.
type Float float64

func (f *Float) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = Float(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = Float(n)
	return nil
}

// Finite reports whether f is neither NaN nor infinite.
func (f Float) Finite() bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

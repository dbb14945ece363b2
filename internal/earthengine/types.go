package earthengine

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// cloudProperty is the Sentinel-2 scene cloud percentage property.
const cloudProperty = "CLOUDY_PIXEL_PERCENTAGE"

// Image is an entry of a listImages response.
type Image struct {
	Name       string         `json:"name"`
	ID         string         `json:"id"`
	StartTime  time.Time      `json:"startTime"`
	Properties map[string]any `json:"properties"`
}

// ListImagesResponse is a listImages response page.
type ListImagesResponse struct {
	Images        []Image `json:"images"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// ComputeRequest is a value:compute request body.
type ComputeRequest struct {
	Expression Expression `json:"expression"`
}

// ComputeResponse carries the reduced band values.
type ComputeResponse struct {
	Result map[string]*float64 `json:"result"`
}

// Expression is a serialized Earth Engine computation graph.
type Expression struct {
	Result string            `json:"result"`
	Values map[string]*Value `json:"values"`
}

// Value is a node of the computation graph.
type Value struct {
	ConstantValue           any                 `json:"constantValue,omitempty"`
	FunctionInvocationValue *FunctionInvocation `json:"functionInvocationValue,omitempty"`
}

// FunctionInvocation calls an Earth Engine algorithm.
type FunctionInvocation struct {
	FunctionName string            `json:"functionName"`
	Arguments    map[string]*Value `json:"arguments"`
}

func constant(v any) *Value {
	return &Value{ConstantValue: v}
}

func invoke(name string, args map[string]*Value) *Value {
	if args == nil {
		args = map[string]*Value{}
	}
	return &Value{FunctionInvocationValue: &FunctionInvocation{FunctionName: name, Arguments: args}}
}

// meanExpression builds Image.reduceRegion(mean) over region for the given
// bands of imageID at scale meters.
func meanExpression(imageID string, bands []string, region *geojson.Geometry, scale float64) Expression {
	image := invoke("Image.select", map[string]*Value{
		"input":         invoke("Image.load", map[string]*Value{"id": constant(imageID)}),
		"bandSelectors": constant(bands),
	})

	return Expression{
		Result: "0",
		Values: map[string]*Value{
			"0": invoke("Image.reduceRegion", map[string]*Value{
				"image":     image,
				"reducer":   invoke("Reducer.mean", nil),
				"geometry":  constant(region),
				"scale":     constant(scale),
				"maxPixels": constant(1e9),
			}),
		},
	}
}

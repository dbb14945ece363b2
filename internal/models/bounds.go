package models

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// FieldBounds is a latitude/longitude bounding box in degrees.
// Boxes crossing the antimeridian are not supported.
type FieldBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate checks that the bounds describe a non-degenerate box.
func (b FieldBounds) Validate() error {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bounds must be finite", ErrInvalidInput)
		}
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90, got south=%f north=%f", ErrInvalidInput, b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180, got west=%f east=%f", ErrInvalidInput, b.West, b.East)
	}
	if b.North <= b.South {
		return fmt.Errorf("%w: north (%f) must be greater than south (%f)", ErrInvalidInput, b.North, b.South)
	}
	if b.East <= b.West {
		return fmt.Errorf("%w: east (%f) must be greater than west (%f)", ErrInvalidInput, b.East, b.West)
	}
	return nil
}

// BBox returns the bounds as [west, south, east, north].
func (b FieldBounds) BBox() []float64 {
	return []float64{b.West, b.South, b.East, b.North}
}

// Bound returns the bounds as an orb.Bound.
func (b FieldBounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Polygon returns the closed ring around the bounds, counter-clockwise from
// the south-west corner.
func (b FieldBounds) Polygon() orb.Polygon {
	return orb.Polygon{orb.Ring{
		{b.West, b.South},
		{b.East, b.South},
		{b.East, b.North},
		{b.West, b.North},
		{b.West, b.South},
	}}
}

// Center returns the midpoint of the bounds.
func (b FieldBounds) Center() orb.Point {
	return b.Bound().Center()
}

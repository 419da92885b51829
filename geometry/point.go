// Package geometry holds the stateless math used by the drawing engine:
// pressure-tagged points, bounding boxes, distances and stroke tessellation.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultPressure is used when an input device does not report pressure.
const DefaultPressure = 0.5

// Point is a canvas-space sample. Pressure is in [0,1].
//
// On the wire a point is the compact array [x, y, pressure].
type Point struct {
	X        float64
	Y        float64
	Pressure float64
}

// Pt returns a point with the default pressure.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y, Pressure: DefaultPressure}
}

// Vec returns the position of p, dropping pressure.
func (p Point) Vec() Vec {
	return Vec{X: p.X, Y: p.Y}
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Pressure})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	switch len(raw) {
	case 2:
		*p = Point{X: raw[0], Y: raw[1], Pressure: DefaultPressure}
	case 3:
		*p = Point{X: raw[0], Y: raw[1], Pressure: ClampPressure(raw[2])}
	default:
		return fmt.Errorf("point: expected 2 or 3 coordinates, got %d", len(raw))
	}
	if !finite(p.X) || !finite(p.Y) {
		return fmt.Errorf("point: non-finite coordinate")
	}
	return nil
}

// ClampPressure maps out-of-range or missing pressure into [0,1].
func ClampPressure(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return DefaultPressure
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Vec is a 2D vector or position without pressure.
type Vec struct {
	X, Y float64
}

func (v Vec) Add(o Vec) Vec     { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec     { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Mul(s float64) Vec { return Vec{v.X * s, v.Y * s} }
func (v Vec) Dot(o Vec) float64 { return v.X*o.X + v.Y*o.Y }
func (v Vec) Len() float64      { return math.Hypot(v.X, v.Y) }
func (v Vec) Lerp(o Vec, t float64) Vec {
	return Vec{v.X + (o.X-v.X)*t, v.Y + (o.Y-v.Y)*t}
}

// Perp is v rotated 90 degrees counter-clockwise.
func (v Vec) Perp() Vec { return Vec{-v.Y, v.X} }

// Unit returns v scaled to length 1, or the zero vector.
func (v Vec) Unit() Vec {
	l := v.Len()
	if l == 0 {
		return Vec{}
	}
	return Vec{v.X / l, v.Y / l}
}

// Rotate rotates v by angle radians.
func (v Vec) Rotate(angle float64) Vec {
	s, c := math.Sincos(angle)
	return Vec{v.X*c - v.Y*s, v.X*s + v.Y*c}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

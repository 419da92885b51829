package canvas

import (
	"math"

	"inkboard/geometry"
)

// Zoom limits and the per-step factor.
const (
	MinScale   = 0.1
	MaxScale   = 5.0
	ZoomFactor = 1.2
)

// VisibilityMargin is the screen-space slack, in pixels, used by
// IsPointVisible and stroke culling.
const VisibilityMargin = 100.0

// Viewport maps canvas coordinates to screen: screen = canvas*Scale + (X, Y).
// Width and Height are the screen size in pixels.
type Viewport struct {
	X, Y   float64
	Scale  float64
	Width  float64
	Height float64
}

// NewViewport returns an identity viewport of the given screen size.
func NewViewport(width, height float64) *Viewport {
	return &Viewport{Scale: 1, Width: width, Height: height}
}

// Resize updates the screen size without moving the view.
func (v *Viewport) Resize(width, height float64) {
	v.Width, v.Height = width, height
}

// ZoomIn multiplies the scale by ZoomFactor. When center is non-nil the
// canvas point under that screen position stays put.
func (v *Viewport) ZoomIn(center *geometry.Vec) {
	v.SetZoom(v.Scale*ZoomFactor, center)
}

// ZoomOut divides the scale by ZoomFactor.
func (v *Viewport) ZoomOut(center *geometry.Vec) {
	v.SetZoom(v.Scale/ZoomFactor, center)
}

// SetZoom sets the scale, clamped to [MinScale, MaxScale], anchored on the
// optional screen-space center.
func (v *Viewport) SetZoom(scale float64, center *geometry.Vec) {
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return
	}
	old := v.Scale
	next := clampScale(scale)
	if center != nil && old > 0 {
		ratio := next / old
		v.X = center.X - (center.X-v.X)*ratio
		v.Y = center.Y - (center.Y-v.Y)*ratio
	}
	v.Scale = next
}

// Pan translates the view by a screen-space delta.
func (v *Viewport) Pan(dx, dy float64) {
	if math.IsNaN(dx) || math.IsNaN(dy) {
		return
	}
	v.X += dx
	v.Y += dy
}

// Reset restores the identity view.
func (v *Viewport) Reset() {
	v.X, v.Y, v.Scale = 0, 0, 1
}

// ToCanvas converts a screen position to canvas space. Pressure passes
// through unchanged.
func (v *Viewport) ToCanvas(screen geometry.Point) geometry.Point {
	x, y := v.Transform().Invert(screen.X, screen.Y)
	return geometry.Point{X: x, Y: y, Pressure: screen.Pressure}
}

// ToScreen converts a canvas position to screen space.
func (v *Viewport) ToScreen(canvas geometry.Point) geometry.Point {
	x, y := v.Transform().Apply(canvas.X, canvas.Y)
	return geometry.Point{X: x, Y: y, Pressure: canvas.Pressure}
}

// IsPointVisible reports whether a canvas point lands on screen, allowing
// margin pixels beyond each edge.
func (v *Viewport) IsPointVisible(x, y, margin float64) bool {
	sx, sy := v.Transform().Apply(x, y)
	return sx >= -margin && sx <= v.Width+margin && sy >= -margin && sy <= v.Height+margin
}

// Transform returns the canvas-to-screen map.
func (v *Viewport) Transform() geometry.Affine {
	s := v.Scale
	if s <= 0 {
		s = 1
	}
	return geometry.Affine{Scale: s, TX: v.X, TY: v.Y}
}

// Screen is the on-screen rectangle grown by margin.
func (v *Viewport) Screen(margin float64) geometry.Rect {
	return geometry.Rect{MaxX: v.Width, MaxY: v.Height}.Inset(margin)
}

func clampScale(s float64) float64 {
	return math.Min(math.Max(s, MinScale), MaxScale)
}

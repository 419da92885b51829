package geometry

import "math"

// Rect is an axis-aligned box. The zero Rect is empty.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Bounds returns the bounding box of points. ok is false for no points.
func Bounds(points []Point) (r Rect, ok bool) {
	if len(points) == 0 {
		return Rect{}, false
	}
	r = Rect{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range points {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r, true
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Inset grows r by m on every side (shrinks for negative m).
func (r Rect) Inset(m float64) Rect {
	return Rect{r.MinX - m, r.MinY - m, r.MaxX + m, r.MaxY + m}
}

// Intersects reports whether r and o overlap, edges included.
func (r Rect) Intersects(o Rect) bool {
	return !(r.MaxX < o.MinX || r.MinX > o.MaxX || r.MaxY < o.MinY || r.MinY > o.MaxY)
}

// Affine is a uniform-scale-plus-translate map: out = in*Scale + (TX, TY).
type Affine struct {
	Scale  float64
	TX, TY float64
}

// Identity is the affine map that leaves points unchanged.
var Identity = Affine{Scale: 1}

func (a Affine) Apply(x, y float64) (float64, float64) {
	return x*a.Scale + a.TX, y*a.Scale + a.TY
}

// Invert maps an output position back to input space.
func (a Affine) Invert(x, y float64) (float64, float64) {
	return (x - a.TX) / a.Scale, (y - a.TY) / a.Scale
}

// ApplyRect transforms both corners of r. Scale is always positive here.
func (a Affine) ApplyRect(r Rect) Rect {
	x0, y0 := a.Apply(r.MinX, r.MinY)
	x1, y1 := a.Apply(r.MaxX, r.MaxY)
	return Rect{x0, y0, x1, y1}
}

package canvas

import (
	"fmt"
	"math"

	"inkboard/geometry"
)

// Surface is a 2D drawing target with a canvas-style path API. Path
// coordinates go through the current transform.
type Surface interface {
	Size() (width, height float64)
	// Clear fills the whole surface, ignoring the transform.
	Clear(color string)
	SetTransform(t geometry.Affine)
	SetColor(color string)
	SetLineWidth(w float64)

	BeginPath()
	MoveTo(x, y float64)
	LineTo(x, y float64)
	QuadTo(cx, cy, x, y float64)
	ClosePath()
	Fill()
	Stroke()

	// Text draws s with its baseline origin at (x, y) in screen space.
	Text(x, y float64, s string)
}

// RenderOptions tunes a redraw pass.
type RenderOptions struct {
	GridSize     float64
	GridMinScale float64
	CullMargin   float64
	Dark         bool
	Grid         bool
	Diagnostics  bool
}

// DefaultRenderOptions enables the grid and the diagnostic overlay.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		GridSize:     50,
		GridMinScale: 0.5,
		CullMargin:   VisibilityMargin,
		Grid:         true,
		Diagnostics:  true,
	}
}

// Scene is what one redraw pass paints.
type Scene struct {
	Store    *Store
	Viewport *Viewport
	// PenWidth is shown in the diagnostic overlay.
	PenWidth float64
}

// Stats describes the last pass: completed strokes drawn versus stored.
type Stats struct {
	Rendered int
	Total    int
}

// Renderer redraws a Scene onto a Surface in full on every pass.
type Renderer struct {
	Options RenderOptions
}

// NewRenderer returns a renderer using opts.
func NewRenderer(opts RenderOptions) *Renderer {
	return &Renderer{Options: opts}
}

// Draw performs a full redraw of scene onto s.
func (r *Renderer) Draw(s Surface, scene Scene) Stats {
	vp := scene.Viewport
	opts := r.Options

	s.SetTransform(geometry.Identity)
	if opts.Dark {
		s.Clear("#121212")
	} else {
		s.Clear("#ffffff")
	}
	if opts.Grid && vp.Scale >= opts.GridMinScale {
		r.drawGrid(s, vp)
	}

	s.SetTransform(vp.Transform())

	screen := vp.Screen(opts.CullMargin)
	completed := scene.Store.Completed()
	stats := Stats{Total: len(completed)}
	for _, st := range completed {
		if r.drawStroke(s, st, vp, screen) {
			stats.Rendered++
		}
	}
	for _, st := range scene.Store.RemoteLive() {
		r.drawStroke(s, st, vp, screen)
	}
	if local := scene.Store.Local(); local != nil {
		r.drawStroke(s, local, vp, screen)
	}

	s.SetTransform(geometry.Identity)
	if opts.Diagnostics {
		s.SetColor("#666666")
		for i, line := range DiagnosticLines(vp, stats, scene.PenWidth) {
			s.Text(10, float64(20+15*i), line)
		}
	}
	return stats
}

// DiagnosticLines is the text overlay for a pass.
func DiagnosticLines(vp *Viewport, stats Stats, penWidth float64) []string {
	return []string{
		fmt.Sprintf("Zoom: %.0f%%", vp.Scale*100),
		fmt.Sprintf("Strokes: %d/%d", stats.Rendered, stats.Total),
		fmt.Sprintf("Pan: %.0f, %.0f", vp.X, vp.Y),
		fmt.Sprintf("Pen Width: %gpx", penWidth),
	}
}

// Visible reports whether the stroke's bounding box, mapped to screen,
// touches the viewport grown by margin.
func Visible(st *Stroke, vp *Viewport, margin float64) bool {
	return visibleIn(st, vp, vp.Screen(margin))
}

func visibleIn(st *Stroke, vp *Viewport, screen geometry.Rect) bool {
	b, ok := geometry.Bounds(st.Points)
	if !ok {
		return false
	}
	return vp.Transform().ApplyRect(b).Intersects(screen)
}

func (r *Renderer) drawStroke(s Surface, st *Stroke, vp *Viewport, screen geometry.Rect) bool {
	// Eraser-tool strokes carry no ink.
	if st == nil || st.Tool == ToolEraser || !visibleIn(st, vp, screen) {
		return false
	}
	c := displayColor(st.Color, r.Options.Dark)
	s.SetColor(c)
	DrawStrokePoints(s, st.Points, st.Width)
	return true
}

// DrawStrokePoints paints points as pen ink of the given width: a dot for a
// single sample, a polyline for two or three and a filled pressure outline
// beyond that.
func DrawStrokePoints(s Surface, points []geometry.Point, width float64) {
	switch {
	case len(points) == 0:
		return
	case len(points) == 1:
		p := points[0]
		radius := math.Max(width*p.Pressure/2, 1)
		fillPolygon(s, geometry.Circle(p.Vec(), radius, 24))
	case len(points) < 4:
		s.SetLineWidth(width)
		s.BeginPath()
		s.MoveTo(points[0].X, points[0].Y)
		for _, p := range points[1:] {
			s.LineTo(p.X, p.Y)
		}
		s.Stroke()
	default:
		outline := geometry.Outline(points, geometry.PenOptions(width))
		if len(outline) < 3 {
			return
		}
		s.BeginPath()
		s.MoveTo(outline[0].X, outline[0].Y)
		for i := 1; i < len(outline)-1; i++ {
			mid := outline[i].Lerp(outline[i+1], 0.5)
			s.QuadTo(outline[i].X, outline[i].Y, mid.X, mid.Y)
		}
		last := outline[len(outline)-1]
		s.LineTo(last.X, last.Y)
		s.ClosePath()
		s.Fill()
	}
}

func fillPolygon(s Surface, poly []geometry.Vec) {
	s.BeginPath()
	s.MoveTo(poly[0].X, poly[0].Y)
	for _, v := range poly[1:] {
		s.LineTo(v.X, v.Y)
	}
	s.ClosePath()
	s.Fill()
}

func (r *Renderer) drawGrid(s Surface, vp *Viewport) {
	w, h := s.Size()
	step := r.Options.GridSize * vp.Scale
	if step <= 0 {
		return
	}
	ox := math.Mod(math.Mod(vp.X, step)+step, step)
	oy := math.Mod(math.Mod(vp.Y, step)+step, step)

	if r.Options.Dark {
		s.SetColor("#333333")
	} else {
		s.SetColor("#dbd9d9")
	}
	s.SetLineWidth(0.5)
	s.BeginPath()
	for x := ox; x < w; x += step {
		s.MoveTo(x, 0)
		s.LineTo(x, h)
	}
	for y := oy; y < h; y += step {
		s.MoveTo(0, y)
		s.LineTo(w, y)
	}
	s.Stroke()
}

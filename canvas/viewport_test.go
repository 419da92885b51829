package canvas

import (
	"math"
	"testing"

	"inkboard/geometry"
)

func TestViewport_ZoomSteps(t *testing.T) {
	v := NewViewport(800, 600)
	v.ZoomIn(nil)
	if math.Abs(v.Scale-1.2) > 1e-9 {
		t.Errorf("scale = %v, want 1.2", v.Scale)
	}
	v.ZoomIn(nil)
	if math.Abs(v.Scale-1.44) > 1e-9 {
		t.Errorf("scale = %v, want 1.44", v.Scale)
	}
	for i := 0; i < 50; i++ {
		v.ZoomIn(nil)
	}
	if v.Scale != MaxScale {
		t.Errorf("scale = %v, want capped at %v", v.Scale, MaxScale)
	}
	for i := 0; i < 100; i++ {
		v.ZoomOut(nil)
	}
	if v.Scale != MinScale {
		t.Errorf("scale = %v, want floored at %v", v.Scale, MinScale)
	}
}

func TestViewport_ZoomTowardCursor(t *testing.T) {
	v := NewViewport(800, 600)
	v.Pan(37, -12)
	center := &geometry.Vec{X: 300, Y: 200}
	under := v.ToCanvas(geometry.Pt(center.X, center.Y))

	v.ZoomIn(center)
	after := v.ToScreen(under)
	if math.Abs(after.X-center.X) > 1e-9 || math.Abs(after.Y-center.Y) > 1e-9 {
		t.Errorf("point under cursor moved to %+v", after)
	}

	v.ZoomOut(center)
	if math.Abs(v.Scale-1) > 1e-9 {
		t.Errorf("scale after in/out = %v, want 1", v.Scale)
	}
	back := v.ToScreen(under)
	if math.Abs(back.X-center.X) > 1e-9 || math.Abs(back.Y-center.Y) > 1e-9 {
		t.Errorf("point under cursor drifted to %+v", back)
	}
}

func TestViewport_SetZoomClampsAndIgnoresNaN(t *testing.T) {
	v := NewViewport(100, 100)
	v.SetZoom(42, nil)
	if v.Scale != MaxScale {
		t.Errorf("SetZoom(42) = %v", v.Scale)
	}
	v.SetZoom(math.NaN(), nil)
	if v.Scale != MaxScale {
		t.Errorf("SetZoom(NaN) changed scale to %v", v.Scale)
	}
}

func TestViewport_Conversions(t *testing.T) {
	v := &Viewport{X: 10, Y: 20, Scale: 2, Width: 100, Height: 100}
	p := v.ToCanvas(geometry.Point{X: 30, Y: 40, Pressure: 0.8})
	if p.X != 10 || p.Y != 10 || p.Pressure != 0.8 {
		t.Errorf("ToCanvas() = %+v, want (10,10,0.8)", p)
	}
	s := v.ToScreen(p)
	if s.X != 30 || s.Y != 40 {
		t.Errorf("ToScreen() = %+v, want (30,40)", s)
	}
}

func TestViewport_IsPointVisible(t *testing.T) {
	v := NewViewport(800, 600)
	if !v.IsPointVisible(850, 300, VisibilityMargin) {
		t.Error("point inside margin reported hidden")
	}
	if v.IsPointVisible(1000, 300, VisibilityMargin) {
		t.Error("point beyond margin reported visible")
	}
	v.Reset()
	if v.X != 0 || v.Y != 0 || v.Scale != 1 {
		t.Errorf("Reset() = %+v", v)
	}
}

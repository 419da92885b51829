package canvas

import (
	"strings"
	"time"

	"inkboard/geometry"
)

// MoveThrottle is the minimum spacing between published stroke_move
// messages while drawing. The pointer-down sample is always published.
const MoveThrottle = 16 * time.Millisecond

// Outbox receives the local operations that must reach peers. Calls are
// fire-and-forget: local state has already changed when they happen.
type Outbox interface {
	StrokeMove(id StrokeID, p geometry.Point, meta Meta)
	StrokeEnd(st *Stroke)
	Erase(ids []StrokeID)
	Undo(canUndo bool)
}

// PointerEvent is a raw pointer sample in screen pixels. Pressure 0 means
// the device did not report one.
type PointerEvent struct {
	X, Y     float64
	Pressure float64
	Button   int
}

// KeyEvent is a key press or release. Key is the produced character, or
// "Space" for the space bar.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Meta  bool
	Shift bool
}

func (k KeyEvent) command() bool { return k.Ctrl || k.Meta }

// WheelEvent is a scroll at a screen position; negative DeltaY scrolls up.
type WheelEvent struct {
	X, Y   float64
	DeltaY float64
	Ctrl   bool
}

// Controller turns pointer, key and wheel events into engine operations.
type Controller struct {
	store   *Store
	eraser  *Eraser
	history *History
	vp      *Viewport
	redraw  Redrawer
	out     Outbox
	now     func() time.Time

	tool  Tool
	width float64
	color string

	down      bool
	panMode   bool
	panning   bool
	lastPan   geometry.Vec
	drawing   StrokeID
	erasedAny bool
	lastMove  time.Time
}

// ControllerDeps groups what a Controller drives.
type ControllerDeps struct {
	Store    *Store
	Eraser   *Eraser
	History  *History
	Viewport *Viewport
	Redraw   Redrawer
	Out      Outbox
	Now      func() time.Time
}

// NewController wires d into a controller. A nil Now uses time.Now.
func NewController(d ControllerDeps) *Controller {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Controller{
		store:   d.Store,
		eraser:  d.Eraser,
		history: d.History,
		vp:      d.Viewport,
		redraw:  d.Redraw,
		out:     d.Out,
		now:     d.Now,
		tool:    ToolPen,
		width:   DefaultWidth,
		color:   DefaultColor,
	}
}

// Pen settings; the toolbar lives outside the engine.

func (c *Controller) Tool() Tool { return c.tool }
func (c *Controller) SetTool(t Tool) {
	if t != ToolEraser {
		t = ToolPen
	}
	c.tool = t
}
func (c *Controller) Width() float64 { return c.width }
func (c *Controller) SetWidth(w float64) {
	if w > 0 {
		c.width = w
		c.redraw.RequestRedraw()
	}
}
func (c *Controller) Color() string { return c.color }
func (c *Controller) SetColor(col string) {
	if _, ok := ParseHex(col); ok {
		c.color = col
	}
}

// Panning reports whether space-held pan mode is on.
func (c *Controller) Panning() bool { return c.panMode }

func (c *Controller) meta() Meta {
	return Meta{Tool: c.tool, Width: c.width, Color: c.color}
}

func (c *Controller) canvasPoint(e PointerEvent) geometry.Point {
	p := e.Pressure
	if p <= 0 {
		p = geometry.DefaultPressure
	}
	return c.vp.ToCanvas(geometry.Point{X: e.X, Y: e.Y, Pressure: geometry.ClampPressure(p)})
}

func (c *Controller) PointerDown(e PointerEvent) {
	if e.Button == 2 {
		return
	}
	c.down = true
	if c.panMode {
		c.panning = true
		c.lastPan = geometry.Vec{X: e.X, Y: e.Y}
		return
	}

	p := c.canvasPoint(e)
	if c.tool == ToolEraser {
		ids := c.eraser.Start(p)
		c.erasedAny = len(ids) > 0
		c.redraw.RequestRedraw()
		if len(ids) > 0 {
			c.out.Erase(ids)
		}
		return
	}

	id, ok := c.store.StartStroke(p, c.meta())
	if !ok {
		return
	}
	c.drawing = id
	c.redraw.RequestRedraw()
	c.lastMove = c.now()
	c.out.StrokeMove(id, p, c.meta())
}

func (c *Controller) PointerMove(e PointerEvent) {
	if !c.down {
		return
	}
	if c.panning {
		c.vp.Pan(e.X-c.lastPan.X, e.Y-c.lastPan.Y)
		c.lastPan = geometry.Vec{X: e.X, Y: e.Y}
		c.redraw.RequestRedraw()
		return
	}

	p := c.canvasPoint(e)
	if c.eraser.Active() {
		ids := c.eraser.Continue(p)
		c.redraw.RequestRedraw()
		if len(ids) > 0 {
			c.erasedAny = true
			c.out.Erase(ids)
		}
		return
	}
	if c.drawing == "" {
		return
	}
	if c.store.AppendPoint(c.drawing, p) {
		c.redraw.RequestRedraw()
	}
	if now := c.now(); now.Sub(c.lastMove) >= MoveThrottle {
		c.lastMove = now
		c.out.StrokeMove(c.drawing, p, c.meta())
	}
}

func (c *Controller) PointerUp(PointerEvent) {
	c.down = false
	if c.panning {
		c.panning = false
		return
	}
	if c.eraser.Active() {
		c.eraser.Stop()
		// One undo step per gesture.
		if c.erasedAny {
			c.history.Commit()
		}
		c.erasedAny = false
		c.redraw.RequestRedraw()
		return
	}
	if c.drawing == "" {
		return
	}
	id := c.drawing
	c.drawing = ""
	if st := c.store.CompleteStroke(id); st != nil {
		c.history.Commit()
		c.out.StrokeEnd(st)
	}
	c.redraw.RequestRedraw()
}

// PointerLeave ends any gesture as if the pointer were released.
func (c *Controller) PointerLeave(e PointerEvent) {
	if c.down {
		c.PointerUp(e)
	}
}

// Undo undoes locally and announces an undo request to peers.
func (c *Controller) Undo() {
	can := c.history.CanUndo()
	c.out.Undo(can)
	if c.history.Undo() {
		c.redraw.RequestRedraw()
	}
}

func (c *Controller) Redo() {
	if c.history.Redo() {
		c.redraw.RequestRedraw()
	}
}

// KeyDown reports whether the key was handled.
func (c *Controller) KeyDown(k KeyEvent) bool {
	key := k.Key
	lower := strings.ToLower(key)
	switch {
	case k.command() && lower == "z" && !k.Shift:
		c.Undo()
	case k.command() && (lower == "z" && k.Shift || lower == "y"):
		c.Redo()
	case k.command() && key == "0":
		c.vp.Reset()
		c.redraw.RequestRedraw()
	case k.command() && (key == "+" || key == "="):
		c.vp.ZoomIn(c.screenCenter())
		c.redraw.RequestRedraw()
	case k.command() && key == "-":
		c.vp.ZoomOut(c.screenCenter())
		c.redraw.RequestRedraw()
	case key == " " || key == "Space":
		if !c.down {
			c.panMode = true
		}
	case k.command():
		return false
	case lower == "e":
		if c.tool == ToolEraser {
			c.tool = ToolPen
		} else {
			c.tool = ToolEraser
		}
	case lower == "p" || lower == "v":
		c.tool = ToolPen
	default:
		return false
	}
	return true
}

func (c *Controller) KeyUp(k KeyEvent) bool {
	if k.Key == " " || k.Key == "Space" {
		c.panMode = false
		return true
	}
	return false
}

// Wheel zooms toward the cursor while Ctrl is held. Plain scrolling is
// ignored.
func (c *Controller) Wheel(e WheelEvent) {
	if !e.Ctrl || e.DeltaY == 0 {
		return
	}
	center := &geometry.Vec{X: e.X, Y: e.Y}
	if e.DeltaY < 0 {
		c.vp.ZoomIn(center)
	} else {
		c.vp.ZoomOut(center)
	}
	c.redraw.RequestRedraw()
}

func (c *Controller) screenCenter() *geometry.Vec {
	if c.vp.Width <= 0 || c.vp.Height <= 0 {
		return nil
	}
	return &geometry.Vec{X: c.vp.Width / 2, Y: c.vp.Height / 2}
}

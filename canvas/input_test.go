package canvas

import (
	"testing"
	"time"

	"inkboard/geometry"
)

type rig struct {
	store  *Store
	hist   *History
	vp     *Viewport
	redraw *countingRedraw
	out    *recordingOutbox
	clock  *fakeClock
	ctl    *Controller
}

func newRig() *rig {
	r := &rig{
		store:  NewStore("me"),
		vp:     NewViewport(800, 600),
		redraw: &countingRedraw{},
		out:    &recordingOutbox{},
		clock:  newFakeClock(),
	}
	r.hist = NewHistory(r.store)
	r.ctl = NewController(ControllerDeps{
		Store:    r.store,
		Eraser:   NewEraser(r.store),
		History:  r.hist,
		Viewport: r.vp,
		Redraw:   r.redraw,
		Out:      r.out,
		Now:      r.clock.Now,
	})
	return r
}

func TestController_DrawStroke(t *testing.T) {
	r := newRig()
	r.ctl.PointerDown(PointerEvent{X: 0, Y: 0})
	r.clock.Advance(5 * time.Millisecond)
	r.ctl.PointerMove(PointerEvent{X: 5, Y: 5})
	r.clock.Advance(20 * time.Millisecond)
	r.ctl.PointerMove(PointerEvent{X: 10, Y: 10})
	r.ctl.PointerUp(PointerEvent{})

	if len(r.store.Completed()) != 1 {
		t.Fatalf("completed = %d, want 1", len(r.store.Completed()))
	}
	st := r.store.Completed()[0]
	if len(st.Points) != 3 || st.Points[1] != geometry.Pt(5, 5) {
		t.Errorf("points = %+v", st.Points)
	}
	// Pointer-down is always sent; the 5ms move is throttled, the 25ms one is not.
	if len(r.out.moves) != 2 {
		t.Errorf("published %d moves, want 2", len(r.out.moves))
	}
	if len(r.out.ends) != 1 || r.out.ends[0].ID != st.ID {
		t.Errorf("ends = %v", r.out.ends)
	}
	if !r.hist.CanUndo() {
		t.Error("completed stroke not committed to history")
	}
	if r.redraw.n == 0 {
		t.Error("no redraw requested")
	}
}

func TestController_RightButtonIgnored(t *testing.T) {
	r := newRig()
	r.ctl.PointerDown(PointerEvent{X: 1, Y: 1, Button: 2})
	if r.store.Local() != nil || len(r.out.moves) != 0 {
		t.Error("right button started a stroke")
	}
}

func TestController_EraseGesture(t *testing.T) {
	r := newRig()
	r.store.AddCompleted(completedStroke("S1", geometry.Pt(100, 100)))
	r.store.AddCompleted(completedStroke("S2", geometry.Pt(300, 100)))
	r.hist.Commit()

	r.ctl.KeyDown(KeyEvent{Key: "e"})
	if r.ctl.Tool() != ToolEraser {
		t.Fatal("E did not select the eraser")
	}
	r.ctl.PointerDown(PointerEvent{X: 0, Y: 100})
	r.ctl.PointerMove(PointerEvent{X: 400, Y: 100})
	r.ctl.PointerMove(PointerEvent{X: 0, Y: 100})
	r.ctl.PointerUp(PointerEvent{})

	if len(r.store.Completed()) != 0 {
		t.Errorf("completed = %v, want empty", ids(r.store.Completed()))
	}
	if len(r.out.erases) != 1 || len(r.out.erases[0]) != 2 {
		t.Errorf("erase messages = %v, want one batch of two", r.out.erases)
	}
	if r.hist.Len() != 2 {
		t.Errorf("history len = %d, want one commit for the gesture", r.hist.Len())
	}

	r.ctl.Undo()
	if len(r.store.Completed()) != 2 {
		t.Errorf("undo did not restore erased strokes")
	}
	if len(r.out.undos) != 1 || !r.out.undos[0] {
		t.Errorf("undo signal = %v", r.out.undos)
	}
}

func TestController_SpacePans(t *testing.T) {
	r := newRig()
	r.ctl.KeyDown(KeyEvent{Key: " "})
	r.ctl.PointerDown(PointerEvent{X: 10, Y: 10})
	r.ctl.PointerMove(PointerEvent{X: 25, Y: 5})
	r.ctl.PointerUp(PointerEvent{})
	r.ctl.KeyUp(KeyEvent{Key: " "})

	if r.vp.X != 15 || r.vp.Y != -5 {
		t.Errorf("pan = (%v,%v), want (15,-5)", r.vp.X, r.vp.Y)
	}
	if r.store.Local() != nil || len(r.store.Completed()) != 0 {
		t.Error("panning drew a stroke")
	}
	if r.ctl.Panning() {
		t.Error("pan mode still on after key up")
	}
}

func TestController_Shortcuts(t *testing.T) {
	r := newRig()
	r.ctl.KeyDown(KeyEvent{Key: "=", Ctrl: true})
	if r.vp.Scale <= 1 {
		t.Errorf("Ctrl+= scale = %v", r.vp.Scale)
	}
	r.ctl.KeyDown(KeyEvent{Key: "-", Meta: true})
	r.ctl.KeyDown(KeyEvent{Key: "-", Meta: true})
	if r.vp.Scale >= 1 {
		t.Errorf("Cmd+- scale = %v", r.vp.Scale)
	}
	r.ctl.KeyDown(KeyEvent{Key: "0", Ctrl: true})
	if r.vp.Scale != 1 {
		t.Errorf("Ctrl+0 scale = %v", r.vp.Scale)
	}

	r.ctl.PointerDown(PointerEvent{X: 1, Y: 1})
	r.ctl.PointerUp(PointerEvent{})
	r.ctl.KeyDown(KeyEvent{Key: "z", Ctrl: true})
	if len(r.store.Completed()) != 0 {
		t.Error("Ctrl+Z did not undo")
	}
	r.ctl.KeyDown(KeyEvent{Key: "Z", Ctrl: true, Shift: true})
	if len(r.store.Completed()) != 1 {
		t.Error("Ctrl+Shift+Z did not redo")
	}
	r.ctl.KeyDown(KeyEvent{Key: "z", Ctrl: true})
	r.ctl.KeyDown(KeyEvent{Key: "y", Ctrl: true})
	if len(r.store.Completed()) != 1 {
		t.Error("Ctrl+Y did not redo")
	}

	r.ctl.SetTool(ToolEraser)
	r.ctl.KeyDown(KeyEvent{Key: "v"})
	if r.ctl.Tool() != ToolPen {
		t.Error("V did not select the pen")
	}
	if r.ctl.KeyDown(KeyEvent{Key: "q"}) {
		t.Error("unbound key reported handled")
	}
}

func TestController_CtrlWheelZoomsTowardCursor(t *testing.T) {
	r := newRig()
	under := r.vp.ToCanvas(geometry.Pt(200, 100))
	r.ctl.Wheel(WheelEvent{X: 200, Y: 100, DeltaY: -1, Ctrl: true})
	if r.vp.Scale != ZoomFactor {
		t.Fatalf("scale = %v, want %v", r.vp.Scale, ZoomFactor)
	}
	s := r.vp.ToScreen(under)
	if s.X < 199.999 || s.X > 200.001 || s.Y < 99.999 || s.Y > 100.001 {
		t.Errorf("cursor anchor moved to %+v", s)
	}
	r.ctl.Wheel(WheelEvent{X: 200, Y: 100, DeltaY: 3})
	if r.vp.Scale != ZoomFactor {
		t.Error("wheel without Ctrl changed zoom")
	}
}

func TestController_PointerLeaveEndsStroke(t *testing.T) {
	r := newRig()
	r.ctl.PointerDown(PointerEvent{X: 1, Y: 1})
	r.ctl.PointerLeave(PointerEvent{})
	if r.store.Local() != nil || len(r.out.ends) != 1 {
		t.Error("pointer leave did not finish the stroke")
	}
	r.ctl.PointerLeave(PointerEvent{})
	if len(r.out.ends) != 1 {
		t.Error("second leave sent another stroke_end")
	}
}

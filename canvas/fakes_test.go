package canvas

import (
	"fmt"
	"time"

	"inkboard/geometry"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeFrames queues frame callbacks until the test fires them.
type fakeFrames struct {
	queue    []*fakeFrame
	requests int
}

type fakeFrame struct {
	fn       func()
	canceled bool
}

func (f *fakeFrames) RequestFrame(fn func()) func() {
	f.requests++
	fr := &fakeFrame{fn: fn}
	f.queue = append(f.queue, fr)
	return func() { fr.canceled = true }
}

// Fire runs every queued, uncanceled frame once and returns how many ran.
func (f *fakeFrames) Fire() int {
	q := f.queue
	f.queue = nil
	n := 0
	for _, fr := range q {
		if fr.canceled {
			continue
		}
		fr.fn()
		n++
	}
	return n
}

// countingRedraw records redraw requests.
type countingRedraw struct{ n int }

func (c *countingRedraw) RequestRedraw() { c.n++ }

// recordingOutbox collects outgoing operations.
type recordingOutbox struct {
	moves  []StrokeID
	ends   []*Stroke
	erases [][]StrokeID
	undos  []bool
}

func (o *recordingOutbox) StrokeMove(id StrokeID, _ geometry.Point, _ Meta) {
	o.moves = append(o.moves, id)
}
func (o *recordingOutbox) StrokeEnd(st *Stroke) { o.ends = append(o.ends, st.Clone()) }
func (o *recordingOutbox) Erase(ids []StrokeID) { o.erases = append(o.erases, ids) }
func (o *recordingOutbox) Undo(canUndo bool)    { o.undos = append(o.undos, canUndo) }

// recordingSurface logs drawing calls as strings.
type recordingSurface struct {
	w, h  float64
	calls []string
	texts []string
	fills int
	lines int
}

func (s *recordingSurface) Size() (float64, float64) { return s.w, s.h }
func (s *recordingSurface) Clear(c string)           { s.calls = append(s.calls, "clear "+c) }
func (s *recordingSurface) SetTransform(t geometry.Affine) {
	s.calls = append(s.calls, fmt.Sprintf("transform %g", t.Scale))
}
func (s *recordingSurface) SetColor(c string)           { s.calls = append(s.calls, "color "+c) }
func (s *recordingSurface) SetLineWidth(w float64)      { s.calls = append(s.calls, fmt.Sprintf("width %g", w)) }
func (s *recordingSurface) BeginPath()                  {}
func (s *recordingSurface) MoveTo(x, y float64)         {}
func (s *recordingSurface) LineTo(x, y float64)         {}
func (s *recordingSurface) QuadTo(cx, cy, x, y float64) {}
func (s *recordingSurface) ClosePath()                  {}
func (s *recordingSurface) Fill()                       { s.fills++; s.calls = append(s.calls, "fill") }
func (s *recordingSurface) Stroke()                     { s.lines++; s.calls = append(s.calls, "stroke") }
func (s *recordingSurface) Text(x, y float64, t string) { s.texts = append(s.texts, t) }

func completedStroke(id string, pts ...geometry.Point) *Stroke {
	return &Stroke{ID: StrokeID(id), OwnerID: "peer", Tool: ToolPen, Width: 2, Color: DefaultColor, Points: pts}
}

package canvas

import (
	"math"

	"inkboard/geometry"
)

// Eraser radius bounds, in canvas units.
const (
	DefaultEraserRadius = 20.0
	MinEraserRadius     = 5.0
	MaxEraserRadius     = 100.0
)

// Eraser hit-tests completed strokes and removes matches from its store.
// A gesture runs Start, any number of Continue calls, then Stop; a stroke is
// reported at most once per gesture.
type Eraser struct {
	store  *Store
	radius float64

	active bool
	last   geometry.Point
	// erased is the per-gesture exclusion set.
	erased map[StrokeID]struct{}
}

// NewEraser returns an idle eraser over store at DefaultEraserRadius.
func NewEraser(store *Store) *Eraser {
	return &Eraser{
		store:  store,
		radius: DefaultEraserRadius,
		erased: make(map[StrokeID]struct{}),
	}
}

// Radius is the current eraser radius.
func (e *Eraser) Radius() float64 { return e.radius }

// SetRadius clamps r into [MinEraserRadius, MaxEraserRadius].
func (e *Eraser) SetRadius(r float64) {
	if math.IsNaN(r) {
		return
	}
	e.radius = math.Min(math.Max(r, MinEraserRadius), MaxEraserRadius)
}

// Active reports whether a gesture is in progress.
func (e *Eraser) Active() bool { return e.active }

// HitTest returns completed strokes with a point within radius of p, in
// drawing order, skipping ids already erased in this gesture.
func (e *Eraser) HitTest(p geometry.Point, radius float64) []StrokeID {
	var hits []StrokeID
	for _, st := range e.store.Completed() {
		if e.excluded(st.ID) {
			continue
		}
		if geometry.AnyWithin(st.Points, p, radius) {
			hits = append(hits, st.ID)
		}
	}
	return hits
}

// HitTestSegment is HitTest against the segment a-b, so strokes between two
// fast pointer samples are not missed.
func (e *Eraser) HitTestSegment(a, b geometry.Point, radius float64) []StrokeID {
	var hits []StrokeID
	for _, st := range e.store.Completed() {
		if e.excluded(st.ID) {
			continue
		}
		if geometry.AnyWithinSegment(st.Points, a, b, radius) {
			hits = append(hits, st.ID)
		}
	}
	return hits
}

// Start begins a gesture at p and erases what the circle test hits.
func (e *Eraser) Start(p geometry.Point) []StrokeID {
	e.active = true
	e.last = p
	clear(e.erased)
	return e.erase(e.HitTest(p, e.radius))
}

// Continue erases along the segment from the previous sample to p. Outside a
// gesture it does nothing.
func (e *Eraser) Continue(p geometry.Point) []StrokeID {
	if !e.active {
		return nil
	}
	hits := e.HitTestSegment(e.last, p, e.radius)
	e.last = p
	return e.erase(hits)
}

// Stop ends the gesture and reports how many strokes it erased in total.
func (e *Eraser) Stop() int {
	n := len(e.erased)
	e.active = false
	clear(e.erased)
	return n
}

func (e *Eraser) erase(hits []StrokeID) []StrokeID {
	if len(hits) == 0 {
		return nil
	}
	removed := e.store.RemoveCompleted(hits)
	for _, id := range removed {
		e.erased[id] = struct{}{}
	}
	return removed
}

func (e *Eraser) excluded(id StrokeID) bool {
	_, ok := e.erased[id]
	return ok
}

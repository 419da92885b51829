package canvas

import (
	"strings"

	"github.com/oklog/ulid/v2"

	"inkboard/geometry"
)

// MinPointDistance is the smallest move, in canvas units, that adds a point
// to a live stroke.
const MinPointDistance = 0.5

// Store owns the three disjoint stroke collections of a room:
// the local in-progress stroke, remote in-progress strokes and the completed
// canvas content. A stroke id is in at most one of them.
type Store struct {
	local  *Stroke
	remote map[StrokeID]*Stroke
	// remoteOrder keeps remote strokes in arrival order for drawing.
	remoteOrder []StrokeID
	completed   []*Stroke
	index       map[StrokeID]int

	// applied holds every id that has ever been completed here. Undo and
	// erasure do not clear it, so a redelivered stroke_end stays a no-op.
	applied map[StrokeID]struct{}

	owner       string
	session     string
	counter     uint64
	minDistance float64
}

// NewStore returns an empty store that allocates local ids for owner under
// a fresh session nonce.
func NewStore(owner string) *Store {
	return &Store{
		remote:      make(map[StrokeID]*Stroke),
		index:       make(map[StrokeID]int),
		applied:     make(map[StrokeID]struct{}),
		owner:       owner,
		session:     strings.ToLower(ulid.Make().String()),
		minDistance: MinPointDistance,
	}
}

// Owner is the user id local strokes are allocated for.
func (s *Store) Owner() string { return s.owner }

// Session is the nonce that keeps this store's ids apart from earlier
// sessions of the same owner.
func (s *Store) Session() string { return s.session }

// StartStroke opens the local stroke with a single point and returns its new
// id. It is a no-op returning ok=false while a local stroke is open.
func (s *Store) StartStroke(p geometry.Point, meta Meta) (id StrokeID, ok bool) {
	if s.local != nil {
		return "", false
	}
	s.counter++
	id = NewStrokeID(s.owner, s.session, s.counter)
	for s.Contains(id) || s.wasApplied(id) {
		s.counter++
		id = NewStrokeID(s.owner, s.session, s.counter)
	}
	meta = meta.Normalize()
	s.local = &Stroke{
		ID:      id,
		OwnerID: s.owner,
		Tool:    meta.Tool,
		Width:   meta.Width,
		Color:   meta.Color,
		Points:  []geometry.Point{p},
	}
	return id, true
}

// StartRemote opens a remote live stroke. It returns false when the id is
// already known anywhere in the store or was completed before.
func (s *Store) StartRemote(id StrokeID, owner string, p geometry.Point, meta Meta) bool {
	if id == "" || s.Contains(id) || s.wasApplied(id) {
		return false
	}
	meta = meta.Normalize()
	s.remote[id] = &Stroke{
		ID:      id,
		OwnerID: owner,
		Tool:    meta.Tool,
		Width:   meta.Width,
		Color:   meta.Color,
		Points:  []geometry.Point{p},
	}
	s.remoteOrder = append(s.remoteOrder, id)
	return true
}

// AppendPoint extends a live stroke, local or remote. It reports whether the
// point was added; points closer than MinPointDistance to the last one are
// dropped.
func (s *Store) AppendPoint(id StrokeID, p geometry.Point) bool {
	st := s.live(id)
	if st == nil {
		return false
	}
	if last, ok := st.Last(); ok && geometry.Distance(last, p) < s.minDistance {
		return false
	}
	st.Points = append(st.Points, p)
	return true
}

// CompleteStroke moves a live stroke into the completed collection and
// returns it. Empty strokes are discarded and nil is returned.
func (s *Store) CompleteStroke(id StrokeID) *Stroke {
	var st *Stroke
	switch {
	case s.local != nil && s.local.ID == id:
		st = s.local
		s.local = nil
	case s.remote[id] != nil:
		st = s.remote[id]
		s.dropRemote(id)
	default:
		return nil
	}
	if len(st.Points) == 0 {
		return nil
	}
	s.appendCompleted(st)
	return st
}

// DiscardRemote drops a remote live stroke without completing it.
func (s *Store) DiscardRemote(id StrokeID) bool {
	if s.remote[id] == nil {
		return false
	}
	s.dropRemote(id)
	return true
}

// AddCompleted appends a finished stroke that did not pass through a live
// collection (a remote stroke_end or the initial fetch). Empty strokes and
// ids completed before, including undone or erased ones, are ignored.
func (s *Store) AddCompleted(st *Stroke) bool {
	if st == nil || st.ID == "" || len(st.Points) == 0 {
		return false
	}
	if _, dup := s.index[st.ID]; dup || s.wasApplied(st.ID) {
		return false
	}
	if s.local != nil && s.local.ID == st.ID {
		return false
	}
	if s.remote[st.ID] != nil {
		s.dropRemote(st.ID)
	}
	s.appendCompleted(st.Clone())
	return true
}

// RemoveCompleted filters ids out of the completed collection and returns
// the ids that were actually present. Live strokes are never touched.
func (s *Store) RemoveCompleted(ids []StrokeID) []StrokeID {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[StrokeID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return nil
	}

	removed := make([]StrokeID, 0, len(drop))
	kept := s.completed[:0]
	for _, st := range s.completed {
		if _, ok := drop[st.ID]; ok {
			removed = append(removed, st.ID)
			continue
		}
		kept = append(kept, st)
	}
	for i := len(kept); i < len(s.completed); i++ {
		s.completed[i] = nil
	}
	s.completed = kept
	s.reindex()
	return removed
}

// ReplaceCompleted swaps the completed collection wholesale; used by undo and
// redo. The store takes ownership of strokes.
func (s *Store) ReplaceCompleted(strokes []*Stroke) {
	s.completed = strokes
	s.reindex()
	for _, st := range strokes {
		// A restored stroke wins over a live copy with the same id.
		s.applied[st.ID] = struct{}{}
		if s.remote[st.ID] != nil {
			s.dropRemote(st.ID)
		}
	}
}

// Completed returns the completed strokes in drawing order. The slice is
// owned by the store and must not be modified.
func (s *Store) Completed() []*Stroke { return s.completed }

// RemoteLive returns remote in-progress strokes in arrival order.
func (s *Store) RemoteLive() []*Stroke {
	out := make([]*Stroke, 0, len(s.remoteOrder))
	for _, id := range s.remoteOrder {
		out = append(out, s.remote[id])
	}
	return out
}

// Local returns the stroke this client is drawing, or nil.
func (s *Store) Local() *Stroke { return s.local }

// Lookup finds a completed stroke by id.
func (s *Store) Lookup(id StrokeID) (*Stroke, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.completed[i], true
}

// Contains reports whether id is present in any collection.
func (s *Store) Contains(id StrokeID) bool {
	if s.local != nil && s.local.ID == id {
		return true
	}
	if s.remote[id] != nil {
		return true
	}
	_, ok := s.index[id]
	return ok
}

// IsRemoteLive reports whether id is a remote in-progress stroke.
func (s *Store) IsRemoteLive(id StrokeID) bool { return s.remote[id] != nil }

func (s *Store) live(id StrokeID) *Stroke {
	if s.local != nil && s.local.ID == id {
		return s.local
	}
	return s.remote[id]
}

func (s *Store) wasApplied(id StrokeID) bool {
	_, ok := s.applied[id]
	return ok
}

func (s *Store) appendCompleted(st *Stroke) {
	s.applied[st.ID] = struct{}{}
	s.index[st.ID] = len(s.completed)
	s.completed = append(s.completed, st)
}

func (s *Store) dropRemote(id StrokeID) {
	delete(s.remote, id)
	for i, rid := range s.remoteOrder {
		if rid == id {
			s.remoteOrder = append(s.remoteOrder[:i], s.remoteOrder[i+1:]...)
			break
		}
	}
}

func (s *Store) reindex() {
	clear(s.index)
	for i, st := range s.completed {
		s.index[st.ID] = i
	}
}

package canvas

// MaxHistory bounds the number of stored snapshots.
const MaxHistory = 50

// History is a linear undo/redo list of deep copies of the completed
// collection. The cursor starts at -1, meaning "before the first snapshot":
// undoing from index 0 restores an empty canvas.
type History struct {
	store     *Store
	snapshots [][]*Stroke
	cursor    int
	limit     int
}

// NewHistory returns an empty history over store, bounded by MaxHistory.
func NewHistory(store *Store) *History {
	return &History{store: store, cursor: -1, limit: MaxHistory}
}

// Commit records the current completed collection, dropping any redo tail
// and evicting the oldest snapshots beyond the limit.
func (h *History) Commit() {
	h.snapshots = append(h.snapshots[:h.cursor+1], cloneStrokes(h.store.Completed()))
	if over := len(h.snapshots) - h.limit; over > 0 {
		for i := 0; i < over; i++ {
			h.snapshots[i] = nil
		}
		h.snapshots = append(h.snapshots[:0], h.snapshots[over:]...)
	}
	h.cursor = len(h.snapshots) - 1
}

// Undo steps back one snapshot. It reports false when there is nothing to
// undo.
func (h *History) Undo() bool {
	if !h.CanUndo() {
		return false
	}
	h.cursor--
	h.restore()
	return true
}

// Redo steps forward one snapshot. It reports false at the tail.
func (h *History) Redo() bool {
	if !h.CanRedo() {
		return false
	}
	h.cursor++
	h.restore()
	return true
}

// CanUndo and CanRedo report whether the cursor can move back or forward.
func (h *History) CanUndo() bool { return h.cursor >= 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.snapshots)-1 }

// Len is the number of stored snapshots.
func (h *History) Len() int { return len(h.snapshots) }

// Reset forgets every snapshot without touching the store.
func (h *History) Reset() {
	h.snapshots = nil
	h.cursor = -1
}

func (h *History) restore() {
	if h.cursor < 0 {
		h.store.ReplaceCompleted(nil)
		return
	}
	h.store.ReplaceCompleted(cloneStrokes(h.snapshots[h.cursor]))
}

// Package collab keeps a room's drawing engine in step with its peers: it
// serializes local operations onto the room topics and merges remote ones
// into the canvas store.
package collab

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"inkboard/canvas"
	"inkboard/geometry"
	"inkboard/protocol"
)

// Publisher sends a body to a topic without waiting for delivery.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Adapter is the network side of one room session. Its receive methods must
// run on the session loop. Remote edits merge by arrival order: a stroke is
// an independent unit, erasure is idempotent and nothing is rebased.
type Adapter struct {
	room    string
	user    string
	store   *canvas.Store
	history *canvas.History
	redraw  canvas.Redrawer
	pub     Publisher
	log     *logrus.Entry
}

// NewAdapter binds a room session for user to pub. Sends are logged with the
// room and user ids.
func NewAdapter(room, user string, store *canvas.Store, history *canvas.History, redraw canvas.Redrawer, pub Publisher) *Adapter {
	return &Adapter{
		room:    room,
		user:    user,
		store:   store,
		history: history,
		redraw:  redraw,
		pub:     pub,
		log: logrus.WithFields(logrus.Fields{
			"room_id": room,
			"user_id": user,
		}),
	}
}

// Send path. Local state already changed; failures are only logged.

func (a *Adapter) StrokeMove(id canvas.StrokeID, p geometry.Point, meta canvas.Meta) {
	pressure := p.Pressure
	a.send(protocol.KindStrokeMove, id, protocol.MovePayload{
		X:        p.X,
		Y:        p.Y,
		Pressure: &pressure,
		Tool:     string(meta.Tool),
		Width:    meta.Width,
		Color:    meta.Color,
	})
}

func (a *Adapter) StrokeEnd(st *canvas.Stroke) {
	a.send(protocol.KindStrokeEnd, st.ID, protocol.EndPayload{
		CurrentStrokes: st.Points,
		Tool:           string(st.Tool),
		Width:          st.Width,
		Color:          st.Color,
	})
}

func (a *Adapter) Erase(ids []canvas.StrokeID) {
	out := make([]protocol.ID, len(ids))
	for i, id := range ids {
		out[i] = protocol.ID(id)
	}
	a.send(protocol.KindClear, "", protocol.ClearPayload{ErasedStrokes: out})
}

func (a *Adapter) Undo(canUndo bool) {
	body, err := json.Marshal(protocol.UndoSignal{CanUndo: canUndo, UserID: protocol.ID(a.user)})
	if err != nil {
		a.log.WithError(err).Error("failed to encode undo signal")
		return
	}
	topic := protocol.UndoTopic(a.room)
	if err := a.pub.Publish(topic, body); err != nil {
		a.log.WithError(err).WithField("topic", topic).Warn("failed to publish undo signal")
	}
}

func (a *Adapter) send(kind protocol.Kind, id canvas.StrokeID, payload any) {
	body, err := protocol.Encode(kind, protocol.ID(a.room), protocol.ID(a.user), protocol.ID(id), payload)
	if err != nil {
		a.log.WithError(err).WithField("stroke_id", id).Error("failed to encode message")
		return
	}
	topic := protocol.Topic(a.room)
	if err := a.pub.Publish(topic, body); err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"topic":     topic,
			"stroke_id": id,
			"type":      kind,
		}).Warn("failed to publish")
	}
}

// HandleMessage applies one body received on the room topic. Malformed
// bodies are logged and dropped; stale or duplicate ids are no-ops.
func (a *Adapter) HandleMessage(body []byte) {
	m, err := protocol.Decode(body)
	if err != nil {
		a.log.WithError(err).Warn("dropping message")
		return
	}
	if m.RoomID != "" && string(m.RoomID) != a.room {
		a.log.WithField("msg_room", m.RoomID).Debug("ignoring message for another room")
		return
	}
	own := string(m.UserID) == a.user
	id := canvas.StrokeID(m.StrokeID)
	entry := a.log.WithFields(logrus.Fields{"stroke_id": id, "from": m.UserID, "type": m.Type})

	switch m.Type {
	case protocol.KindStrokeMove:
		if own {
			return
		}
		p, err := m.Move()
		if err != nil {
			entry.WithError(err).Warn("dropping message")
			return
		}
		a.applyMove(entry, id, string(m.UserID), p)

	case protocol.KindStrokeEnd:
		p, err := m.End()
		if err != nil {
			entry.WithError(err).Warn("dropping message")
			return
		}
		a.store.DiscardRemote(id)
		if !own && len(p.CurrentStrokes) > 0 {
			st := &canvas.Stroke{
				ID:      id,
				OwnerID: string(m.UserID),
				Points:  p.CurrentStrokes,
			}
			meta := metaOf(p.Tool, p.Width, p.Color)
			st.Tool, st.Width, st.Color = meta.Tool, meta.Width, meta.Color
			if a.store.AddCompleted(st) {
				a.history.Commit()
			} else {
				entry.Debug("stale stroke_end")
			}
		}
		a.redraw.RequestRedraw()

	case protocol.KindClear:
		if own {
			return
		}
		p, err := m.Clear()
		if err != nil {
			entry.WithError(err).Warn("dropping message")
			return
		}
		ids := make([]canvas.StrokeID, len(p.ErasedStrokes))
		for i, e := range p.ErasedStrokes {
			ids[i] = canvas.StrokeID(e)
		}
		if removed := a.store.RemoveCompleted(ids); len(removed) > 0 {
			a.history.Commit()
		} else {
			entry.Debug("clear removed nothing")
		}
		a.redraw.RequestRedraw()

	default:
		entry.Debug("ignoring message type")
	}
}

func (a *Adapter) applyMove(entry *logrus.Entry, id canvas.StrokeID, owner string, p protocol.MovePayload) {
	pt := p.Point()
	if a.store.IsRemoteLive(id) {
		if a.store.AppendPoint(id, pt) {
			a.redraw.RequestRedraw()
		}
		return
	}
	if !a.store.StartRemote(id, owner, pt, metaOf(p.Tool, p.Width, p.Color)) {
		entry.Debug("stale stroke_move")
		return
	}
	a.redraw.RequestRedraw()
}

// HandleUndo applies one body received on the undo topic. The local undo for
// our own signal already ran when it was sent.
func (a *Adapter) HandleUndo(body []byte) {
	u, err := protocol.DecodeUndo(body)
	if err != nil {
		a.log.WithError(err).Warn("dropping undo signal")
		return
	}
	if string(u.UserID) == a.user || !u.CanUndo {
		return
	}
	if a.history.Undo() {
		a.redraw.RequestRedraw()
	}
}

// Load merges previously persisted strokes and records a single history
// entry for them.
func (a *Adapter) Load(records []protocol.StrokeRecord) int {
	added := 0
	for _, rec := range records {
		if a.store.AddCompleted(StrokeFromRecord(rec)) {
			added++
		}
	}
	if added > 0 {
		a.history.Commit()
	}
	a.log.WithField("strokes", added).Info("loaded room state")
	a.redraw.RequestRedraw()
	return added
}

// StrokeFromRecord converts a persisted record into a completed stroke.
func StrokeFromRecord(rec protocol.StrokeRecord) *canvas.Stroke {
	meta := metaOf(rec.Payload.Tool, rec.Payload.Width, rec.Payload.Color)
	id := canvas.StrokeID(rec.ID)
	return &canvas.Stroke{
		ID:      id,
		OwnerID: id.Owner(),
		Tool:    meta.Tool,
		Width:   meta.Width,
		Color:   meta.Color,
		Points:  rec.Payload.CurrentStrokes,
	}
}

// StrokesFromRecords converts records, skipping empty ones.
func StrokesFromRecords(recs []protocol.StrokeRecord) []*canvas.Stroke {
	out := make([]*canvas.Stroke, 0, len(recs))
	for _, r := range recs {
		if len(r.Payload.CurrentStrokes) == 0 {
			continue
		}
		out = append(out, StrokeFromRecord(r))
	}
	return out
}

func metaOf(tool string, width float64, color string) canvas.Meta {
	return canvas.Meta{Tool: canvas.ParseTool(tool), Width: width, Color: color}.Normalize()
}

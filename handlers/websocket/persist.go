package websocket

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"inkboard/core"
	"inkboard/protocol"
)

// Persister writes room traffic to a store. It runs as a hub observer, so a
// stroke_end or clear is stored before peers receive it.
type Persister struct {
	store   core.Store
	timeout time.Duration
}

// NewPersister returns a persister writing to store.
func NewPersister(store core.Store) *Persister {
	return &Persister{store: store, timeout: 5 * time.Second}
}

// Observe matches relay.Observer. Only stroke_end and clear reach the store;
// stroke_move and undo signals are relayed without any storage work.
func (p *Persister) Observe(topic, sender string, body []byte) {
	room, undo, ok := protocol.ParseTopic(topic)
	if !ok || undo {
		return
	}
	m, err := protocol.Decode(body)
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": room, "sender": sender}).WithError(err).Warn("Not persisting malformed message")
		return
	}
	if m.Type != protocol.KindStrokeEnd && m.Type != protocol.KindClear {
		return
	}

	log := logrus.WithFields(logrus.Fields{"room_id": room, "sender": sender, "type": m.Type, "user_id": m.UserID})
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var changed bool
	switch m.Type {
	case protocol.KindStrokeEnd:
		changed = p.saveStroke(ctx, log, room, m)
	case protocol.KindClear:
		changed = p.deleteStrokes(ctx, log, room, m)
	}
	if !changed {
		return
	}
	if err := p.store.TouchRoom(ctx, room); err != nil {
		log.WithError(err).Warn("Failed to touch room")
	}
}

func (p *Persister) saveStroke(ctx context.Context, log *logrus.Entry, room string, m *protocol.Message) bool {
	log = log.WithField("stroke_id", m.StrokeID)
	end, err := m.End()
	if err != nil {
		log.WithError(err).Warn("Not persisting malformed stroke_end")
		return false
	}
	if len(end.CurrentStrokes) == 0 {
		log.Debug("Skipping empty stroke")
		return false
	}
	rec := core.StrokeRecord{ID: string(m.StrokeID), RoomID: room, Payload: m.Payload}
	if err := p.store.SaveStroke(ctx, rec); err != nil {
		log.WithError(err).Error("Failed to persist stroke")
		return false
	}
	log.Debug("Stroke persisted")
	return true
}

func (p *Persister) deleteStrokes(ctx context.Context, log *logrus.Entry, room string, m *protocol.Message) bool {
	c, err := m.Clear()
	if err != nil {
		log.WithError(err).Warn("Not persisting malformed clear")
		return false
	}
	ids := make([]string, len(c.ErasedStrokes))
	for i, id := range c.ErasedStrokes {
		ids[i] = string(id)
	}
	n, err := p.store.DeleteStrokes(ctx, room, ids)
	if err != nil {
		log.WithError(err).Error("Failed to delete strokes")
		return false
	}
	log.WithFields(logrus.Fields{"requested": len(ids), "deleted": n}).Debug("Strokes deleted")
	return n > 0
}

package collab

import (
	"encoding/json"
	"testing"

	"inkboard/canvas"
	"inkboard/geometry"
	"inkboard/protocol"
)

type published struct {
	topic string
	body  []byte
}

type recordingPublisher struct{ out []published }

func (p *recordingPublisher) Publish(topic string, body []byte) error {
	p.out = append(p.out, published{topic, append([]byte(nil), body...)})
	return nil
}

type countingRedraw struct{ n int }

func (c *countingRedraw) RequestRedraw() { c.n++ }

type adapterRig struct {
	store  *canvas.Store
	hist   *canvas.History
	redraw *countingRedraw
	pub    *recordingPublisher
	a      *Adapter
}

func newAdapterRig(user string) *adapterRig {
	r := &adapterRig{
		store:  canvas.NewStore(user),
		redraw: &countingRedraw{},
		pub:    &recordingPublisher{},
	}
	r.hist = canvas.NewHistory(r.store)
	r.a = NewAdapter("42", user, r.store, r.hist, r.redraw, r.pub)
	return r
}

func encode(t *testing.T, kind protocol.Kind, user, stroke string, payload any) []byte {
	t.Helper()
	body, err := protocol.Encode(kind, "42", protocol.ID(user), protocol.ID(stroke), payload)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func endPayload(pts ...geometry.Point) protocol.EndPayload {
	return protocol.EndPayload{CurrentStrokes: pts, Tool: "pen", Width: 3, Color: "#ff0000"}
}

func TestAdapter_RemoteStrokeLifecycle(t *testing.T) {
	r := newAdapterRig("me")
	r.a.HandleMessage(encode(t, protocol.KindStrokeMove, "bob", "bob:1", protocol.MovePayload{X: 1, Y: 1}))
	r.a.HandleMessage(encode(t, protocol.KindStrokeMove, "bob", "bob:1", protocol.MovePayload{X: 5, Y: 5}))

	if !r.store.IsRemoteLive("bob:1") {
		t.Fatal("expected live remote stroke")
	}
	if live := r.store.RemoteLive(); len(live[0].Points) != 2 {
		t.Fatalf("live points = %d, want 2", len(live[0].Points))
	}

	r.a.HandleMessage(encode(t, protocol.KindStrokeEnd, "bob", "bob:1", endPayload(geometry.Pt(1, 1), geometry.Pt(5, 5), geometry.Pt(9, 9))))
	if r.store.IsRemoteLive("bob:1") {
		t.Error("live entry left behind")
	}
	st, ok := r.store.Lookup("bob:1")
	if !ok || len(st.Points) != 3 || st.Color != "#ff0000" || st.OwnerID != "bob" {
		t.Fatalf("completed = %+v", st)
	}
	if r.hist.Len() != 1 {
		t.Errorf("history len = %d, want 1", r.hist.Len())
	}
	if r.redraw.n == 0 {
		t.Error("no redraw requested")
	}
}

func TestAdapter_IgnoresOwnEcho(t *testing.T) {
	r := newAdapterRig("me")
	r.a.HandleMessage(encode(t, protocol.KindStrokeMove, "me", "me:1", protocol.MovePayload{X: 1, Y: 1}))
	r.a.HandleMessage(encode(t, protocol.KindStrokeEnd, "me", "me:1", endPayload(geometry.Pt(1, 1))))

	if len(r.store.RemoteLive()) != 0 || len(r.store.Completed()) != 0 {
		t.Fatal("own echo changed the store")
	}
	if r.hist.Len() != 0 {
		t.Error("own echo committed history")
	}
}

func TestAdapter_DuplicateEndIsNoop(t *testing.T) {
	r := newAdapterRig("me")
	body := encode(t, protocol.KindStrokeEnd, "bob", "bob:1", endPayload(geometry.Pt(1, 1)))
	r.a.HandleMessage(body)
	r.a.HandleMessage(body)
	if len(r.store.Completed()) != 1 {
		t.Fatalf("completed = %d, want 1", len(r.store.Completed()))
	}
	if r.hist.Len() != 1 {
		t.Errorf("history len = %d, want 1", r.hist.Len())
	}
}

func TestAdapter_DuplicateEndAfterUndo(t *testing.T) {
	r := newAdapterRig("me")
	body := encode(t, protocol.KindStrokeEnd, "bob", "bob:1", endPayload(geometry.Pt(1, 1)))
	r.a.HandleMessage(body)
	if !r.hist.Undo() {
		t.Fatal("Undo() failed")
	}

	r.a.HandleMessage(body)
	if r.store.Contains("bob:1") {
		t.Error("redelivered stroke_end revived an undone stroke")
	}
	if r.hist.Len() != 1 || !r.hist.CanRedo() {
		t.Errorf("history len = %d, canRedo = %v, want 1, true", r.hist.Len(), r.hist.CanRedo())
	}
	if !r.hist.Redo() || !r.store.Contains("bob:1") {
		t.Error("Redo() did not bring the stroke back")
	}
}

func TestAdapter_EmptyEndWithdrawsLiveStroke(t *testing.T) {
	r := newAdapterRig("me")
	r.a.HandleMessage(encode(t, protocol.KindStrokeMove, "bob", "bob:1", protocol.MovePayload{X: 1, Y: 1}))
	r.a.HandleMessage(encode(t, protocol.KindStrokeEnd, "bob", "bob:1", endPayload()))
	if r.store.IsRemoteLive("bob:1") || r.store.Contains("bob:1") {
		t.Fatal("empty stroke_end should leave nothing behind")
	}
}

func TestAdapter_ClearIsIdempotent(t *testing.T) {
	r := newAdapterRig("me")
	r.a.HandleMessage(encode(t, protocol.KindStrokeEnd, "bob", "bob:1", endPayload(geometry.Pt(1, 1))))
	r.a.HandleMessage(encode(t, protocol.KindStrokeEnd, "bob", "bob:2", endPayload(geometry.Pt(2, 2))))

	clear := encode(t, protocol.KindClear, "bob", "", protocol.ClearPayload{ErasedStrokes: []protocol.ID{"bob:1", "ghost"}})
	r.a.HandleMessage(clear)
	r.a.HandleMessage(clear)

	if got := ids(r.store.Completed()); len(got) != 1 || got[0] != "bob:2" {
		t.Fatalf("completed = %v", got)
	}
	if r.hist.Len() != 3 {
		t.Errorf("history len = %d, want 3", r.hist.Len())
	}

	// A late end for an erased id must not bring it back.
	r.a.HandleMessage(encode(t, protocol.KindStrokeEnd, "bob", "bob:1", endPayload(geometry.Pt(1, 1))))
	if r.store.Contains("bob:1") {
		t.Error("erased stroke resurrected")
	}
}

func TestAdapter_NumericIDs(t *testing.T) {
	r := newAdapterRig("me")
	r.a.HandleMessage([]byte(`{"type":"stroke_end","roomId":42,"userId":7,"strokeId":1001,
		"payload":{"currentStrokes":[[1,2,0.5]]}}`))
	st, ok := r.store.Lookup("1001")
	if !ok {
		t.Fatal("numeric stroke id not stored")
	}
	if st.OwnerID != "7" || st.Width != 2 || st.Color != "#000000" {
		t.Errorf("stroke = %+v", st)
	}
}

func TestAdapter_DropsMalformedAndForeign(t *testing.T) {
	r := newAdapterRig("me")
	for _, body := range []string{
		`not json`,
		`{"roomId":"42"}`,
		`{"type":"stroke_move","roomId":"42","userId":"bob","payload":{"x":1,"y":1}}`,
		`{"type":"stroke_end","roomId":"42","userId":"bob","strokeId":"bob:1","payload":null}`,
		`{"type":"stroke_end","roomId":"other","userId":"bob","strokeId":"bob:1","payload":{"currentStrokes":[[1,1,0.5]]}}`,
		`{"type":"cursor","roomId":"42","userId":"bob","payload":{}}`,
	} {
		r.a.HandleMessage([]byte(body))
	}
	if len(r.store.Completed()) != 0 || len(r.store.RemoteLive()) != 0 {
		t.Fatal("malformed or foreign message changed the store")
	}
}

func TestAdapter_HandleUndo(t *testing.T) {
	r := newAdapterRig("me")
	r.a.HandleMessage(encode(t, protocol.KindStrokeEnd, "bob", "bob:1", endPayload(geometry.Pt(1, 1))))
	r.a.HandleMessage(encode(t, protocol.KindStrokeEnd, "bob", "bob:2", endPayload(geometry.Pt(2, 2))))

	signal := func(canUndo bool, user string) []byte {
		b, _ := json.Marshal(protocol.UndoSignal{CanUndo: canUndo, UserID: protocol.ID(user)})
		return b
	}

	r.a.HandleUndo(signal(true, "me"))
	r.a.HandleUndo(signal(false, "bob"))
	r.a.HandleUndo([]byte(`garbage`))
	if len(r.store.Completed()) != 2 {
		t.Fatal("undo applied for own, false or malformed signal")
	}

	r.a.HandleUndo(signal(true, "bob"))
	if got := ids(r.store.Completed()); len(got) != 1 || got[0] != "bob:1" {
		t.Fatalf("after undo = %v", got)
	}
}

func TestAdapter_SendPath(t *testing.T) {
	r := newAdapterRig("me")
	r.a.StrokeMove("me:1", geometry.Point{X: 3, Y: 4, Pressure: 0.8}, canvas.Meta{Tool: canvas.ToolPen, Width: 2, Color: "#000000"})
	r.a.StrokeEnd(&canvas.Stroke{ID: "me:1", Tool: canvas.ToolPen, Width: 2, Color: "#000000", Points: []geometry.Point{geometry.Pt(3, 4)}})
	r.a.Erase([]canvas.StrokeID{"bob:1"})
	r.a.Undo(true)

	if len(r.pub.out) != 4 {
		t.Fatalf("published %d bodies, want 4", len(r.pub.out))
	}
	for _, p := range r.pub.out[:3] {
		if p.topic != "room.42" {
			t.Errorf("topic = %q", p.topic)
		}
	}
	if r.pub.out[3].topic != "room.42.undo" {
		t.Errorf("undo topic = %q", r.pub.out[3].topic)
	}

	m, err := protocol.Decode(r.pub.out[0].body)
	if err != nil {
		t.Fatal(err)
	}
	mv, err := m.Move()
	if err != nil {
		t.Fatal(err)
	}
	if m.UserID != "me" || m.StrokeID != "me:1" || mv.Point() != (geometry.Point{X: 3, Y: 4, Pressure: 0.8}) {
		t.Errorf("move = %+v %+v", m, mv)
	}

	m, _ = protocol.Decode(r.pub.out[2].body)
	cl, err := m.Clear()
	if err != nil || len(cl.ErasedStrokes) != 1 || cl.ErasedStrokes[0] != "bob:1" {
		t.Errorf("clear = %+v, %v", cl, err)
	}

	u, err := protocol.DecodeUndo(r.pub.out[3].body)
	if err != nil || !u.CanUndo || u.UserID != "me" {
		t.Errorf("undo = %+v, %v", u, err)
	}
}

func TestAdapter_LoadCommitsOnce(t *testing.T) {
	r := newAdapterRig("me")
	recs := []protocol.StrokeRecord{
		{ID: "bob:1", Payload: endPayload(geometry.Pt(1, 1))},
		{ID: "bob:2", Payload: endPayload(geometry.Pt(2, 2))},
		{ID: "bob:3", Payload: endPayload()},
	}
	if n := r.a.Load(recs); n != 2 {
		t.Fatalf("loaded %d, want 2", n)
	}
	if r.hist.Len() != 1 {
		t.Errorf("history len = %d, want 1", r.hist.Len())
	}
	if r.a.Load(recs) != 0 || r.hist.Len() != 1 {
		t.Error("reloading the same records should be a no-op")
	}
}

func ids(strokes []*canvas.Stroke) []canvas.StrokeID {
	out := make([]canvas.StrokeID, len(strokes))
	for i, s := range strokes {
		out[i] = s.ID
	}
	return out
}

package websocket

import (
	"context"
	"testing"

	"inkboard/core"
	"inkboard/geometry"
	"inkboard/protocol"
	"inkboard/relay"
	"inkboard/stores/memory"
)

func persisted(t *testing.T, store core.Store, room string) []string {
	t.Helper()
	recs, err := store.ListStrokes(context.Background(), room)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

func mustEncode(t *testing.T, kind protocol.Kind, stroke string, payload any) []byte {
	t.Helper()
	b, err := protocol.Encode(kind, "r1", "u", protocol.ID(stroke), payload)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestPersisterStoresBeforeFanOut(t *testing.T) {
	store := memory.NewStore()
	hub := relay.NewHub()
	hub.Observe(NewPersister(store).Observe)
	topic := protocol.Topic("r1")

	var seen []string
	hub.Subscribe(topic, "peer", func([]byte) { seen = persisted(t, store, "r1") })

	end := protocol.EndPayload{CurrentStrokes: []geometry.Point{geometry.Pt(1, 2)}, Width: 3}
	hub.Publish(topic, "sender", mustEncode(t, protocol.KindStrokeEnd, "u:1", end))
	if len(seen) != 1 || seen[0] != "u:1" {
		t.Fatalf("peer saw store = %v", seen)
	}

	// Replays are upserts.
	hub.Publish(topic, "sender", mustEncode(t, protocol.KindStrokeEnd, "u:1", end))
	hub.Publish(topic, "sender", mustEncode(t, protocol.KindStrokeEnd, "u:2", end))
	if got := persisted(t, store, "r1"); len(got) != 2 {
		t.Fatalf("stored = %v", got)
	}

	erase := protocol.ClearPayload{ErasedStrokes: []protocol.ID{"u:1", "missing"}}
	hub.Publish(topic, "sender", mustEncode(t, protocol.KindClear, "", erase))
	hub.Publish(topic, "sender", mustEncode(t, protocol.KindClear, "", erase))
	if got := persisted(t, store, "r1"); len(got) != 1 || got[0] != "u:2" {
		t.Fatalf("after clear = %v", got)
	}
}

func TestPersisterIgnoresNonStrokes(t *testing.T) {
	store := memory.NewStore()
	p := NewPersister(store)

	p.Observe(protocol.Topic("r1"), "s", []byte(`not json`))
	p.Observe(protocol.Topic("r1"), "s", mustEncode(t, protocol.KindStrokeMove, "u:1", protocol.MovePayload{X: 1, Y: 1}))
	p.Observe(protocol.Topic("r1"), "s", mustEncode(t, protocol.KindStrokeEnd, "u:2", protocol.EndPayload{}))
	p.Observe(protocol.UndoTopic("r1"), "s", []byte(`{"canUndo":true}`))
	p.Observe("elsewhere", "s", mustEncode(t, protocol.KindStrokeEnd, "u:3", protocol.EndPayload{}))

	if got := persisted(t, store, "r1"); len(got) != 0 {
		t.Fatalf("stored = %v", got)
	}
	rooms, err := store.ListRooms(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 0 {
		t.Errorf("rooms = %+v, want none touched", rooms)
	}
}

// countingStore records every call that reaches the backend.
type countingStore struct {
	core.Store
	calls int
}

func (c *countingStore) TouchRoom(ctx context.Context, roomID string) error {
	c.calls++
	return c.Store.TouchRoom(ctx, roomID)
}

func (c *countingStore) SaveStroke(ctx context.Context, rec core.StrokeRecord) error {
	c.calls++
	return c.Store.SaveStroke(ctx, rec)
}

func (c *countingStore) DeleteStrokes(ctx context.Context, roomID string, ids []string) (int, error) {
	c.calls++
	return c.Store.DeleteStrokes(ctx, roomID, ids)
}

func TestPersisterSkipsStoreForMoves(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	hub := relay.NewHub()
	hub.Observe(NewPersister(store).Observe)
	topic := protocol.Topic("r1")

	for i := 0; i < 50; i++ {
		hub.Publish(topic, "sender", mustEncode(t, protocol.KindStrokeMove, "u:1", protocol.MovePayload{X: float64(i), Y: 1}))
	}
	hub.Publish(protocol.UndoTopic("r1"), "sender", []byte(`{"canUndo":true}`))
	if store.calls != 0 {
		t.Fatalf("moves and undo made %d store calls", store.calls)
	}

	end := protocol.EndPayload{CurrentStrokes: []geometry.Point{geometry.Pt(1, 1)}}
	hub.Publish(topic, "sender", mustEncode(t, protocol.KindStrokeEnd, "u:1", end))
	if store.calls != 2 {
		t.Errorf("stroke_end made %d store calls, want save and touch", store.calls)
	}
	rooms, _ := store.ListRooms(context.Background())
	if len(rooms) != 1 || rooms[0].ID != "r1" {
		t.Errorf("rooms = %+v", rooms)
	}
}

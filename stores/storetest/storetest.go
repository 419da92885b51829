// Package storetest is the shared behavior suite every core.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"inkboard/core"
)

// Run exercises newStore against the core.Store contract. Each subtest gets
// a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Run("EmptyRoom", func(t *testing.T) { testEmptyRoom(t, newStore(t)) })
	t.Run("SaveKeepsOrder", func(t *testing.T) { testSaveKeepsOrder(t, newStore(t)) })
	t.Run("SaveIsUpsert", func(t *testing.T) { testSaveIsUpsert(t, newStore(t)) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDeleteIsIdempotent(t, newStore(t)) })
	t.Run("RoomsAreIsolated", func(t *testing.T) { testRoomsAreIsolated(t, newStore(t)) })
	t.Run("Registry", func(t *testing.T) { testRegistry(t, newStore(t)) })
	t.Run("ConcurrentSaves", func(t *testing.T) { testConcurrentSaves(t, newStore(t)) })
}

func record(room, id string, x float64) core.StrokeRecord {
	return core.StrokeRecord{
		ID:      id,
		RoomID:  room,
		Payload: json.RawMessage(fmt.Sprintf(`{"currentStrokes":[[%g,1,0.5]],"tool":"pen","width":2,"color":"#000000"}`, x)),
	}
}

func ids(recs []core.StrokeRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testEmptyRoom(t *testing.T, s core.Store) {
	recs, err := s.ListStrokes(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListStrokes() failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("ListStrokes() = %d records, want 0", len(recs))
	}
}

func testSaveKeepsOrder(t *testing.T, s core.Store) {
	ctx := context.Background()
	for _, id := range []string{"b:1", "a:1", "c:7"} {
		if err := s.SaveStroke(ctx, record("r", id, 1)); err != nil {
			t.Fatalf("SaveStroke(%s) failed: %v", id, err)
		}
	}
	recs, err := s.ListStrokes(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(recs); !equal(got, []string{"b:1", "a:1", "c:7"}) {
		t.Errorf("order = %v", got)
	}
	var p struct {
		CurrentStrokes [][]float64 `json:"currentStrokes"`
	}
	if err := json.Unmarshal(recs[0].Payload, &p); err != nil || len(p.CurrentStrokes) != 1 {
		t.Errorf("payload = %s (%v)", recs[0].Payload, err)
	}
}

func testSaveIsUpsert(t *testing.T, s core.Store) {
	ctx := context.Background()
	_ = s.SaveStroke(ctx, record("r", "a:1", 1))
	_ = s.SaveStroke(ctx, record("r", "a:2", 2))
	if err := s.SaveStroke(ctx, record("r", "a:1", 9)); err != nil {
		t.Fatalf("second SaveStroke() failed: %v", err)
	}
	recs, _ := s.ListStrokes(ctx, "r")
	if got := ids(recs); !equal(got, []string{"a:1", "a:2"}) {
		t.Fatalf("order after upsert = %v", got)
	}
	var p struct {
		CurrentStrokes [][]float64 `json:"currentStrokes"`
	}
	_ = json.Unmarshal(recs[0].Payload, &p)
	if len(p.CurrentStrokes) != 1 || p.CurrentStrokes[0][0] != 9 {
		t.Errorf("payload not replaced: %s", recs[0].Payload)
	}
}

func testDeleteIsIdempotent(t *testing.T, s core.Store) {
	ctx := context.Background()
	_ = s.SaveStroke(ctx, record("r", "a:1", 1))
	_ = s.SaveStroke(ctx, record("r", "a:2", 2))

	n, err := s.DeleteStrokes(ctx, "r", []string{"a:1", "ghost"})
	if err != nil {
		t.Fatalf("DeleteStrokes() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteStrokes() = %d, want 1", n)
	}
	n, err = s.DeleteStrokes(ctx, "r", []string{"a:1"})
	if err != nil || n != 0 {
		t.Errorf("repeat DeleteStrokes() = %d, %v", n, err)
	}
	recs, _ := s.ListStrokes(ctx, "r")
	if got := ids(recs); !equal(got, []string{"a:2"}) {
		t.Errorf("left = %v", got)
	}
}

func testRoomsAreIsolated(t *testing.T, s core.Store) {
	ctx := context.Background()
	_ = s.SaveStroke(ctx, record("r1", "a:1", 1))
	_ = s.SaveStroke(ctx, record("r2", "a:1", 2))

	if n, _ := s.DeleteStrokes(ctx, "r2", []string{"a:1"}); n != 1 {
		t.Fatalf("delete in r2 = %d", n)
	}
	recs, _ := s.ListStrokes(ctx, "r1")
	if len(recs) != 1 {
		t.Errorf("r1 lost its stroke")
	}
}

func testRegistry(t *testing.T, s core.Store) {
	ctx := context.Background()
	if err := s.TouchRoom(ctx, ""); err == nil {
		t.Error("TouchRoom(\"\") should fail")
	}
	if err := s.TouchRoom(ctx, "r1"); err != nil {
		t.Fatalf("TouchRoom() failed: %v", err)
	}
	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != "r1" || rooms[0].LastActive == 0 {
		t.Fatalf("ListRooms() = %+v", rooms)
	}

	_ = s.SaveStroke(ctx, record("r1", "a:1", 1))
	if err := s.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRoom() failed: %v", err)
	}
	rooms, _ = s.ListRooms(ctx)
	if len(rooms) != 0 {
		t.Errorf("rooms after delete = %+v", rooms)
	}
	if recs, _ := s.ListStrokes(ctx, "r1"); len(recs) != 0 {
		t.Errorf("strokes survived DeleteRoom: %d", len(recs))
	}
	if err := s.DeleteRoom(ctx, "r1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteRoom() = %v, want ErrNotFound", err)
	}
}

func testConcurrentSaves(t *testing.T, s core.Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.SaveStroke(ctx, record("r", fmt.Sprintf("u:%d", i), float64(i))); err != nil {
				t.Errorf("SaveStroke() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	recs, _ := s.ListStrokes(ctx, "r")
	if len(recs) != 10 {
		t.Errorf("saved %d, want 10", len(recs))
	}
}

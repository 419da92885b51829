package autosave

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"inkboard/core"
	"inkboard/stores/memory"
)

// fakeStore keeps strokes in memory and counts autosaves per room.
type fakeStore struct {
	core.Store
	core.SnapshotStore
	interval int
	data     map[string]string
	writes   map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		Store:    memory.NewStore(),
		interval: 300,
		data:     map[string]string{},
		writes:   map[string]int{},
	}
}

func (f *fakeStore) GetRoomSettings(ctx context.Context, roomID string) (*core.RoomSettings, error) {
	s := core.DefaultRoomSettings(roomID)
	s.AutoSaveInterval = f.interval
	return s, nil
}

func (f *fakeStore) UpsertAutosave(ctx context.Context, roomID string, data []byte) (string, error) {
	f.data[roomID] = string(data)
	f.writes[roomID]++
	return "auto-" + roomID, nil
}

func TestRunOnce(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	store.SaveStroke(ctx, core.StrokeRecord{ID: "u:1", RoomID: "r1", Payload: json.RawMessage(`{"currentStrokes":[]}`)})
	store.TouchRoom(ctx, "r1")

	clock := time.Now()
	s := New(store)
	s.now = func() time.Time { return clock }

	if n, err := s.RunOnce(ctx); err != nil || n != 1 {
		t.Fatalf("first pass = %d, %v", n, err)
	}
	if !strings.Contains(store.data["r1"], `"u:1"`) {
		t.Errorf("autosave data = %s", store.data["r1"])
	}

	start := clock
	clock = start.Add(time.Minute)
	if n, _ := s.RunOnce(ctx); n != 0 {
		t.Errorf("idle room saved again")
	}

	time.Sleep(2 * time.Millisecond)
	store.TouchRoom(ctx, "r1")
	clock = start.Add(2 * time.Minute)
	if n, _ := s.RunOnce(ctx); n != 0 {
		t.Errorf("saved before the interval elapsed")
	}

	clock = start.Add(6 * time.Minute)
	if n, _ := s.RunOnce(ctx); n != 1 {
		t.Errorf("room not saved after the interval")
	}
	if store.writes["r1"] != 2 {
		t.Errorf("writes = %d", store.writes["r1"])
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(newFakeStore())
	if err := s.Start("not a schedule"); err == nil {
		s.Stop()
		t.Fatal("expected an error")
	}
	if err := s.Start("@every 1h"); err != nil {
		t.Fatal(err)
	}
	s.Stop()
}

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"inkboard/core"
	"inkboard/stores/storetest"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store { return setupTestDB(t) })
}

func TestNewStore_TablesCreated(t *testing.T) {
	s := setupTestDB(t)
	for _, table := range []string{"strokes", "rooms", "snapshots", "room_settings"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not created: %v", table, err)
		}
	}
}

func TestNewStore_InMemory(t *testing.T) {
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	if err := s.SaveStroke(ctx, core.StrokeRecord{ID: "a:1", RoomID: "r", Payload: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}
	if recs, _ := s.ListStrokes(ctx, "r"); len(recs) != 1 {
		t.Fatalf("in-memory store lost the stroke")
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	id, err := s.CreateSnapshot(ctx, "r", "first", "desc", "thumb", "alice", []byte(`[1]`))
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("snapshot id %q is not a ULID", id)
	}

	snap, err := s.GetSnapshot(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Name != "first" || snap.CreatedBy != "alice" || string(snap.Data) != "[1]" {
		t.Errorf("GetSnapshot() = %+v", snap)
	}

	if err := s.UpdateSnapshotMetadata(ctx, id, "renamed", ""); err != nil {
		t.Fatal(err)
	}
	list, _ := s.ListSnapshots(ctx, "r")
	if len(list) != 1 || list[0].Name != "renamed" || list[0].Data != nil {
		t.Errorf("ListSnapshots() = %+v", list)
	}

	if err := s.DeleteSnapshot(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSnapshot(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetSnapshot() after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSnapshot(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteSnapshot() twice = %v", err)
	}
	if err := s.UpdateSnapshotMetadata(ctx, id, "x", "y"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateSnapshotMetadata() missing = %v", err)
	}
}

func TestCreateSnapshot_EvictsOldest(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	if err := s.UpdateRoomSettings(ctx, "r", 2, 60); err != nil {
		t.Fatal(err)
	}

	first, _ := s.CreateSnapshot(ctx, "r", "1", "", "", "", []byte(`1`))
	_, _ = s.CreateSnapshot(ctx, "r", "2", "", "", "", []byte(`2`))
	_, _ = s.CreateSnapshot(ctx, "r", "3", "", "", "", []byte(`3`))

	list, _ := s.ListSnapshots(ctx, "r")
	if len(list) != 2 {
		t.Fatalf("kept %d snapshots, want 2", len(list))
	}
	for _, snap := range list {
		if snap.ID == first {
			t.Error("oldest snapshot was not evicted")
		}
	}
}

func TestRoomSettingsDefaults(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	got, err := s.GetRoomSettings(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxSnapshots != core.DefaultMaxSnapshots || got.AutoSaveInterval != core.DefaultAutoSaveInterval {
		t.Errorf("defaults = %+v", got)
	}

	_ = s.UpdateRoomSettings(ctx, "fresh", 3, 120)
	_ = s.UpdateRoomSettings(ctx, "fresh", 4, 180)
	got, _ = s.GetRoomSettings(ctx, "fresh")
	if got.MaxSnapshots != 4 || got.AutoSaveInterval != 180 {
		t.Errorf("updated = %+v", got)
	}
}

func TestUpsertAutosave(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	id1, err := s.UpsertAutosave(ctx, "r", []byte(`[1]`))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.UpsertAutosave(ctx, "r", []byte(`[2]`))
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("autosave ids differ: %s %s", id1, id2)
	}
	snap, _ := s.GetSnapshot(ctx, id1)
	if string(snap.Data) != "[2]" || snap.CreatedBy != core.AutosaveCreator {
		t.Errorf("autosave = %+v", snap)
	}
	if list, _ := s.ListSnapshots(ctx, "r"); len(list) != 1 {
		t.Errorf("snapshots = %d, want 1", len(list))
	}
}

func TestDeleteRoom_RemovesSnapshots(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	id, _ := s.CreateSnapshot(ctx, "r", "n", "", "", "", []byte(`1`))
	_ = s.UpdateRoomSettings(ctx, "r", 5, 60)

	if err := s.DeleteRoom(ctx, "r"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSnapshot(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("snapshot survived DeleteRoom: %v", err)
	}
	got, _ := s.GetRoomSettings(ctx, "r")
	if got.MaxSnapshots != core.DefaultMaxSnapshots {
		t.Errorf("settings survived DeleteRoom: %+v", got)
	}
}

package core

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by stores for missing rooms, strokes or snapshots.
var ErrNotFound = errors.New("not found")

type (
	// StrokeRecord is one persisted completed stroke. Payload holds the
	// stroke_end payload as received, so stores never reinterpret it.
	StrokeRecord struct {
		ID        string          `json:"id"`
		RoomID    string          `json:"roomId"`
		Payload   json.RawMessage `json:"payload"`
		CreatedAt int64           `json:"createdAt"`
	}

	// StrokeStore persists a room's completed strokes. SaveStroke is an
	// upsert that keeps the first CreatedAt; DeleteStrokes ignores unknown
	// ids and reports how many rows went away.
	StrokeStore interface {
		ListStrokes(ctx context.Context, roomID string) ([]StrokeRecord, error)
		SaveStroke(ctx context.Context, rec StrokeRecord) error
		DeleteStrokes(ctx context.Context, roomID string, ids []string) (int, error)
	}

	Room struct {
		ID         string
		LastActive int64
	}

	RoomRegistry interface {
		ListRooms(ctx context.Context) ([]Room, error)
		TouchRoom(ctx context.Context, roomID string) error
		DeleteRoom(ctx context.Context, roomID string) error
	}

	// Store is what every storage backend provides.
	Store interface {
		StrokeStore
		RoomRegistry
	}

	Snapshot struct {
		ID          string `json:"id"`
		RoomID      string `json:"room_id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Thumbnail   string `json:"thumbnail"`
		CreatedBy   string `json:"created_by"`
		CreatedAt   int64  `json:"created_at"`
		Data        []byte `json:"data,omitempty"`
	}

	RoomSettings struct {
		RoomID           string `json:"room_id"`
		MaxSnapshots     int    `json:"max_snapshots"`
		AutoSaveInterval int    `json:"auto_save_interval"`
	}

	// SnapshotStore keeps named copies of a room's board. Only some backends
	// provide it.
	SnapshotStore interface {
		CreateSnapshot(ctx context.Context, roomID, name, description, thumbnail, createdBy string, data []byte) (string, error)
		ListSnapshots(ctx context.Context, roomID string) ([]Snapshot, error)
		GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
		DeleteSnapshot(ctx context.Context, id string) error
		UpdateSnapshotMetadata(ctx context.Context, id, name, description string) error
		GetRoomSettings(ctx context.Context, roomID string) (*RoomSettings, error)
		UpdateRoomSettings(ctx context.Context, roomID string, maxSnapshots, autoSaveInterval int) error
		// UpsertAutosave replaces the room's single autosave snapshot.
		UpsertAutosave(ctx context.Context, roomID string, data []byte) (string, error)
	}
)

// Defaults applied when a room has no stored settings.
const (
	DefaultMaxSnapshots     = 10
	DefaultAutoSaveInterval = 300
	// AutosaveCreator marks snapshots written by UpsertAutosave.
	AutosaveCreator = "autosave"
)

// DefaultRoomSettings returns the settings a room starts with.
func DefaultRoomSettings(roomID string) *RoomSettings {
	return &RoomSettings{
		RoomID:           roomID,
		MaxSnapshots:     DefaultMaxSnapshots,
		AutoSaveInterval: DefaultAutoSaveInterval,
	}
}

package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"inkboard/core"
	"inkboard/handlers/api/strokes"
)

// Lower bounds accepted by HandleUpdateRoomSettings.
const (
	MinMaxSnapshots     = 1
	MinAutoSaveInterval = 60
)

type (
	CreateSnapshotRequest struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Thumbnail   string `json:"thumbnail"`
		CreatedBy   string `json:"created_by"`
		// Data is optional. When empty the room's persisted strokes are captured.
		Data string `json:"data"`
	}

	CreateSnapshotResponse struct {
		ID string `json:"id"`
	}

	UpdateSnapshotRequest struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	UpdateSettingsRequest struct {
		MaxSnapshots     int `json:"max_snapshots"`
		AutoSaveInterval int `json:"auto_save_interval"`
	}

	AutosaveRequest struct {
		Data string `json:"data"`
	}

	// Store is a backend that keeps both strokes and snapshots.
	Store interface {
		core.Store
		core.SnapshotStore
	}
)

// Capture serializes roomID's persisted strokes in the initial-state shape.
func Capture(ctx context.Context, store core.StrokeStore, roomID string) ([]byte, error) {
	entries, err := strokes.Board(ctx, store, roomID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entries)
}

func snapshotData(ctx context.Context, store core.StrokeStore, roomID, data string) ([]byte, error) {
	if data != "" {
		return []byte(data), nil
	}
	return Capture(ctx, store, roomID)
}

// notFoundOr writes 404 for core.ErrNotFound and 500 otherwise.
func notFoundOr(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, core.ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	http.Error(w, "Failed to access "+what, http.StatusInternalServerError)
}

// HandleCreateSnapshot creates a new snapshot for a room
func HandleCreateSnapshot(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		log := logrus.WithField("room_id", roomID)

		var req CreateSnapshotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.WithError(err).Warn("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		data, err := snapshotData(r.Context(), store, roomID, req.Data)
		if err != nil {
			log.WithError(err).Error("Failed to capture board")
			http.Error(w, "Failed to create snapshot", http.StatusInternalServerError)
			return
		}

		id, err := store.CreateSnapshot(r.Context(), roomID, req.Name, req.Description, req.Thumbnail, req.CreatedBy, data)
		if err != nil {
			log.WithError(err).Error("Failed to create snapshot")
			http.Error(w, "Failed to create snapshot", http.StatusInternalServerError)
			return
		}

		log.WithField("snapshot_id", id).Info("Snapshot created")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateSnapshotResponse{ID: id})
	}
}

// HandleListSnapshots lists all snapshots for a room
func HandleListSnapshots(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		list, err := store.ListSnapshots(r.Context(), roomID)
		if err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Error("Failed to list snapshots")
			http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []core.Snapshot{}
		}
		render.JSON(w, r, list)
	}
}

// HandleGetSnapshotCount returns the count of snapshots for a room
func HandleGetSnapshotCount(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		list, err := store.ListSnapshots(r.Context(), roomID)
		if err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Error("Failed to list snapshots")
			http.Error(w, "Failed to get snapshot count", http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, map[string]int{"count": len(list)})
	}
}

// HandleGetSnapshot retrieves a specific snapshot
func HandleGetSnapshot(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID := chi.URLParam(r, "snapshotId")

		snapshot, err := store.GetSnapshot(r.Context(), snapshotID)
		if err != nil {
			logrus.WithField("snapshot_id", snapshotID).WithError(err).Warn("Failed to get snapshot")
			notFoundOr(w, err, "snapshot")
			return
		}
		render.JSON(w, r, snapshot)
	}
}

// HandleDeleteSnapshot deletes a snapshot
func HandleDeleteSnapshot(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID := chi.URLParam(r, "snapshotId")

		if err := store.DeleteSnapshot(r.Context(), snapshotID); err != nil {
			logrus.WithField("snapshot_id", snapshotID).WithError(err).Error("Failed to delete snapshot")
			notFoundOr(w, err, "snapshot")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleUpdateSnapshot updates a snapshot's metadata
func HandleUpdateSnapshot(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID := chi.URLParam(r, "snapshotId")
		log := logrus.WithField("snapshot_id", snapshotID)

		var req UpdateSnapshotRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.WithError(err).Warn("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := store.UpdateSnapshotMetadata(r.Context(), snapshotID, req.Name, req.Description); err != nil {
			log.WithError(err).Error("Failed to update snapshot")
			notFoundOr(w, err, "snapshot")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleGetRoomSettings retrieves room settings
func HandleGetRoomSettings(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		settings, err := store.GetRoomSettings(r.Context(), roomID)
		if err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Error("Failed to get room settings")
			http.Error(w, "Failed to get room settings", http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, settings)
	}
}

// HandleUpdateRoomSettings updates room settings. Out-of-range values fall
// back to the defaults.
func HandleUpdateRoomSettings(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		log := logrus.WithField("room_id", roomID)

		var req UpdateSettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.WithError(err).Warn("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if req.MaxSnapshots < MinMaxSnapshots {
			req.MaxSnapshots = core.DefaultMaxSnapshots
		}
		if req.AutoSaveInterval < MinAutoSaveInterval {
			req.AutoSaveInterval = core.DefaultAutoSaveInterval
		}

		if err := store.UpdateRoomSettings(r.Context(), roomID, req.MaxSnapshots, req.AutoSaveInterval); err != nil {
			log.WithError(err).Error("Failed to update room settings")
			http.Error(w, "Failed to update room settings", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleUpsertAutosaveSnapshot replaces the room's autosave snapshot. An
// empty body captures the persisted strokes.
func HandleUpsertAutosaveSnapshot(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		log := logrus.WithField("room_id", roomID)

		var req AutosaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			log.WithError(err).Warn("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		data, err := snapshotData(r.Context(), store, roomID, req.Data)
		if err != nil {
			log.WithError(err).Error("Failed to capture board")
			http.Error(w, "Failed to save autosave", http.StatusInternalServerError)
			return
		}

		id, err := store.UpsertAutosave(r.Context(), roomID, data)
		if err != nil {
			log.WithError(err).Error("Failed to save autosave")
			http.Error(w, "Failed to save autosave", http.StatusInternalServerError)
			return
		}
		log.WithField("snapshot_id", id).Debug("Autosave stored")
		render.JSON(w, r, CreateSnapshotResponse{ID: id})
	}
}

// HandleDeleteRoom removes a room with its strokes and, where the backend
// keeps them, its snapshots and settings.
func HandleDeleteRoom(store core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		if err := store.DeleteRoom(r.Context(), roomID); err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to delete room")
			notFoundOr(w, err, "room")
			return
		}
		logrus.WithField("room_id", roomID).Info("Room deleted")
		w.WriteHeader(http.StatusNoContent)
	}
}

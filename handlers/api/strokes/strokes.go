// Package strokes serves a room's persisted strokes as its initial state.
package strokes

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"inkboard/core"
	"inkboard/protocol"
)

// Entry is one element of the initial-state response. The payload is passed
// through exactly as it was persisted.
type Entry struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Board lists roomID's strokes in creation order.
func Board(ctx context.Context, store core.StrokeStore, roomID string) ([]Entry, error) {
	recs, err := store.ListStrokes(ctx, roomID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, Entry{ID: rec.ID, Payload: rec.Payload})
	}
	return entries, nil
}

// Records is Board decoded for the engine. Entries whose payload no longer
// parses are skipped.
func Records(ctx context.Context, store core.StrokeStore, roomID string) ([]protocol.StrokeRecord, error) {
	entries, err := Board(ctx, store, roomID)
	if err != nil {
		return nil, err
	}
	recs := make([]protocol.StrokeRecord, 0, len(entries))
	for _, e := range entries {
		var p protocol.EndPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			logrus.WithFields(logrus.Fields{"room_id": roomID, "stroke_id": e.ID}).WithError(err).Warn("Skipping unreadable stroke")
			continue
		}
		recs = append(recs, protocol.StrokeRecord{ID: protocol.ID(e.ID), Payload: p})
	}
	return recs, nil
}

func serve(w http.ResponseWriter, r *http.Request, store core.StrokeStore, roomID string) {
	log := logrus.WithField("room_id", roomID)
	if roomID == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}
	entries, err := Board(r.Context(), store, roomID)
	if err != nil {
		log.WithError(err).Error("Failed to list strokes")
		http.Error(w, "Failed to list strokes", http.StatusInternalServerError)
		return
	}
	log.WithField("strokes", len(entries)).Debug("Served initial state")
	render.JSON(w, r, entries)
}

// HandleList serves GET /api/rooms/{roomId}/strokes.
func HandleList(store core.StrokeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, store, chi.URLParam(r, "roomId"))
	}
}

// HandleDraw serves GET /api/draw?room=<id>.
func HandleDraw(store core.StrokeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, store, r.URL.Query().Get("room"))
	}
}

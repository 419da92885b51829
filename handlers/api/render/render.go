// Package render draws a room's persisted board as PNG or PDF.
package render

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"inkboard/canvas"
	"inkboard/collab"
	"inkboard/core"
	"inkboard/export"
	"inkboard/handlers/api/strokes"
	"inkboard/raster"
)

// Image size bounds, in pixels.
const (
	DefaultWidth  = 1024
	DefaultHeight = 768
	MaxSize       = 4096
)

// View is the parsed query of a render request.
type View struct {
	Width, Height int
	Viewport      *canvas.Viewport
	Options       canvas.RenderOptions
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return min(v, MaxSize)
}

func floatParam(r *http.Request, name string, def float64) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	if err != nil {
		return def
	}
	return v
}

func boolParam(r *http.Request, name string, def bool) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// ParseView reads w, h, x, y, scale, dark and grid from the query string.
func ParseView(r *http.Request) View {
	w := intParam(r, "w", DefaultWidth)
	h := intParam(r, "h", DefaultHeight)
	vp := canvas.NewViewport(float64(w), float64(h))
	vp.SetZoom(floatParam(r, "scale", 1), nil)
	vp.Pan(floatParam(r, "x", 0), floatParam(r, "y", 0))

	opts := canvas.DefaultRenderOptions()
	opts.Dark = boolParam(r, "dark", false)
	opts.Grid = boolParam(r, "grid", false)
	opts.Diagnostics = false
	return View{Width: w, Height: h, Viewport: vp, Options: opts}
}

func loadScene(r *http.Request, store core.StrokeStore, roomID string, vp *canvas.Viewport) (canvas.Scene, error) {
	recs, err := strokes.Records(r.Context(), store, roomID)
	if err != nil {
		return canvas.Scene{}, err
	}
	board := canvas.NewStore("")
	for _, st := range collab.StrokesFromRecords(recs) {
		board.AddCompleted(st)
	}
	return canvas.Scene{Store: board, Viewport: vp, PenWidth: canvas.DefaultWidth}, nil
}

// HandlePNG serves GET /api/rooms/{roomId}/render.png.
func HandlePNG(store core.StrokeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		log := logrus.WithField("room_id", roomID)
		view := ParseView(r)

		scene, err := loadScene(r, store, roomID, view.Viewport)
		if err != nil {
			log.WithError(err).Error("Failed to load board")
			http.Error(w, "Failed to load board", http.StatusInternalServerError)
			return
		}
		img := raster.New(view.Width, view.Height)
		stats := canvas.NewRenderer(view.Options).Draw(img, scene)
		if err := img.Err(); err != nil {
			log.WithError(err).Error("Failed to render board")
			http.Error(w, "Failed to render board", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		if err := img.EncodePNG(w); err != nil {
			log.WithError(err).Error("Failed to encode png")
			return
		}
		log.WithFields(logrus.Fields{"rendered": stats.Rendered, "total": stats.Total}).Debug("Rendered board")
	}
}

// HandlePDF serves GET /api/rooms/{roomId}/export.pdf.
func HandlePDF(store core.StrokeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		log := logrus.WithField("room_id", roomID)
		view := ParseView(r)

		scene, err := loadScene(r, store, roomID, view.Viewport)
		if err != nil {
			log.WithError(err).Error("Failed to load board")
			http.Error(w, "Failed to load board", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="`+roomID+`.pdf"`)
		stats, err := export.Board(w, scene, view.Options, float64(view.Width), float64(view.Height))
		if err != nil {
			log.WithError(err).Error("Failed to export pdf")
			return
		}
		log.WithFields(logrus.Fields{"rendered": stats.Rendered, "total": stats.Total}).Debug("Exported board")
	}
}

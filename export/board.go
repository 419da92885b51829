package export

import (
	"io"

	"inkboard/canvas"
)

// Board draws scene onto a fresh w×h PDF page and writes it to out.
func Board(out io.Writer, scene canvas.Scene, opts canvas.RenderOptions, w, h float64) (canvas.Stats, error) {
	doc := NewPDF(w, h)
	stats := canvas.NewRenderer(opts).Draw(doc, scene)
	if err := doc.Err(); err != nil {
		return stats, err
	}
	_, err := doc.WriteTo(out)
	return stats, err
}

// Package export writes boards out as PDF documents.
package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"inkboard/canvas"
	"inkboard/geometry"
)

// PDF is a canvas.Surface backed by a single gofpdf page sized in points,
// one point per screen pixel.
type PDF struct {
	doc     *gofpdf.Fpdf
	w, h    float64
	tr      geometry.Affine
	r, g, b int
	width   float64
	inPath  bool
}

var _ canvas.Surface = (*PDF)(nil)

// NewPDF starts a document with one w×h page.
func NewPDF(w, h float64) *PDF {
	doc := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()
	doc.SetLineCapStyle("round")
	doc.SetLineJoinStyle("round")
	doc.SetFont("Courier", "", 10)
	return &PDF{doc: doc, w: w, h: h, tr: geometry.Identity, width: 1}
}

func (p *PDF) Size() (float64, float64) { return p.w, p.h }

func (p *PDF) Clear(hex string) {
	r, g, b := rgb(hex, 0xff)
	p.doc.SetFillColor(r, g, b)
	p.doc.Rect(0, 0, p.w, p.h, "F")
}

func (p *PDF) SetTransform(t geometry.Affine) { p.tr = t }

func (p *PDF) SetColor(hex string) {
	p.r, p.g, p.b = rgb(hex, 0)
}

func (p *PDF) SetLineWidth(w float64) { p.width = w }

func (p *PDF) BeginPath() { p.inPath = false }

func (p *PDF) MoveTo(x, y float64) {
	x, y = p.tr.Apply(x, y)
	p.doc.MoveTo(x, y)
	p.inPath = true
}

func (p *PDF) LineTo(x, y float64) {
	if !p.inPath {
		p.MoveTo(x, y)
		return
	}
	x, y = p.tr.Apply(x, y)
	p.doc.LineTo(x, y)
}

func (p *PDF) QuadTo(cx, cy, x, y float64) {
	if !p.inPath {
		p.MoveTo(cx, cy)
	}
	cx, cy = p.tr.Apply(cx, cy)
	x, y = p.tr.Apply(x, y)
	p.doc.CurveTo(cx, cy, x, y)
}

func (p *PDF) ClosePath() {
	if p.inPath {
		p.doc.ClosePath()
	}
}

func (p *PDF) Fill() {
	if !p.inPath {
		return
	}
	p.doc.SetFillColor(p.r, p.g, p.b)
	p.doc.DrawPath("F")
	p.inPath = false
}

func (p *PDF) Stroke() {
	if !p.inPath {
		return
	}
	p.doc.SetDrawColor(p.r, p.g, p.b)
	p.doc.SetLineWidth(p.width * p.tr.Scale)
	p.doc.DrawPath("D")
	p.inPath = false
}

func (p *PDF) Text(x, y float64, s string) {
	x, y = p.tr.Apply(x, y)
	p.doc.SetTextColor(p.r, p.g, p.b)
	p.doc.Text(x, y, s)
}

// WriteTo closes the document and writes it to w.
func (p *PDF) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := p.doc.Output(cw); err != nil {
		return cw.n, fmt.Errorf("write pdf: %w", err)
	}
	return cw.n, nil
}

// Err reports the first error the document hit, if any.
func (p *PDF) Err() error { return p.doc.Error() }

// rgb parses hex, falling back to a gray level.
func rgb(hex string, fallback uint8) (int, int, int) {
	c, ok := canvas.ParseHex(hex)
	if !ok {
		return int(fallback), int(fallback), int(fallback)
	}
	return int(c.R), int(c.G), int(c.B)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

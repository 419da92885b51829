// Package raster draws a board onto an in-memory RGBA image. Canvas
// implements canvas.Surface on top of a gg.Context, so the engine's Renderer
// produces the same frame here that an interactive client would show.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"inkboard/canvas"
	"inkboard/geometry"
)

// TextSize is the point size of overlay text.
const TextSize = 12

var (
	faceOnce sync.Once
	face     text.Face
)

// overlayFace parses the bundled Go Regular font once. A nil face disables
// text.
func overlayFace() text.Face {
	faceOnce.Do(func() {
		src, err := text.NewFontSource(goregular.TTF)
		if err != nil {
			return
		}
		face = src.Face(TextSize)
	})
	return face
}

// Canvas is a software canvas.Surface. The current transform is applied as
// path points are added; line widths scale with it.
type Canvas struct {
	dc  *gg.Context
	col color.RGBA
	err error
}

var _ canvas.Surface = (*Canvas)(nil)

// New returns a transparent w×h canvas.
func New(w, h int) *Canvas {
	dc := gg.NewContext(w, h)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.SetFillRule(gg.FillRuleNonZero)
	if f := overlayFace(); f != nil {
		dc.SetFont(f)
	}
	c := &Canvas{dc: dc, col: color.RGBA{A: 0xff}}
	dc.SetColor(c.col)
	return c
}

// Image returns a copy of the current pixels.
func (c *Canvas) Image() *image.RGBA {
	src := c.dc.Image()
	if img, ok := src.(*image.RGBA); ok {
		return img
	}
	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
	return img
}

func (c *Canvas) Size() (float64, float64) {
	return float64(c.dc.Width()), float64(c.dc.Height())
}

func (c *Canvas) Clear(hex string) {
	col, ok := canvas.ParseHex(hex)
	if !ok {
		col = color.RGBA{0xff, 0xff, 0xff, 0xff}
	}
	c.dc.ClearWithColor(gg.FromColor(col))
}

func (c *Canvas) SetTransform(t geometry.Affine) {
	c.dc.SetTransform(gg.Matrix{A: t.Scale, C: t.TX, E: t.Scale, F: t.TY})
}

// SetColor ignores colors it cannot parse and keeps the previous one.
func (c *Canvas) SetColor(hex string) {
	if col, ok := canvas.ParseHex(hex); ok {
		c.col = col
		c.dc.SetColor(col)
	}
}

// SetLineWidth takes the width in the current transform's units.
func (c *Canvas) SetLineWidth(w float64) { c.dc.SetLineWidth(w) }

func (c *Canvas) BeginPath()          { c.dc.ClearPath() }
func (c *Canvas) MoveTo(x, y float64) { c.dc.MoveTo(x, y) }
func (c *Canvas) ClosePath()          { c.dc.ClosePath() }

func (c *Canvas) LineTo(x, y float64) {
	if _, _, ok := c.dc.GetCurrentPoint(); !ok {
		c.dc.MoveTo(x, y)
		return
	}
	c.dc.LineTo(x, y)
}

func (c *Canvas) QuadTo(cx, cy, x, y float64) {
	if _, _, ok := c.dc.GetCurrentPoint(); !ok {
		c.dc.MoveTo(cx, cy)
	}
	c.dc.QuadraticTo(cx, cy, x, y)
}

func (c *Canvas) Fill()   { c.keep(c.dc.Fill()) }
func (c *Canvas) Stroke() { c.keep(c.dc.Stroke()) }

// Text draws at the transformed origin; glyphs themselves are not scaled.
func (c *Canvas) Text(x, y float64, s string) {
	x, y = c.dc.TransformPoint(x, y)
	c.dc.DrawString(s, x, y)
}

// Err reports the first rasterization error, if any.
func (c *Canvas) Err() error { return c.err }

// EncodePNG writes the current image.
func (c *Canvas) EncodePNG(w io.Writer) error {
	if c.err != nil {
		return fmt.Errorf("render: %w", c.err)
	}
	return c.dc.EncodePNG(w)
}

func (c *Canvas) keep(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

// Package canvas is the drawing engine of a whiteboard room: stroke state,
// eraser hit-testing, undo history, the pan/zoom viewport, throttled
// redraws and pointer input. Every type in this package is owned by a single
// event loop (see Loop); none of them lock.
package canvas

import (
	"strconv"
	"strings"

	"inkboard/geometry"
)

// Tool identifies what produced a stroke.
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
)

// ParseTool maps wire values to a Tool; anything unknown is a pen.
func ParseTool(s string) Tool {
	if Tool(s) == ToolEraser {
		return ToolEraser
	}
	return ToolPen
}

// StrokeID is unique within a room. Locally allocated ids are
// "<ownerID>:<session>-<counter>", so neither two clients nor two sessions
// of the same user mint the same id.
type StrokeID string

// NewStrokeID returns the composite id for the n-th stroke of owner in
// session.
func NewStrokeID(owner, session string, n uint64) StrokeID {
	return StrokeID(owner + ":" + session + "-" + strconv.FormatUint(n, 10))
}

// Owner returns the owner part of a composite id, or "" for foreign ids.
func (id StrokeID) Owner() string {
	i := strings.LastIndexByte(string(id), ':')
	if i < 0 {
		return ""
	}
	return string(id[:i])
}

// Stroke is one tool action by one user. Points only grow while the stroke is
// live and never change after completion.
type Stroke struct {
	ID      StrokeID
	OwnerID string
	Tool    Tool
	Width   float64
	Color   string
	Points  []geometry.Point
}

// Meta is the per-stroke styling carried alongside points.
type Meta struct {
	Tool  Tool
	Width float64
	Color string
}

// Default styling for strokes that arrive without it.
const (
	DefaultWidth = 2.0
	DefaultColor = "#000000"
)

// Normalize fills missing styling with defaults.
func (m Meta) Normalize() Meta {
	if m.Tool == "" {
		m.Tool = ToolPen
	}
	if m.Width <= 0 {
		m.Width = DefaultWidth
	}
	if m.Color == "" {
		m.Color = DefaultColor
	}
	return m
}

// Meta returns the styling of s.
func (s *Stroke) Meta() Meta {
	return Meta{Tool: s.Tool, Width: s.Width, Color: s.Color}
}

// Clone returns a deep copy of s.
func (s *Stroke) Clone() *Stroke {
	c := *s
	c.Points = append([]geometry.Point(nil), s.Points...)
	return &c
}

// Last returns the most recent point, if any.
func (s *Stroke) Last() (geometry.Point, bool) {
	if len(s.Points) == 0 {
		return geometry.Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

func cloneStrokes(in []*Stroke) []*Stroke {
	out := make([]*Stroke, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// Package protocol defines the JSON messages exchanged over a room's pub/sub
// topics and the stroke records served as a room's initial state.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"inkboard/geometry"
)

// Kind is the message type tag.
type Kind string

const (
	KindStrokeMove Kind = "stroke_move"
	KindStrokeEnd  Kind = "stroke_end"
	KindClear      Kind = "clear"
)

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("malformed message")

// ID is a room, user or stroke identifier. Peers may send numbers or
// strings; both decode to the same textual form.
type ID string

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Message is the envelope published on a room topic.
type Message struct {
	Type     Kind            `json:"type"`
	RoomID   ID              `json:"roomId"`
	UserID   ID              `json:"userId"`
	StrokeID ID              `json:"strokeId,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// MovePayload carries one live-stroke sample.
type MovePayload struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Pressure *float64 `json:"pressure,omitempty"`
	Tool     string   `json:"tool,omitempty"`
	Width    float64  `json:"width,omitempty"`
	Color    string   `json:"color,omitempty"`
}

// Point returns the sample with the default pressure filled in.
func (p MovePayload) Point() geometry.Point {
	pressure := geometry.DefaultPressure
	if p.Pressure != nil {
		pressure = geometry.ClampPressure(*p.Pressure)
	}
	return geometry.Point{X: p.X, Y: p.Y, Pressure: pressure}
}

// EndPayload carries a finished stroke. It is also the persisted record body.
type EndPayload struct {
	CurrentStrokes []geometry.Point `json:"currentStrokes"`
	Tool           string           `json:"tool,omitempty"`
	Width          float64          `json:"width,omitempty"`
	Color          string           `json:"color,omitempty"`
}

// ClearPayload lists stroke ids erased in one batch.
type ClearPayload struct {
	ErasedStrokes []ID `json:"erasedStrokes"`
}

// UndoSignal is published on the undo topic.
type UndoSignal struct {
	CanUndo bool `json:"canUndo"`
	UserID  ID   `json:"userId,omitempty"`
}

// StrokeRecord is one element of the initial-state response.
type StrokeRecord struct {
	ID      ID         `json:"id"`
	Payload EndPayload `json:"payload"`
}

// Decode parses and validates an envelope. Unknown types pass through so
// relays can forward them; known types must carry what they need.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	switch m.Type {
	case KindStrokeMove, KindStrokeEnd:
		if m.StrokeID == "" {
			return nil, fmt.Errorf("%w: %s without strokeId", ErrMalformed, m.Type)
		}
		fallthrough
	case KindClear:
		if len(m.Payload) == 0 || bytes.Equal(m.Payload, []byte("null")) {
			return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, m.Type)
		}
	}
	return &m, nil
}

// Move decodes a stroke_move payload.
func (m *Message) Move() (MovePayload, error) {
	var p MovePayload
	if err := m.decodePayload(KindStrokeMove, &p); err != nil {
		return p, err
	}
	if !finite(p.X) || !finite(p.Y) {
		return p, fmt.Errorf("%w: non-finite coordinate", ErrMalformed)
	}
	return p, nil
}

// End decodes a stroke_end payload.
func (m *Message) End() (EndPayload, error) {
	var p EndPayload
	err := m.decodePayload(KindStrokeEnd, &p)
	return p, err
}

// Clear decodes a clear payload.
func (m *Message) Clear() (ClearPayload, error) {
	var p ClearPayload
	err := m.decodePayload(KindClear, &p)
	return p, err
}

func (m *Message) decodePayload(want Kind, v any) error {
	if m.Type != want {
		return fmt.Errorf("%w: want %s, got %s", ErrMalformed, want, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, want, err)
	}
	return nil
}

// Encode builds a message with payload marshaled into the envelope.
func Encode(kind Kind, room, user, stroke ID, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return json.Marshal(Message{Type: kind, RoomID: room, UserID: user, StrokeID: stroke, Payload: raw})
}

// DecodeUndo parses an undo topic body.
func DecodeUndo(data []byte) (UndoSignal, error) {
	var u UndoSignal
	if err := json.Unmarshal(data, &u); err != nil {
		return u, fmt.Errorf("%w: undo: %v", ErrMalformed, err)
	}
	return u, nil
}

const topicPrefix = "room."

// Topic is the per-room stroke topic.
func Topic(room string) string { return topicPrefix + room }

// UndoTopic is the per-room undo topic.
func UndoTopic(room string) string { return topicPrefix + room + ".undo" }

// ParseTopic splits a topic into its room and whether it is the undo topic.
func ParseTopic(topic string) (room string, undo bool, ok bool) {
	rest, found := strings.CutPrefix(topic, topicPrefix)
	if !found || rest == "" {
		return "", false, false
	}
	if r, isUndo := strings.CutSuffix(rest, ".undo"); isUndo && r != "" {
		return r, true, true
	}
	return rest, false, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

package relay

import "encoding/json"

// Op is the websocket frame operation.
type Op string

const (
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpPublish     Op = "publish"
	// OpMessage carries a delivery from server to client.
	OpMessage Op = "message"
	OpError   Op = "error"
)

// Frame is one JSON websocket frame. Body is the published message itself,
// embedded as raw JSON.
type Frame struct {
	Op    Op              `json:"op"`
	Topic string          `json:"topic,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

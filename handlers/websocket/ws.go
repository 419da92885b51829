package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"inkboard/core"
	"inkboard/protocol"
	"inkboard/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 5000000
	sendBuffer     = 256
)

// WSHandler serves the frame protocol on GET /ws.
type WSHandler struct {
	hub      *relay.Hub
	registry core.RoomRegistry
	upgrader websocket.Upgrader
}

// NewWSHandler accepts connections whose origin passes checkOrigin. A nil
// checkOrigin accepts same-host requests only.
func NewWSHandler(hub *relay.Hub, registry core.RoomRegistry, checkOrigin func(*http.Request) bool) *WSHandler {
	return &WSHandler{
		hub:      hub,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

type wsConn struct {
	id   string
	ws   *websocket.Conn
	hub  *relay.Hub
	log  *logrus.Entry
	send chan relay.Frame

	mu     sync.Mutex
	closed bool
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	c := &wsConn{
		id:   "ws:" + ulid.Make().String(),
		ws:   ws,
		hub:  h.hub,
		send: make(chan relay.Frame, sendBuffer),
	}
	c.log = logrus.WithField("conn_id", c.id)
	c.log.WithField("remote", r.RemoteAddr).Debug("Websocket connected")

	go c.writeLoop()
	c.readLoop(h)
}

// enqueue queues f without blocking. A peer that cannot keep up loses the
// frame.
func (c *wsConn) enqueue(f relay.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- f:
	default:
		c.log.WithField("topic", f.Topic).Warn("Send buffer full, dropping frame")
	}
}

func (c *wsConn) shutdown() {
	c.hub.UnsubscribeAll(c.id)
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (c *wsConn) fail(topic, msg string) {
	c.enqueue(relay.Frame{Op: relay.OpError, Topic: topic, Error: msg})
}

func (c *wsConn) readLoop(h *WSHandler) {
	defer func() {
		c.shutdown()
		c.log.Debug("Websocket disconnected")
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f relay.Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("Websocket read failed")
			}
			return
		}
		room, _, ok := protocol.ParseTopic(f.Topic)
		if !ok {
			c.fail(f.Topic, "unknown topic")
			continue
		}

		switch f.Op {
		case relay.OpSubscribe:
			topic := f.Topic
			c.hub.Subscribe(topic, c.id, func(body []byte) {
				c.enqueue(relay.Frame{Op: relay.OpMessage, Topic: topic, Body: json.RawMessage(body)})
			})
			touchRoom(h.registry, room)
		case relay.OpUnsubscribe:
			c.hub.Unsubscribe(f.Topic, c.id)
		case relay.OpPublish:
			if len(f.Body) == 0 || !json.Valid(f.Body) {
				c.fail(f.Topic, "body is not valid JSON")
				continue
			}
			c.hub.Publish(f.Topic, c.id, f.Body)
		default:
			c.fail(f.Topic, "unknown op")
		}
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(f); err != nil {
				c.log.WithError(err).Warn("Websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

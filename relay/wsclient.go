package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

var (
	ErrClosed     = errors.New("relay: connection closed")
	ErrBufferFull = errors.New("relay: send buffer full")
	ErrInvalid    = errors.New("relay: body is not valid JSON")
)

// WSClient speaks the frame protocol over one websocket connection. Frames
// are written by a single goroutine in call order, so publishes from one
// client reach the server in order.
type WSClient struct {
	conn *websocket.Conn
	send chan Frame
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	handlers map[string]map[uint64]func([]byte)
	nextID   uint64

	log *logrus.Entry
}

// Dial connects to a relay websocket endpoint such as ws://host:3002/ws.
func Dial(ctx context.Context, url string, header http.Header) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &WSClient{
		conn:     conn,
		send:     make(chan Frame, sendBuffer),
		done:     make(chan struct{}),
		handlers: make(map[string]map[uint64]func([]byte)),
		log:      logrus.WithField("relay", url),
	}
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// Publish queues body for topic without waiting for the network.
func (c *WSClient) Publish(topic string, body []byte) error {
	if !json.Valid(body) {
		return ErrInvalid
	}
	return c.enqueue(Frame{Op: OpPublish, Topic: topic, Body: append(json.RawMessage(nil), body...)})
}

// Subscribe registers fn for topic. The server subscription is shared by all
// handlers of a topic. fn runs on the read goroutine.
func (c *WSClient) Subscribe(topic string, fn func(body []byte)) (func(), error) {
	c.mu.Lock()
	subs := c.handlers[topic]
	first := subs == nil
	if first {
		subs = make(map[uint64]func([]byte))
		c.handlers[topic] = subs
	}
	c.nextID++
	id := c.nextID
	subs[id] = fn
	c.mu.Unlock()

	if first {
		if err := c.enqueue(Frame{Op: OpSubscribe, Topic: topic}); err != nil {
			c.removeHandler(topic, id)
			return nil, err
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if c.removeHandler(topic, id) {
				_ = c.enqueue(Frame{Op: OpUnsubscribe, Topic: topic})
			}
		})
	}, nil
}

// Close shuts the connection down. It is safe to call more than once.
func (c *WSClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection is gone.
func (c *WSClient) Done() <-chan struct{} { return c.done }

// removeHandler reports whether the topic has no handlers left.
func (c *WSClient) removeHandler(topic string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.handlers[topic]
	delete(subs, id)
	if len(subs) == 0 {
		delete(c.handlers, topic)
		return true
	}
	return false
}

func (c *WSClient) enqueue(f Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.log.WithError(err).Warn("write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.WithError(err).Debug("ping failed")
				c.Close()
				return
			}
		}
	}
}

func (c *WSClient) readLoop() {
	defer c.Close()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		switch f.Op {
		case OpMessage:
			c.dispatch(f.Topic, f.Body)
		case OpError:
			c.log.WithField("topic", f.Topic).Warn(f.Error)
		default:
			c.log.WithField("op", f.Op).Debug("ignoring frame")
		}
	}
}

func (c *WSClient) dispatch(topic string, body []byte) {
	c.mu.Lock()
	fns := make([]func([]byte), 0, len(c.handlers[topic]))
	for _, fn := range c.handlers[topic] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(body)
	}
}

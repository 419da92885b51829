// Package relay fans room messages out between connected peers. Hub is the
// in-process broker the server's transports share; WSClient is the client
// side of the websocket transport.
package relay

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Observer sees every published body before it is fanned out.
type Observer func(topic, sender string, body []byte)

type handler func(body []byte)

// Hub is a topic broker. A publisher's own subscriptions are skipped, and
// deliveries run in publish order for every subscriber. Handlers must not
// block.
type Hub struct {
	mu        sync.RWMutex
	topics    map[string]map[string]handler
	observers []Observer
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[string]handler)}
}

// Observe registers o for all future publishes.
func (h *Hub) Observe(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// Subscribe delivers bodies published on topic to fn; subscriber names the
// connection for sender exclusion. Subscribing again replaces fn.
func (h *Hub) Subscribe(topic, subscriber string, fn func(body []byte)) (unsubscribe func()) {
	h.mu.Lock()
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[string]handler)
		h.topics[topic] = subs
	}
	subs[subscriber] = fn
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{"topic": topic, "subscriber": subscriber}).Debug("subscribed")
	return func() { h.Unsubscribe(topic, subscriber) }
}

func (h *Hub) Unsubscribe(topic, subscriber string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	if subs == nil {
		return
	}
	delete(subs, subscriber)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// UnsubscribeAll removes every subscription held by subscriber.
func (h *Hub) UnsubscribeAll(subscriber string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, subs := range h.topics {
		delete(subs, subscriber)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish delivers body to every subscriber of topic except sender and
// returns the number of deliveries.
func (h *Hub) Publish(topic, sender string, body []byte) int {
	h.mu.RLock()
	observers := h.observers
	targets := make([]handler, 0, len(h.topics[topic]))
	for id, fn := range h.topics[topic] {
		if id != sender {
			targets = append(targets, fn)
		}
	}
	h.mu.RUnlock()

	for _, o := range observers {
		o(topic, sender, body)
	}
	for _, fn := range targets {
		fn(body)
	}
	return len(targets)
}

// Subscribers returns subscriber counts per topic.
func (h *Hub) Subscribers() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.topics))
	for t, subs := range h.topics {
		out[t] = len(subs)
	}
	return out
}

// Topics lists topics with at least one subscriber, sorted.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.topics))
	for t := range h.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Client is an in-process connection to a hub.
type Client struct {
	hub *Hub
	id  string
}

// Client returns a connection that publishes and subscribes as id.
func (h *Hub) Client(id string) *Client {
	return &Client{hub: h, id: id}
}

func (c *Client) Publish(topic string, body []byte) error {
	c.hub.Publish(topic, c.id, append([]byte(nil), body...))
	return nil
}

func (c *Client) Subscribe(topic string, fn func(body []byte)) (func(), error) {
	return c.hub.Subscribe(topic, c.id, fn), nil
}

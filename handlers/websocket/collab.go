// Package websocket connects peers to the relay hub over socket.io and plain
// websockets, and persists what they publish.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"inkboard/core"
	"inkboard/protocol"
	"inkboard/relay"
)

// ackFunc answers a client acknowledgement callback.
type ackFunc func(payload map[string]any, err error)

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

// Gateway bridges socket.io rooms onto the hub's room topics.
type Gateway struct {
	srv      *socketio.Server
	hub      *relay.Hub
	registry core.RoomRegistry
}

// SetupSocketIO builds the socket.io server. Extra origins are accepted on
// top of localhost and the tauri shell.
func SetupSocketIO(hub *relay.Hub, registry core.RoomRegistry, origins ...string) *Gateway {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	allowed := []any{"tauri://localhost", localhostOrigin}
	for _, o := range origins {
		allowed = append(allowed, o)
	}
	opts.SetCors(&types.Cors{
		Origin:      allowed,
		Credentials: true,
	})

	g := &Gateway{srv: socketio.NewServer(nil, opts), hub: hub, registry: registry}
	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	g.srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		g.connect(socket)
	})
	return g
}

func (g *Gateway) Server() *socketio.Server { return g.srv }

func (g *Gateway) Close() { g.srv.Close(nil) }

// subscriberID names a socket on the hub.
func subscriberID(socket *socketio.Socket) string {
	return "sio:" + string(socket.Id())
}

func (g *Gateway) connect(socket *socketio.Socket) {
	me := socket.Id()
	sub := subscriberID(socket)
	log := logrus.WithField("socket_id", me)
	_ = socket.Emit("init-room")
	log.Debug("Socket connected")

	var mu sync.Mutex
	joined := map[string]bool{}

	//nolint:errcheck
	socket.On("join-room", func(datas ...any) {
		ack, args := splitAck(datas)
		roomID := ""
		if len(args) > 0 {
			roomID = idString(args[0])
		}
		if roomID == "" {
			reply(socket, ack, "join-room-ack", nil, fmt.Errorf("room id is required"))
			return
		}

		mu.Lock()
		joined[roomID] = true
		mu.Unlock()

		socket.Join(socketio.Room(roomID))
		for _, topic := range []string{protocol.Topic(roomID), protocol.UndoTopic(roomID)} {
			g.hub.Subscribe(topic, sub, deliver(socket, topic))
		}
		touchRoom(g.registry, roomID)
		log.WithField("room_id", roomID).Info("Socket joined room")

		g.announce(socket, roomID, ack)
	})

	//nolint:errcheck
	socket.On("server-broadcast", func(datas ...any) {
		g.broadcast(socket, datas)
	})

	//nolint:errcheck
	socket.On("server-volatile-broadcast", func(datas ...any) {
		g.broadcast(socket, datas)
	})

	//nolint:errcheck
	socket.On("disconnecting", func(...any) {
		g.hub.UnsubscribeAll(sub)
		mu.Lock()
		rooms := make([]string, 0, len(joined))
		for r := range joined {
			rooms = append(rooms, r)
		}
		mu.Unlock()
		for _, roomID := range rooms {
			g.leave(me, roomID)
		}
		log.Debug("Socket disconnecting")
	})

	//nolint:errcheck
	socket.On("disconnect", func(...any) {
		socket.RemoveAllListeners("")
	})
}

// announce tells the room who is in it after socket joined.
func (g *Gateway) announce(socket *socketio.Socket, roomID string, ack ackFunc) {
	room := socketio.Room(roomID)
	g.srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, err error) {
		if err != nil {
			reply(socket, ack, "join-room-ack", nil, err)
			return
		}
		if len(users) <= 1 {
			_ = socket.Emit("first-in-room")
		} else {
			_ = socket.Broadcast().To(room).Emit("new-user", socket.Id())
		}
		ids := make([]socketio.SocketId, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.Id())
		}
		_ = g.srv.In(room).Emit("room-user-change", ids)
		reply(socket, ack, "join-room-ack", map[string]any{"user_count": len(users)}, nil)
	})
}

func (g *Gateway) leave(me socketio.SocketId, roomID string) {
	room := socketio.Room(roomID)
	g.srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
		others := make([]socketio.SocketId, 0, len(users))
		for _, u := range users {
			if u.Id() != me {
				others = append(others, u.Id())
			}
		}
		if len(others) > 0 {
			_ = g.srv.In(room).Emit("room-user-change", others)
		}
	})
}

// broadcast handles server-broadcast(roomId, payload[, topic]). The payload is
// published on the hub, which fans it out to every other peer.
func (g *Gateway) broadcast(socket *socketio.Socket, datas []any) {
	ack, args := splitAck(datas)
	if len(args) < 2 {
		reply(socket, ack, "broadcast-ack", nil, fmt.Errorf("room id and payload are required"))
		return
	}
	roomID := idString(args[0])
	if roomID == "" {
		reply(socket, ack, "broadcast-ack", nil, fmt.Errorf("missing room id"))
		return
	}
	topic := protocol.Topic(roomID)
	if len(args) > 2 {
		if t, ok := args[2].(string); ok {
			if r, _, valid := protocol.ParseTopic(t); valid && r == roomID {
				topic = t
			}
		}
	}

	body, err := encodePayload(args[1])
	if err != nil {
		reply(socket, ack, "broadcast-ack", nil, err)
		return
	}
	n := g.hub.Publish(topic, subscriberID(socket), body)
	logrus.WithFields(logrus.Fields{"socket_id": socket.Id(), "topic": topic, "deliveries": n}).Debug("Broadcast")
	reply(socket, ack, "broadcast-ack", map[string]any{"deliveries": n}, nil)
}

func touchRoom(registry core.RoomRegistry, roomID string) {
	if registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := registry.TouchRoom(ctx, roomID); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to touch room")
	}
}

// deliver forwards hub bodies to socket as client-broadcast(payload, topic).
func deliver(socket *socketio.Socket, topic string) func([]byte) {
	return func(body []byte) {
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = string(body)
		}
		_ = socket.Emit("client-broadcast", payload, topic)
	}
}

// encodePayload turns a decoded socket.io argument back into JSON. Strings
// that already hold JSON pass through as-is.
func encodePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, fmt.Errorf("empty payload")
	case string:
		if json.Valid([]byte(p)) {
			return []byte(p), nil
		}
	case []byte:
		if json.Valid(p) {
			return p, nil
		}
	}
	return json.Marshal(v)
}

// idString accepts string or numeric room ids.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64, int, int64:
		return fmt.Sprint(id)
	}
	return ""
}

func splitAck(datas []any) (ackFunc, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	rest := datas[:len(datas)-1]
	switch fn := datas[len(datas)-1].(type) {
	case func([]any, error):
		return func(p map[string]any, err error) { fn([]any{p}, err) }, rest
	case func(...any):
		return func(p map[string]any, err error) {
			if err != nil {
				fn(p, err.Error())
				return
			}
			fn(p)
		}, rest
	}
	return nil, datas
}

// reply answers through the ack callback when there is one, and always
// emits event with the same payload.
func reply(socket *socketio.Socket, ack ackFunc, event string, payload map[string]any, err error) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = "ok"
	if err != nil {
		payload["status"] = "error"
		payload["error"] = err.Error()
	}
	if ack != nil {
		ack(payload, err)
	}
	_ = socket.Emit(event, payload)
}

package collab

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inkboard/canvas"
	"inkboard/protocol"
)

// Transport is the pub/sub relay a session talks through. Publish must not
// block on the network. Subscribe handlers may run on any goroutine.
type Transport interface {
	Publisher
	Subscribe(topic string, fn func(body []byte)) (unsubscribe func(), err error)
}

// Config describes one room session.
type Config struct {
	RoomID string
	// UserID defaults to a random UUID.
	UserID string
	Width  float64
	Height float64
	Render canvas.RenderOptions
}

// Session owns a room's engine and runs it on one loop. All exported event
// methods are safe from any goroutine; they post onto the loop.
type Session struct {
	cfg       Config
	loop      *canvas.Loop
	transport Transport
	surface   canvas.Surface

	store      *canvas.Store
	eraser     *canvas.Eraser
	history    *canvas.History
	viewport   *canvas.Viewport
	scheduler  *canvas.Scheduler
	renderer   *canvas.Renderer
	controller *canvas.Controller
	adapter    *Adapter

	alive  atomic.Bool
	unsubs []func()
	stats  canvas.Stats
	log    *logrus.Entry

	// OnRedraw, when set, runs on the loop after each redraw pass.
	OnRedraw func(canvas.Stats)
}

// NewSession wires the engine for cfg. surface may be nil for a headless
// session; redraws then only update stats.
func NewSession(cfg Config, t Transport, surface canvas.Surface) *Session {
	if cfg.UserID == "" {
		cfg.UserID = uuid.NewString()
	}
	if cfg.Render == (canvas.RenderOptions{}) {
		cfg.Render = canvas.DefaultRenderOptions()
	}
	if surface != nil && (cfg.Width == 0 || cfg.Height == 0) {
		cfg.Width, cfg.Height = surface.Size()
	}

	s := &Session{
		cfg:       cfg,
		loop:      canvas.NewLoop(),
		transport: t,
		surface:   surface,
		log: logrus.WithFields(logrus.Fields{
			"room_id": cfg.RoomID,
			"user_id": cfg.UserID,
		}),
	}
	s.store = canvas.NewStore(cfg.UserID)
	s.eraser = canvas.NewEraser(s.store)
	s.history = canvas.NewHistory(s.store)
	s.viewport = canvas.NewViewport(cfg.Width, cfg.Height)
	s.renderer = canvas.NewRenderer(cfg.Render)
	s.scheduler = canvas.NewScheduler(s.loop, nil, s.redraw)
	s.adapter = NewAdapter(cfg.RoomID, cfg.UserID, s.store, s.history, s.scheduler, t)
	s.controller = canvas.NewController(canvas.ControllerDeps{
		Store:    s.store,
		Eraser:   s.eraser,
		History:  s.history,
		Viewport: s.viewport,
		Redraw:   s.scheduler,
		Out:      s.adapter,
	})
	s.alive.Store(true)
	return s
}

func (s *Session) UserID() string { return s.cfg.UserID }
func (s *Session) RoomID() string { return s.cfg.RoomID }

// Subscribe attaches the session to the room and undo topics.
func (s *Session) Subscribe() error {
	topics := []struct {
		name   string
		handle func([]byte)
	}{
		{protocol.Topic(s.cfg.RoomID), s.adapter.HandleMessage},
		{protocol.UndoTopic(s.cfg.RoomID), s.adapter.HandleUndo},
	}
	for _, tp := range topics {
		handle := tp.handle
		unsub, err := s.transport.Subscribe(tp.name, func(body []byte) {
			s.post(func() { handle(body) })
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", tp.name, err)
		}
		s.unsubs = append(s.unsubs, unsub)
	}
	return nil
}

// Run drives the loop until ctx ends or Close is called.
func (s *Session) Run(ctx context.Context) error {
	return s.loop.Run(ctx)
}

// Close detaches from the relay and stops the loop. Callbacks already queued
// see the session as dead and return without touching state.
func (s *Session) Close() {
	if !s.alive.Swap(false) {
		return
	}
	for _, u := range s.unsubs {
		u()
	}
	s.loop.Close()
}

// Load fetches persisted strokes in the background and merges them on the
// loop. done, if non-nil, receives the fetch error, or canvas.ErrLoopClosed
// when the session closed before the merge ran.
func (s *Session) Load(ctx context.Context, f Fetcher, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	go func() {
		recs, err := f.Fetch(ctx, s.cfg.RoomID)
		if err != nil {
			s.log.WithError(err).Warn("initial fetch failed")
			done(err)
			return
		}
		merged := make(chan struct{})
		if !s.post(func() {
			s.adapter.Load(recs)
			close(merged)
		}) {
			done(canvas.ErrLoopClosed)
			return
		}
		select {
		case <-merged:
			done(nil)
		case <-s.loop.Done():
			select {
			case <-merged:
				done(nil)
			default:
				done(canvas.ErrLoopClosed)
			}
		}
	}()
}

// Do runs fn on the loop with direct access to the engine. It reports false
// when the session is closed.
func (s *Session) Do(fn func(e *Engine)) bool {
	return s.post(func() { fn(s.engine()) })
}

// Engine exposes the loop-owned components to Do callbacks.
type Engine struct {
	Store      *canvas.Store
	History    *canvas.History
	Viewport   *canvas.Viewport
	Controller *canvas.Controller
	Eraser     *canvas.Eraser
	Scheduler  *canvas.Scheduler
	Stats      canvas.Stats
}

func (s *Session) engine() *Engine {
	return &Engine{
		Store:      s.store,
		History:    s.history,
		Viewport:   s.viewport,
		Controller: s.controller,
		Eraser:     s.eraser,
		Scheduler:  s.scheduler,
		Stats:      s.stats,
	}
}

func (s *Session) PointerDown(e canvas.PointerEvent) {
	s.post(func() { s.controller.PointerDown(e) })
}

func (s *Session) PointerMove(e canvas.PointerEvent) {
	s.post(func() { s.controller.PointerMove(e) })
}

func (s *Session) PointerUp(e canvas.PointerEvent) {
	s.post(func() { s.controller.PointerUp(e) })
}

func (s *Session) PointerLeave(e canvas.PointerEvent) {
	s.post(func() { s.controller.PointerLeave(e) })
}

func (s *Session) KeyDown(k canvas.KeyEvent) {
	s.post(func() { s.controller.KeyDown(k) })
}

func (s *Session) KeyUp(k canvas.KeyEvent) {
	s.post(func() { s.controller.KeyUp(k) })
}

func (s *Session) Wheel(e canvas.WheelEvent) {
	s.post(func() { s.controller.Wheel(e) })
}

// Resize updates the viewport to a new screen size.
func (s *Session) Resize(width, height float64) {
	s.post(func() {
		s.viewport.Resize(width, height)
		s.scheduler.RequestRedraw()
	})
}

// post queues fn behind a liveness check.
func (s *Session) post(fn func()) bool {
	if !s.alive.Load() {
		return false
	}
	return s.loop.Post(func() {
		if !s.alive.Load() {
			return
		}
		fn()
	})
}

func (s *Session) redraw() {
	if !s.alive.Load() {
		return
	}
	scene := canvas.Scene{Store: s.store, Viewport: s.viewport, PenWidth: s.controller.Width()}
	if s.surface != nil {
		s.stats = s.renderer.Draw(s.surface, scene)
	} else {
		s.stats = canvas.Stats{Total: len(s.store.Completed())}
	}
	if s.OnRedraw != nil {
		s.OnRedraw(s.stats)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"inkboard/canvas"
	"inkboard/collab"
	"inkboard/relay"
)

// sessionFlags are shared by the commands that act as a room peer.
type sessionFlags struct {
	room   string
	user   string
	linger time.Duration
}

func (s *sessionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.room, "room", "", "room id")
	fs.StringVar(&s.user, "user", "", "user id (default: random)")
	fs.DurationVar(&s.linger, "linger", 300*time.Millisecond, "time to let queued messages drain before disconnecting")
}

// peer is a connected, loaded headless session.
type peer struct {
	session *collab.Session
	client  *relay.WSClient
	cancel  context.CancelFunc
	linger  time.Duration
}

func connect(r *root, f sessionFlags) (*peer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := relay.Dial(ctx, r.wsURL(), nil)
	if err != nil {
		return nil, err
	}
	s := collab.NewSession(collab.Config{RoomID: f.room, UserID: f.user, Width: 1920, Height: 1080}, client, nil)
	if err := s.Subscribe(); err != nil {
		client.Close()
		return nil, err
	}
	runCtx, stop := context.WithCancel(context.Background())
	go s.Run(runCtx)

	loaded := make(chan error, 1)
	s.Load(ctx, collab.HTTPFetcher{BaseURL: r.server}, func(err error) { loaded <- err })
	select {
	case err = <-loaded:
	case <-ctx.Done():
		err = ctx.Err()
	}
	p := &peer{session: s, client: client, cancel: stop, linger: f.linger}
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("load room %s: %w", f.room, err)
	}
	logrus.WithFields(logrus.Fields{"room_id": f.room, "user_id": s.UserID()}).Debug("Connected")
	return p, nil
}

// sync runs fn on the session loop and waits for it.
func (p *peer) sync(fn func(e *collab.Engine)) {
	done := make(chan struct{})
	if !p.session.Do(func(e *collab.Engine) { fn(e); close(done) }) {
		return
	}
	<-done
}

func (p *peer) Close() {
	time.Sleep(p.linger)
	p.session.Close()
	p.cancel()
	p.client.Close()
}

// parsePoints reads "x,y[,pressure];x,y..." screen samples.
func parsePoints(s string) ([]canvas.PointerEvent, error) {
	var out []canvas.PointerEvent
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("point %q: want x,y or x,y,pressure", part)
		}
		var nums [3]float64
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("point %q: %w", part, err)
			}
			nums[i] = v
		}
		out = append(out, canvas.PointerEvent{X: nums[0], Y: nums[1], Pressure: nums[2]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no points")
	}
	return out, nil
}

type drawCmd struct {
	*root
	sessionFlags
	points []canvas.PointerEvent
	width  float64
	color  string
}

func parseDrawCmd(args []string, r *root) (*drawCmd, error) {
	fs := flag.NewFlagSet("draw", flag.ContinueOnError)
	cmd := &drawCmd{root: r}
	cmd.register(fs)
	points := fs.String("points", "", `screen samples, e.g. "10,10;40,30;80,35"`)
	fs.Float64Var(&cmd.width, "width", canvas.DefaultWidth, "pen width")
	fs.StringVar(&cmd.color, "color", canvas.DefaultColor, "pen color as #rrggbb")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cmd.room == "" {
		return nil, &UsageError{fs: fs, msg: "-room is required"}
	}
	pts, err := parsePoints(*points)
	if err != nil {
		return nil, &UsageError{fs: fs, msg: err.Error()}
	}
	cmd.points = pts
	return cmd, nil
}

func (c *drawCmd) Run() error {
	p, err := connect(c.root, c.sessionFlags)
	if err != nil {
		return err
	}
	defer p.Close()

	p.sync(func(e *collab.Engine) {
		e.Controller.SetTool(canvas.ToolPen)
		e.Controller.SetWidth(c.width)
		e.Controller.SetColor(c.color)
	})
	p.session.PointerDown(c.points[0])
	for _, pt := range c.points[1:] {
		p.session.PointerMove(pt)
	}
	p.session.PointerUp(c.points[len(c.points)-1])

	var total int
	p.sync(func(e *collab.Engine) { total = len(e.Store.Completed()) })
	logrus.WithFields(logrus.Fields{"room_id": c.room, "points": len(c.points), "strokes": total}).Info("Stroke sent")
	return nil
}

type eraseCmd struct {
	*root
	sessionFlags
	points []canvas.PointerEvent
	radius float64
}

func parseEraseCmd(args []string, r *root) (*eraseCmd, error) {
	fs := flag.NewFlagSet("erase", flag.ContinueOnError)
	cmd := &eraseCmd{root: r}
	cmd.register(fs)
	points := fs.String("points", "", `eraser path in screen pixels, e.g. "100,100" or "0,50;200,50"`)
	fs.Float64Var(&cmd.radius, "radius", canvas.DefaultEraserRadius, "eraser radius")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cmd.room == "" {
		return nil, &UsageError{fs: fs, msg: "-room is required"}
	}
	pts, err := parsePoints(*points)
	if err != nil {
		return nil, &UsageError{fs: fs, msg: err.Error()}
	}
	cmd.points = pts
	return cmd, nil
}

func (c *eraseCmd) Run() error {
	p, err := connect(c.root, c.sessionFlags)
	if err != nil {
		return err
	}
	defer p.Close()

	var before, after int
	p.sync(func(e *collab.Engine) {
		before = len(e.Store.Completed())
		e.Eraser.SetRadius(c.radius)
		e.Controller.SetTool(canvas.ToolEraser)
	})
	p.session.PointerDown(c.points[0])
	for _, pt := range c.points[1:] {
		p.session.PointerMove(pt)
	}
	p.session.PointerUp(c.points[len(c.points)-1])
	p.sync(func(e *collab.Engine) { after = len(e.Store.Completed()) })

	logrus.WithFields(logrus.Fields{"room_id": c.room, "erased": before - after}).Info("Erase sent")
	return nil
}

type undoCmd struct {
	*root
	sessionFlags
}

func parseUndoCmd(args []string, r *root) (*undoCmd, error) {
	fs := flag.NewFlagSet("undo", flag.ContinueOnError)
	cmd := &undoCmd{root: r}
	cmd.register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cmd.room == "" {
		return nil, &UsageError{fs: fs, msg: "-room is required"}
	}
	return cmd, nil
}

func (c *undoCmd) Run() error {
	p, err := connect(c.root, c.sessionFlags)
	if err != nil {
		return err
	}
	defer p.Close()

	var can bool
	p.sync(func(e *collab.Engine) { can = e.History.CanUndo() })
	p.session.KeyDown(canvas.KeyEvent{Key: "z", Ctrl: true})
	p.sync(func(*collab.Engine) {})
	logrus.WithFields(logrus.Fields{"room_id": c.room, "can_undo": can}).Info("Undo signal sent")
	return nil
}

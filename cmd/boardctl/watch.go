package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"inkboard/protocol"
	"inkboard/relay"
)

type watchCmd struct {
	*root
	room string
	dur  time.Duration
}

func parseWatchCmd(args []string, r *root) (*watchCmd, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	cmd := &watchCmd{root: r}
	fs.StringVar(&cmd.room, "room", "", "room id")
	fs.DurationVar(&cmd.dur, "for", 0, "stop after this long (default: until interrupted)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cmd.room == "" {
		return nil, &UsageError{fs: fs, msg: "-room is required"}
	}
	return cmd, nil
}

// describe turns one room body into log fields.
func describe(body []byte) (logrus.Fields, error) {
	m, err := protocol.Decode(body)
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{"type": m.Type, "user_id": m.UserID}
	if m.StrokeID != "" {
		fields["stroke_id"] = m.StrokeID
	}
	switch m.Type {
	case protocol.KindStrokeMove:
		if p, err := m.Move(); err == nil {
			fields["x"], fields["y"] = p.X, p.Y
		}
	case protocol.KindStrokeEnd:
		if p, err := m.End(); err == nil {
			fields["points"] = len(p.CurrentStrokes)
			fields["color"] = p.Color
		}
	case protocol.KindClear:
		if p, err := m.Clear(); err == nil {
			fields["erased"] = len(p.ErasedStrokes)
		}
	}
	return fields, nil
}

func (c *watchCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.dur > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.dur)
		defer cancel()
	}

	client, err := relay.Dial(ctx, c.wsURL(), nil)
	if err != nil {
		return err
	}
	defer client.Close()

	log := logrus.WithField("room_id", c.room)
	if _, err := client.Subscribe(protocol.Topic(c.room), func(body []byte) {
		fields, err := describe(body)
		if err != nil {
			log.WithError(err).Warn("Undecodable message")
			return
		}
		log.WithFields(fields).Info("Message")
	}); err != nil {
		return err
	}
	if _, err := client.Subscribe(protocol.UndoTopic(c.room), func(body []byte) {
		u, err := protocol.DecodeUndo(body)
		if err != nil {
			log.WithError(err).Warn("Undecodable undo signal")
			return
		}
		log.WithFields(logrus.Fields{"user_id": u.UserID, "can_undo": u.CanUndo}).Info("Undo")
	}); err != nil {
		return err
	}

	log.Info("Watching")
	select {
	case <-ctx.Done():
	case <-client.Done():
		log.Warn("Connection closed by server")
	}
	return nil
}

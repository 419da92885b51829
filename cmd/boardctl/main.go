// Command boardctl is a headless inkboard client: it renders rooms, replays
// strokes, erases, undoes and watches room traffic through a relay server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type runnable interface{ Run() error }

// UsageError asks main to print usage instead of failing.
type UsageError struct {
	fs  *flag.FlagSet
	msg string
}

func (e *UsageError) Error() string {
	var b strings.Builder
	if e.msg != "" {
		b.WriteString(e.msg + "\n")
	}
	fmt.Fprintf(&b, "usage: %s [flags]", e.fs.Name())
	if e.fs.Name() == "boardctl" {
		b.WriteString(" <render|draw|erase|undo|watch|discover> [flags]")
	}
	return b.String()
}

type root struct {
	fs       *flag.FlagSet
	server   string
	logLevel string
}

func newRoot() *root {
	r := &root{fs: flag.NewFlagSet("boardctl", flag.ContinueOnError)}
	def := os.Getenv("INKBOARD_SERVER")
	if def == "" {
		def = "http://localhost:3002"
	}
	r.fs.StringVar(&r.server, "server", def, "relay server base URL (INKBOARD_SERVER)")
	r.fs.StringVar(&r.logLevel, "loglevel", "info", "log level: debug, info, warn, error")
	return r
}

// wsURL maps the server base URL onto the websocket endpoint.
func (r *root) wsURL() string {
	base := strings.TrimRight(r.server, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func (r *root) Run(args []string) error {
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	level, err := logrus.ParseLevel(r.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	if r.fs.NArg() < 1 {
		return &UsageError{fs: r.fs}
	}

	name, sub := r.fs.Arg(0), r.fs.Args()[1:]
	var cmd runnable
	switch name {
	case "render":
		cmd, err = parseRenderCmd(sub, r)
	case "draw":
		cmd, err = parseDrawCmd(sub, r)
	case "erase":
		cmd, err = parseEraseCmd(sub, r)
	case "undo":
		cmd, err = parseUndoCmd(sub, r)
	case "watch":
		cmd, err = parseWatchCmd(sub, r)
	case "discover":
		cmd, err = parseDiscoverCmd(sub, r)
	default:
		err = &UsageError{fs: r.fs, msg: "unknown command " + name}
	}
	if err != nil {
		return err
	}
	return cmd.Run()
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
	if err := newRoot().Run(os.Args[1:]); err != nil {
		var uerr *UsageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(os.Stderr, uerr.Error())
			os.Exit(2)
		}
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

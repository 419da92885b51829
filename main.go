package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"inkboard/autosave"
	"inkboard/core"
	"inkboard/discovery"
	renderapi "inkboard/handlers/api/render"
	"inkboard/handlers/api/snapshots"
	"inkboard/handlers/api/strokes"
	"inkboard/handlers/websocket"
	"inkboard/protocol"
	"inkboard/relay"
	"inkboard/stores"
)

type roomEntry struct {
	ID         string `json:"id"`
	Users      int    `json:"users"`
	LastActive *int64 `json:"lastActive,omitempty"`
}

// originAllowed accepts localhost, the tauri shell and any origin listed in
// extra. An empty origin is a non-browser client.
func originAllowed(extra []string) func(origin string) bool {
	return func(origin string) bool {
		if origin == "" {
			return false
		}
		for _, o := range extra {
			if o == origin || o == "*" {
				return true
			}
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		switch parsed.Scheme {
		case "http", "https":
			switch parsed.Hostname() {
			case "localhost", "127.0.0.1", "::1":
				return true
			}
		case "tauri":
			return parsed.Hostname() == "localhost"
		}
		return false
	}
}

// listRooms merges live subscriber counts from the hub with the registry's
// last activity.
func listRooms(hub *relay.Hub, registry core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := make(map[string]*roomEntry)
		for topic, n := range hub.Subscribers() {
			id, undo, ok := protocol.ParseTopic(topic)
			if !ok || undo {
				continue
			}
			rooms[id] = &roomEntry{ID: id, Users: n}
		}

		if stored, err := registry.ListRooms(r.Context()); err != nil {
			logrus.WithError(err).Warn("failed to list rooms from registry")
		} else {
			for _, room := range stored {
				entry, ok := rooms[room.ID]
				if !ok {
					entry = &roomEntry{ID: room.ID}
					rooms[room.ID] = entry
				}
				if room.LastActive > 0 {
					last := room.LastActive
					entry.LastActive = &last
				}
			}
		}

		list := make([]roomEntry, 0, len(rooms))
		for _, e := range rooms {
			list = append(list, *e)
		}
		active := func(e roomEntry) int64 {
			if e.LastActive == nil {
				return 0
			}
			return *e.LastActive
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Users != list[j].Users {
				return list[i].Users > list[j].Users
			}
			if li, lj := active(list[i]), active(list[j]); li != lj {
				return li > lj
			}
			return list[i].ID < list[j].ID
		})
		render.JSON(w, r, list)
	}
}

func setupRouter(store core.Store, hub *relay.Hub, gateway *websocket.Gateway, origins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	allowed := originAllowed(origins)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(_ *http.Request, origin string) bool { return allowed(origin) },
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/rooms", listRooms(hub, store))
	r.Get("/api/draw", strokes.HandleDraw(store))

	snapshotStore, withSnapshots := store.(snapshots.Store)
	r.Route("/api/rooms/{roomId}", func(r chi.Router) {
		r.Delete("/", snapshots.HandleDeleteRoom(store))
		r.Get("/strokes", strokes.HandleList(store))
		r.Get("/render.png", renderapi.HandlePNG(store))
		r.Get("/export.pdf", renderapi.HandlePDF(store))
		if !withSnapshots {
			return
		}
		r.Route("/snapshots", func(r chi.Router) {
			r.Post("/", snapshots.HandleCreateSnapshot(snapshotStore))
			r.Get("/", snapshots.HandleListSnapshots(snapshotStore))
			r.Get("/count", snapshots.HandleGetSnapshotCount(snapshotStore))
		})
		r.Put("/autosave", snapshots.HandleUpsertAutosaveSnapshot(snapshotStore))
		r.Get("/settings", snapshots.HandleGetRoomSettings(snapshotStore))
		r.Put("/settings", snapshots.HandleUpdateRoomSettings(snapshotStore))
	})

	if withSnapshots {
		r.Route("/api/snapshots/{snapshotId}", func(r chi.Router) {
			r.Get("/", snapshots.HandleGetSnapshot(snapshotStore))
			r.Delete("/", snapshots.HandleDeleteSnapshot(snapshotStore))
			r.Put("/", snapshots.HandleUpdateSnapshot(snapshotStore))
		})
		logrus.Info("Snapshot API routes registered")
	} else {
		logrus.Warn("Snapshot API not available - requires SQLite storage")
	}

	r.Handle("/ws", websocket.NewWSHandler(hub, store, func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		return origin == "" || allowed(origin)
	}))
	if gateway != nil {
		r.Handle("/socket.io/", gateway.Server().ServeHandler(nil))
	}
	return r
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setupLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(lvl)
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	logFormat := flag.String("logformat", "text", "Log output format: text or json")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	advertise := flag.Bool("mdns", false, "Advertise the relay on the local network over mDNS")
	schedule := flag.String("autosave", autosave.DefaultSchedule, `Autosave schedule for snapshot-capable stores, or "off"`)
	flag.Parse()

	if err := setupLogging(*logLevel, *logFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	store, err := stores.GetStore(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open storage")
	}

	hub := relay.NewHub()
	hub.Observe(websocket.NewPersister(store).Observe)
	origins := splitList(os.Getenv("CORS_ORIGINS"))
	gateway := websocket.SetupSocketIO(hub, store, origins...)

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           setupRouter(store, hub, gateway, origins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var saver *autosave.Saver
	if s, ok := store.(snapshots.Store); ok && *schedule != "off" {
		saver = autosave.New(s)
		if err := saver.Start(*schedule); err != nil {
			logrus.WithError(err).Fatal("Failed to schedule autosave")
		}
	}

	if *advertise {
		port, err := discovery.ListenPort(*listenAddr)
		if err != nil {
			logrus.WithError(err).Fatal("Cannot advertise")
		}
		mdnsServer, err := discovery.Advertise(port)
		if err != nil {
			logrus.WithError(err).Error("mDNS advertisement failed")
		} else {
			defer mdnsServer.Shutdown()
		}
	}

	logrus.WithField("addr", *listenAddr).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown incomplete")
	}
	gateway.Close()
	if saver != nil {
		saver.Stop()
	}
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close storage")
		}
	}
}

// Package autosave periodically writes an autosave snapshot of every room
// that changed since its last one.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"inkboard/handlers/api/snapshots"
)

// DefaultSchedule runs a pass every minute.
const DefaultSchedule = "@every 1m"

type saved struct {
	at       time.Time
	activity int64
}

// Saver decides which rooms are due and writes their autosaves.
type Saver struct {
	store snapshots.Store
	now   func() time.Time

	mu   sync.Mutex
	last map[string]saved
	cron *cron.Cron
}

func New(store snapshots.Store) *Saver {
	return &Saver{store: store, now: time.Now, last: make(map[string]saved)}
}

// RunOnce autosaves every room with activity newer than its last autosave
// whose AutoSaveInterval has elapsed. It returns how many rooms were saved.
func (s *Saver) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}
	now := s.now()
	n := 0
	for _, room := range rooms {
		log := logrus.WithField("room_id", room.ID)
		prev, ok := s.last[room.ID]
		if ok && room.LastActive <= prev.activity {
			continue
		}
		settings, err := s.store.GetRoomSettings(ctx, room.ID)
		if err != nil {
			log.WithError(err).Warn("Failed to read room settings")
			continue
		}
		if ok && now.Sub(prev.at) < time.Duration(settings.AutoSaveInterval)*time.Second {
			continue
		}

		data, err := snapshots.Capture(ctx, s.store, room.ID)
		if err != nil {
			log.WithError(err).Error("Failed to capture board")
			continue
		}
		id, err := s.store.UpsertAutosave(ctx, room.ID, data)
		if err != nil {
			log.WithError(err).Error("Failed to autosave")
			continue
		}
		s.last[room.ID] = saved{at: now, activity: room.LastActive}
		log.WithField("snapshot_id", id).Info("Room autosaved")
		n++
	}
	return n, nil
}

// Start schedules RunOnce on schedule, a cron expression or "@every" duration.
func (s *Saver) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n, err := s.RunOnce(ctx); err != nil {
			logrus.WithError(err).Error("Autosave pass failed")
		} else if n > 0 {
			logrus.WithField("rooms", n).Debug("Autosave pass done")
		}
	})
	if err != nil {
		return fmt.Errorf("autosave schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	logrus.WithField("schedule", schedule).Info("Autosave scheduled")
	return nil
}

// Stop halts the schedule and waits for a running pass.
func (s *Saver) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

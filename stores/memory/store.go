package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"inkboard/core"
)

type room struct {
	order      []string
	strokes    map[string]core.StrokeRecord
	lastActive int64
}

type store struct {
	mu    sync.RWMutex
	rooms map[string]*room
	now   func() time.Time
}

func NewStore() core.Store {
	return &store{rooms: make(map[string]*room), now: time.Now}
}

func (s *store) room(id string) *room {
	r := s.rooms[id]
	if r == nil {
		r = &room{strokes: make(map[string]core.StrokeRecord)}
		s.rooms[id] = r
	}
	return r
}

func (s *store) ListStrokes(ctx context.Context, roomID string) ([]core.StrokeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.rooms[roomID]
	if r == nil {
		return []core.StrokeRecord{}, nil
	}
	out := make([]core.StrokeRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.strokes[id])
	}
	return out, nil
}

func (s *store) SaveStroke(ctx context.Context, rec core.StrokeRecord) error {
	if rec.RoomID == "" || rec.ID == "" {
		return fmt.Errorf("room id and stroke id are required")
	}
	log := logrus.WithFields(logrus.Fields{"room_id": rec.RoomID, "stroke_id": rec.ID})

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(rec.RoomID)
	if old, ok := r.strokes[rec.ID]; ok {
		rec.CreatedAt = old.CreatedAt
		r.strokes[rec.ID] = rec
		log.Debug("Stroke updated")
		return nil
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.now().UnixMilli()
	}
	r.strokes[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	log.Debug("Stroke saved")
	return nil
}

func (s *store) DeleteStrokes(ctx context.Context, roomID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rooms[roomID]
	if r == nil {
		return 0, nil
	}
	removed := 0
	for _, id := range ids {
		if _, ok := r.strokes[id]; ok {
			delete(r.strokes, id)
			removed++
		}
	}
	if removed > 0 {
		kept := r.order[:0]
		for _, id := range r.order {
			if _, ok := r.strokes[id]; ok {
				kept = append(kept, id)
			}
		}
		r.order = kept
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "removed": removed}).Debug("Strokes deleted")
	return removed, nil
}

func (s *store) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	s.room(roomID).lastActive = s.now().UnixMilli()
	s.mu.Unlock()

	return nil
}

func (s *store) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for id, r := range s.rooms {
		if r.lastActive == 0 {
			continue
		}
		rooms = append(rooms, core.Room{ID: id, LastActive: r.lastActive})
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})

	return rooms, nil
}

func (s *store) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	delete(s.rooms, roomID)
	return nil
}

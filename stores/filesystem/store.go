package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"inkboard/core"
)

const (
	strokesFile = "strokes.json"
	roomFile    = "room.json"
)

// fsStore keeps one directory per room holding its strokes as a JSON array
// and its registry entry. Writes go through a temp file and rename.
type fsStore struct {
	mu       sync.Mutex
	basePath string
	now      func() time.Time
}

type roomMeta struct {
	ID         string `json:"id"`
	LastActive int64  `json:"lastActive"`
}

// NewStore creates a filesystem store rooted at basePath.
func NewStore(basePath string) (core.Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &fsStore{basePath: basePath, now: time.Now}, nil
}

func (s *fsStore) roomDir(roomID string) string {
	name := url.PathEscape(roomID)
	if strings.Trim(name, ".") == "" {
		name = strings.ReplaceAll(name, ".", "%2E")
	}
	return filepath.Join(s.basePath, name)
}

func (s *fsStore) readStrokes(roomID string) ([]core.StrokeRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.roomDir(roomID), strokesFile))
	if errors.Is(err, os.ErrNotExist) {
		return []core.StrokeRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []core.StrokeRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode %s strokes: %w", roomID, err)
	}
	return recs, nil
}

func (s *fsStore) writeJSON(roomID, name string, v any) error {
	dir := s.roomDir(roomID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, name+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

func (s *fsStore) ListStrokes(ctx context.Context, roomID string) ([]core.StrokeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readStrokes(roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to read strokes")
		return nil, err
	}
	return recs, nil
}

func (s *fsStore) SaveStroke(ctx context.Context, rec core.StrokeRecord) error {
	if rec.RoomID == "" || rec.ID == "" {
		return fmt.Errorf("room id and stroke id are required")
	}
	log := logrus.WithFields(logrus.Fields{"room_id": rec.RoomID, "stroke_id": rec.ID})

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readStrokes(rec.RoomID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range recs {
		if recs[i].ID == rec.ID {
			rec.CreatedAt = recs[i].CreatedAt
			recs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		if rec.CreatedAt == 0 {
			rec.CreatedAt = s.now().UnixMilli()
		}
		recs = append(recs, rec)
	}
	if err := s.writeJSON(rec.RoomID, strokesFile, recs); err != nil {
		log.WithError(err).Error("Failed to save stroke")
		return err
	}
	log.Debug("Stroke saved")
	return nil
}

func (s *fsStore) DeleteStrokes(ctx context.Context, roomID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readStrokes(roomID)
	if err != nil {
		return 0, err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := recs[:0]
	for _, r := range recs {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	removed := len(recs) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.writeJSON(roomID, strokesFile, kept); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to delete strokes")
		return 0, err
	}
	return removed, nil
}

func (s *fsStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(roomID, roomFile, roomMeta{ID: roomID, LastActive: s.now().UnixMilli()})
}

func (s *fsStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	rooms := make([]core.Room, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, e.Name(), roomFile))
		if err != nil {
			continue
		}
		var m roomMeta
		if err := json.Unmarshal(data, &m); err != nil {
			logrus.WithError(err).Warnf("Skipping unreadable room %s", e.Name())
			continue
		}
		rooms = append(rooms, core.Room{ID: m.ID, LastActive: m.LastActive})
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})
	return rooms, nil
}

func (s *fsStore) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.roomDir(roomID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	return os.RemoveAll(dir)
}

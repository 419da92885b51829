package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"inkboard/core"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS strokes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (room_id, id)
	);`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		last_active INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		name TEXT,
		description TEXT,
		thumbnail TEXT,
		created_by TEXT,
		created_at INTEGER NOT NULL,
		data BLOB NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS room_settings (
		room_id TEXT PRIMARY KEY,
		max_snapshots INTEGER DEFAULT 10,
		auto_save_interval INTEGER DEFAULT 300
	);`,
}

// Store is the SQLite backend. Besides core.Store it provides
// core.SnapshotStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ core.Store         = (*Store)(nil)
	_ core.SnapshotStore = (*Store)(nil)
)

// NewStore opens dataSourceName and creates missing tables.
func NewStore(dataSourceName string) (*Store, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	logrus.WithFields(logrus.Fields{"driver": driverName, "cgo": CGOEnabled}).Debug("sqlite store ready")
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ListStrokes(ctx context.Context, roomID string) ([]core.StrokeRecord, error) {
	log := logrus.WithField("room_id", roomID)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, created_at FROM strokes WHERE room_id = ? ORDER BY seq ASC", roomID)
	if err != nil {
		log.WithError(err).Error("Failed to list strokes")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close stroke rows")
		}
	}()

	recs := []core.StrokeRecord{}
	for rows.Next() {
		rec := core.StrokeRecord{RoomID: roomID}
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stroke: %w", err)
		}
		rec.Payload = []byte(payload)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) SaveStroke(ctx context.Context, rec core.StrokeRecord) error {
	if rec.RoomID == "" || rec.ID == "" {
		return fmt.Errorf("room id and stroke id are required")
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.now().UnixMilli()
	}
	log := logrus.WithFields(logrus.Fields{"room_id": rec.RoomID, "stroke_id": rec.ID})

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strokes (room_id, id, payload, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(room_id, id) DO UPDATE SET payload = excluded.payload`,
		rec.RoomID, rec.ID, string(rec.Payload), rec.CreatedAt)
	if err != nil {
		log.WithError(err).Error("Failed to save stroke")
		return err
	}
	log.Debug("Stroke saved")
	return nil
}

func (s *Store) DeleteStrokes(ctx context.Context, roomID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, roomID)
	for _, id := range ids {
		args = append(args, id)
	}
	q := "DELETE FROM strokes WHERE room_id = ? AND id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to delete strokes")
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (room_id, last_active) VALUES (?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET last_active = excluded.last_active`,
		roomID, s.now().UnixMilli())
	return err
}

func (s *Store) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT room_id, last_active FROM rooms ORDER BY last_active DESC, room_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []core.Room{}
	for rows.Next() {
		var r core.Room
		if err := rows.Scan(&r.ID, &r.LastActive); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// DeleteRoom drops the room's strokes, snapshots, settings and registry
// entry in one transaction.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	log := logrus.WithField("room_id", roomID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var total int64
	for _, table := range []string{"strokes", "snapshots", "room_settings", "rooms"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE room_id = ?", roomID)
		if err != nil {
			log.WithError(err).WithField("table", table).Error("Failed to delete room")
			return err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if total == 0 {
		return fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Info("Room deleted")
	return nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return err
}

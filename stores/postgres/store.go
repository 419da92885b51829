// Package postgres stores rooms and strokes in PostgreSQL, keeping stroke
// payloads as jsonb.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"inkboard/core"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS drawing_operations (
		seq BIGSERIAL,
		room_id TEXT NOT NULL,
		id TEXT NOT NULL,
		operation_type TEXT NOT NULL DEFAULT 'stroke',
		payload JSONB NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (room_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		last_active BIGINT NOT NULL
	)`,
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ core.Store = (*Store)(nil)

// NewStore connects with a lib/pq DSN and creates missing tables.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ListStrokes(ctx context.Context, roomID string) ([]core.StrokeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, created_at FROM drawing_operations WHERE room_id = $1 ORDER BY seq`, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to list strokes")
		return nil, err
	}
	defer rows.Close()

	recs := []core.StrokeRecord{}
	for rows.Next() {
		rec := core.StrokeRecord{RoomID: roomID}
		var payload []byte
		if err := rows.Scan(&rec.ID, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stroke: %w", err)
		}
		rec.Payload = payload
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drawing_operations (room_id, id, payload, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (room_id, id) DO UPDATE SET payload = EXCLUDED.payload`,
		rec.RoomID, rec.ID, string(rec.Payload), rec.CreatedAt)
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": rec.RoomID, "stroke_id": rec.ID}).WithError(err).Error("Failed to save stroke")
		return err
	}
	return nil
}

func (s *Store) DeleteStrokes(ctx context.Context, roomID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM drawing_operations WHERE room_id = $1 AND id = ANY($2)`, roomID, pq.Array(ids))
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
		`INSERT INTO rooms (room_id, last_active) VALUES ($1, $2)
		 ON CONFLICT (room_id) DO UPDATE SET last_active = EXCLUDED.last_active`,
		roomID, s.now().UnixMilli())
	return err
}

func (s *Store) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room_id, last_active FROM rooms ORDER BY last_active DESC, room_id`)
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

func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var total int64
	for _, q := range []string{
		`DELETE FROM drawing_operations WHERE room_id = $1`,
		`DELETE FROM rooms WHERE room_id = $1`,
	} {
		res, err := tx.ExecContext(ctx, q, roomID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if total == 0 {
		return fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	return tx.Commit()
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"inkboard/core"
)

const (
	snapshotColumns = "id, room_id, name, description, thumbnail, created_by, created_at"
	insertSnapshot  = "INSERT INTO snapshots (" + snapshotColumns + ", data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	evictOldest     = "DELETE FROM snapshots WHERE id IN (SELECT id FROM snapshots WHERE room_id = ? ORDER BY created_at ASC, id ASC LIMIT ?)"
)

// CreateSnapshot stores a snapshot. When the room is at its limit the oldest
// snapshots go first, in the same transaction.
func (s *Store) CreateSnapshot(ctx context.Context, roomID, name, description, thumbnail, createdBy string, data []byte) (string, error) {
	snap := core.Snapshot{
		ID:          ulid.Make().String(),
		RoomID:      roomID,
		Name:        name,
		Description: description,
		Thumbnail:   thumbnail,
		CreatedBy:   createdBy,
		CreatedAt:   int64(ulid.Now()),
	}
	log := logrus.WithFields(logrus.Fields{"snapshot_id": snap.ID, "room_id": roomID, "bytes": len(data)})

	settings, err := s.GetRoomSettings(ctx, roomID)
	if err != nil {
		settings = core.DefaultRoomSettings(roomID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var held int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE room_id = ?", roomID).Scan(&held); err != nil {
		return "", fmt.Errorf("count snapshots: %w", err)
	}
	if over := held - settings.MaxSnapshots + 1; over > 0 {
		if _, err := tx.ExecContext(ctx, evictOldest, roomID, over); err != nil {
			return "", fmt.Errorf("evict snapshots: %w", err)
		}
		log = log.WithField("evicted", over)
	}
	if _, err := tx.ExecContext(ctx, insertSnapshot, insertArgs(snap, data)...); err != nil {
		log.WithError(err).Error("Failed to create snapshot")
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit snapshot: %w", err)
	}

	log.Info("Snapshot created")
	return snap.ID, nil
}

func insertArgs(snap core.Snapshot, data []byte) []any {
	return []any{snap.ID, snap.RoomID, snap.Name, snap.Description, snap.Thumbnail, snap.CreatedBy, snap.CreatedAt, data}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner, extra ...any) (core.Snapshot, error) {
	var snap core.Snapshot
	var name, description, thumbnail, createdBy sql.NullString
	dest := append([]any{&snap.ID, &snap.RoomID, &name, &description, &thumbnail, &createdBy, &snap.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return snap, err
	}
	snap.Name, snap.Description = name.String, description.String
	snap.Thumbnail, snap.CreatedBy = thumbnail.String, createdBy.String
	return snap, nil
}

// ListSnapshots returns metadata for a room's snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, roomID string) ([]core.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE room_id = ? ORDER BY created_at DESC, id DESC", roomID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	list := []core.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Skipping unreadable snapshot row")
			continue
		}
		list = append(list, snap)
	}
	return list, rows.Err()
}

func (s *Store) GetSnapshot(ctx context.Context, id string) (*core.Snapshot, error) {
	var data []byte
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+", data FROM snapshots WHERE id = ?", id), &data)
	if err != nil {
		return nil, notFound(err, "snapshot", id)
	}
	snap.Data = data
	return &snap, nil
}

// affected turns a zero-row result into ErrNotFound.
func affected(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err := affected(res, err, id); err != nil {
		return err
	}
	logrus.WithField("snapshot_id", id).Info("Snapshot deleted")
	return nil
}

func (s *Store) UpdateSnapshotMetadata(ctx context.Context, id, name, description string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE snapshots SET name = ?, description = ? WHERE id = ?", name, description, id)
	return affected(res, err, id)
}

// GetRoomSettings returns stored settings or the defaults.
func (s *Store) GetRoomSettings(ctx context.Context, roomID string) (*core.RoomSettings, error) {
	settings := core.RoomSettings{RoomID: roomID}
	err := s.db.QueryRowContext(ctx,
		"SELECT max_snapshots, auto_save_interval FROM room_settings WHERE room_id = ?", roomID,
	).Scan(&settings.MaxSnapshots, &settings.AutoSaveInterval)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.DefaultRoomSettings(roomID), nil
	case err != nil:
		return nil, fmt.Errorf("room settings %s: %w", roomID, err)
	}
	return &settings, nil
}

func (s *Store) UpdateRoomSettings(ctx context.Context, roomID string, maxSnapshots, autoSaveInterval int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_settings (room_id, max_snapshots, auto_save_interval) VALUES (?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET max_snapshots = excluded.max_snapshots, auto_save_interval = excluded.auto_save_interval`,
		roomID, maxSnapshots, autoSaveInterval)
	if err != nil {
		return fmt.Errorf("update room settings %s: %w", roomID, err)
	}
	logrus.WithFields(logrus.Fields{
		"room_id":            roomID,
		"max_snapshots":      maxSnapshots,
		"auto_save_interval": autoSaveInterval,
	}).Info("Room settings updated")
	return nil
}

// UpsertAutosave keeps at most one autosave snapshot per room, reusing its
// id.
func (s *Store) UpsertAutosave(ctx context.Context, roomID string, data []byte) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM snapshots WHERE room_id = ? AND created_by = ? LIMIT 1", roomID, core.AutosaveCreator,
	).Scan(&id)
	now := int64(ulid.Now())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		snap := core.Snapshot{ID: ulid.Make().String(), RoomID: roomID, Name: "Autosave", CreatedBy: core.AutosaveCreator, CreatedAt: now}
		id = snap.ID
		_, err = s.db.ExecContext(ctx, insertSnapshot, insertArgs(snap, data)...)
	case err == nil:
		_, err = s.db.ExecContext(ctx, "UPDATE snapshots SET data = ?, created_at = ? WHERE id = ?", data, now, id)
	}
	if err != nil {
		return "", fmt.Errorf("autosave %s: %w", roomID, err)
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "snapshot_id": id}).Debug("Autosave written")
	return id, nil
}

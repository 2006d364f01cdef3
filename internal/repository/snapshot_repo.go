package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"conductbridge"
)

type SnapshotSQLite struct {
	db *sql.DB
}

func NewSnapshotSQLite(db *sql.DB) *SnapshotSQLite {
	return &SnapshotSQLite{db: db}
}

var _ SnapshotRepo = (*SnapshotSQLite)(nil)

const (
	snapshotRowID = 1

	upsertSnapshotSQL = `
		INSERT INTO topology_snapshot (id, rooms, active_salvos, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rooms=excluded.rooms,
			active_salvos=excluded.active_salvos,
			updated_at=excluded.updated_at
	`

	selectSnapshotSQL = `
		SELECT rooms, active_salvos, updated_at
		FROM topology_snapshot WHERE id=?
	`
)

// Save replaces the single snapshot row (id always 1). Rooms and active ids
// are stored as JSON text; they are only read back as a unit, never queried.
func (r *SnapshotSQLite) Save(ctx context.Context, rec conductbridge.SnapshotRecord) error {
	roomsJSON, err := json.Marshal(rec.Rooms)
	if err != nil {
		return err
	}
	activeJSON, err := json.Marshal(rec.ActiveSalvoIDs)
	if err != nil {
		return err
	}

	ts := rec.UpdatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	_, err = r.db.ExecContext(ctx, upsertSnapshotSQL,
		snapshotRowID,
		string(roomsJSON),
		string(activeJSON),
		ts,
	)
	return err
}

// Load fetches the snapshot row. Returns a zero record if none was saved yet.
func (r *SnapshotSQLite) Load(ctx context.Context) (conductbridge.SnapshotRecord, error) {
	row := r.db.QueryRowContext(ctx, selectSnapshotSQL, snapshotRowID)

	var (
		rec        conductbridge.SnapshotRecord
		roomsJSON  string
		activeJSON sql.NullString
	)
	if err := row.Scan(&roomsJSON, &activeJSON, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conductbridge.SnapshotRecord{}, nil // no snapshot yet
		}
		return conductbridge.SnapshotRecord{}, err
	}

	if err := json.Unmarshal([]byte(roomsJSON), &rec.Rooms); err != nil {
		return conductbridge.SnapshotRecord{}, err
	}
	if activeJSON.Valid && activeJSON.String != "" {
		if err := json.Unmarshal([]byte(activeJSON.String), &rec.ActiveSalvoIDs); err != nil {
			return conductbridge.SnapshotRecord{}, err
		}
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	return rec, nil
}

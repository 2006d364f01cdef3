package repository

import (
	"context"
	"database/sql"
	"time"

	"conductbridge"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*conductbridge.User, error)
}

// SnapshotRepo persists the last-known-good topology snapshot so a restarted
// bridge can serve data before its first successful poll.
type SnapshotRepo interface {
	Save(ctx context.Context, rec conductbridge.SnapshotRecord) error
	Load(ctx context.Context) (conductbridge.SnapshotRecord, error)
}

// EventRepo is the append-only change/trigger log.
type EventRepo interface {
	Append(ctx context.Context, e conductbridge.BridgeEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]conductbridge.BridgeEvent, error)
}

type Repository struct {
	Snapshot SnapshotRepo
	Events   EventRepo
	Auth     Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Snapshot: NewSnapshotSQLite(db),
		Events:   NewEventSQLite(db),
		Auth:     NewUserRepository(db),
	}
}

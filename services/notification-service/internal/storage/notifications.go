package storage

import (
	"context"
	"embed"
	"io/fs"

	"github.com/md-rashed-zaman/salonbook/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	EventID       string
	EventType     string
	AppointmentID string
	BusinessID    string
	Channel       string
	Recipient     string
	Provider      string
	Status        string
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, event_type, appointment_id, business_id, channel, recipient, provider, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, n.EventID, n.EventType, n.AppointmentID, n.BusinessID, n.Channel, n.Recipient, n.Provider, n.Status, n.Error)
	return err
}

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationLockKey int64 = 7301011

// Migrate applies the notification schema.
func Migrate(ctx context.Context, pool *db.Pool) ([]string, error) {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	return db.Migrate(ctx, pool, db.MigrationSet{
		Files:   files,
		Table:   "notification_schema_migrations",
		LockKey: migrationLockKey,
	})
}

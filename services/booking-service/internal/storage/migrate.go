package storage

import (
	"context"
	"embed"
	"io/fs"

	"github.com/md-rashed-zaman/salonbook/libs/db"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationLockKey int64 = 7301001

// Migrate applies the booking schema and returns the file names applied.
func Migrate(ctx context.Context, pool *db.Pool) ([]string, error) {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	return db.Migrate(ctx, pool, db.MigrationSet{
		Files:   files,
		Table:   "schema_migrations",
		LockKey: migrationLockKey,
	})
}

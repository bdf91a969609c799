package store

import (
	"context"
	"fmt"

	"github.com/provio/fieldsync/internal/config"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/migrations"
)

// ClientStorages groups the local-database repositories into a single value
// that can be passed around the service layer.
type ClientStorages struct {
	// Records is the generic repository for synchronized entity rows.
	Records RecordRepository
	// Cursors persists per-entity pull watermarks.
	Cursors CursorRepository
	// Uploads persists the attachment upload queue.
	Uploads UploadQueueRepository
}

// NewClientStorages initialises the local storage layer using the supplied
// configuration and logger. It performs the following steps:
//  1. Opens an SQLite connection to the file path specified in cfg.DSN,
//     creating the database file if it does not yet exist.
//  2. Runs pending schema migrations via [migrations.Migrate].
//  3. Constructs and returns a [ClientStorages] value wired to fresh
//     repositories.
//
// Returns an error if the database connection cannot be established or if
// migration fails.
func NewClientStorages(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (*ClientStorages, error) {
	log.Info().Msg("creating new storages...")

	db, err := NewConnectSQLite(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("sqlite connection error: %w", err)
	}

	if err = migrations.Migrate(db.DB); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &ClientStorages{
		Records: NewRecordRepository(db, log),
		Cursors: NewCursorRepository(db, log),
		Uploads: NewUploadQueueRepository(db, log),
	}, nil
}

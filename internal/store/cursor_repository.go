package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/provio/fieldsync/internal/logger"
)

const (
	getCursor = `
		SELECT cursor
		FROM sync_cursors
		WHERE descriptor = ? AND scope = ?;`

	upsertCursor = `
		INSERT INTO sync_cursors (descriptor, scope, cursor)
		VALUES (?, ?, ?)
		ON CONFLICT(descriptor, scope) DO UPDATE SET cursor = excluded.cursor;`
)

type cursorRepository struct {
	*DB
	logger *logger.Logger
}

// NewCursorRepository constructs the sqlite-backed CursorRepository.
func NewCursorRepository(db *DB, log *logger.Logger) CursorRepository {
	return &cursorRepository{DB: db, logger: log}
}

// Get returns the persisted watermark for (descriptor, scope); the zero time
// when no pull has completed yet.
func (c *cursorRepository) Get(ctx context.Context, descriptor, scope string) (time.Time, error) {
	var raw string
	err := c.QueryRowContext(ctx, getCursor, descriptor, scope).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query cursor (%s/%s): %w", descriptor, scope, err)
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse cursor (%s/%s): %w", descriptor, scope, err)
	}
	return t.UTC(), nil
}

// Advance moves the watermark forward. RFC3339Nano fractions have variable
// length, so the monotonic guard compares parsed timestamps in Go rather
// than strings in SQL; an older or equal value is a no-op.
func (c *cursorRepository) Advance(ctx context.Context, descriptor, scope string, to time.Time) error {
	log := logger.FromContext(ctx)

	if to.IsZero() {
		return nil
	}

	current, err := c.Get(ctx, descriptor, scope)
	if err != nil {
		return err
	}
	if !to.After(current) {
		return nil
	}

	if _, err = c.ExecContext(ctx, upsertCursor, descriptor, scope, to.UTC().Format(time.RFC3339Nano)); err != nil {
		log.Err(err).
			Str("func", "cursorRepository.Advance").
			Str("descriptor", descriptor).
			Str("scope", scope).
			Msg("failed to persist cursor")
		return fmt.Errorf("failed to advance cursor (%s/%s): %w", descriptor, scope, err)
	}

	return nil
}

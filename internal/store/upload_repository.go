package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/models"
)

// uploadTimeLayout pads fractional seconds to a fixed width so the
// next_attempt_at comparison in dueUploads stays correct as a plain string
// comparison. RFC3339Nano trims trailing zeros and breaks that ordering.
const uploadTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	enqueueUpload = `
		INSERT INTO upload_queue (
			id,
			entity,
			record_local_id,
			field,
			file_path,
			attempt_count,
			next_attempt_at,
			status,
			last_error,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	dueUploads = `
		SELECT
			id,
			entity,
			record_local_id,
			field,
			file_path,
			attempt_count,
			next_attempt_at,
			status,
			last_error,
			created_at
		FROM upload_queue
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?;`

	setUploadStatus = `
		UPDATE upload_queue SET status = ? WHERE id = ?;`

	setUploadUploaded = `
		UPDATE upload_queue SET status = ?, last_error = '' WHERE id = ?;`

	setUploadRetry = `
		UPDATE upload_queue SET
			status = ?,
			attempt_count = ?,
			next_attempt_at = ?,
			last_error = ?
		WHERE id = ?;`

	setUploadFailed = `
		UPDATE upload_queue SET status = ?, last_error = ? WHERE id = ?;`

	recoverUploads = `
		UPDATE upload_queue SET status = ? WHERE status = ?;`

	countUploads = `
		SELECT COUNT(*) FROM upload_queue WHERE status IN (?, ?);`
)

type uploadQueueRepository struct {
	*DB
	logger *logger.Logger
}

// NewUploadQueueRepository constructs the sqlite-backed UploadQueueRepository.
func NewUploadQueueRepository(db *DB, log *logger.Logger) UploadQueueRepository {
	return &uploadQueueRepository{DB: db, logger: log}
}

func (u *uploadQueueRepository) Enqueue(ctx context.Context, item models.UploadQueueItem) error {
	log := logger.FromContext(ctx)

	_, err := u.ExecContext(ctx, enqueueUpload,
		item.ID,
		item.Entity,
		item.RecordLocalID,
		item.Field,
		item.FilePath,
		item.AttemptCount,
		item.NextAttemptAt.UTC().Format(uploadTimeLayout),
		string(item.Status),
		item.LastError,
		item.CreatedAt.UTC().Format(uploadTimeLayout),
	)
	if err != nil {
		log.Err(err).
			Str("func", "uploadQueueRepository.Enqueue").
			Str("upload_id", item.ID).
			Str("record_local_id", item.RecordLocalID).
			Msg("failed to enqueue upload item")
		return fmt.Errorf("failed to enqueue upload (id=%s): %w", item.ID, err)
	}

	return nil
}

func (u *uploadQueueRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.UploadQueueItem, error) {
	rows, err := u.QueryContext(ctx, dueUploads,
		string(models.UploadStatusQueued),
		now.UTC().Format(uploadTimeLayout),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due uploads: %w", err)
	}
	defer rows.Close()

	var items []models.UploadQueueItem
	for rows.Next() {
		item, scanErr := scanUploadItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("error iterating upload rows: %w", rowsErr)
	}
	return items, nil
}

func (u *uploadQueueRepository) MarkUploading(ctx context.Context, id string) error {
	return u.setStatus(ctx, setUploadStatus, string(models.UploadStatusUploading), id)
}

func (u *uploadQueueRepository) MarkUploaded(ctx context.Context, id string, _ time.Time) error {
	return u.setStatus(ctx, setUploadUploaded, string(models.UploadStatusUploaded), id)
}

func (u *uploadQueueRepository) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, reason string) error {
	_, err := u.ExecContext(ctx, setUploadRetry,
		string(models.UploadStatusQueued),
		attempts,
		next.UTC().Format(uploadTimeLayout),
		reason,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule upload retry (id=%s): %w", id, err)
	}
	return nil
}

func (u *uploadQueueRepository) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := u.ExecContext(ctx, setUploadFailed, string(models.UploadStatusFailed), reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark upload failed (id=%s): %w", id, err)
	}
	return nil
}

func (u *uploadQueueRepository) RecoverStuck(ctx context.Context) error {
	_, err := u.ExecContext(ctx, recoverUploads,
		string(models.UploadStatusQueued),
		string(models.UploadStatusUploading),
	)
	if err != nil {
		return fmt.Errorf("failed to recover stuck uploads: %w", err)
	}
	return nil
}

func (u *uploadQueueRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := u.QueryRowContext(ctx, countUploads,
		string(models.UploadStatusQueued),
		string(models.UploadStatusUploading),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending uploads: %w", err)
	}
	return count, nil
}

func (u *uploadQueueRepository) setStatus(ctx context.Context, query, status, id string) error {
	if _, err := u.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to set upload status %s (id=%s): %w", status, id, err)
	}
	return nil
}

func scanUploadItem(rows *sql.Rows) (models.UploadQueueItem, error) {
	var (
		item          models.UploadQueueItem
		status        string
		nextAttemptAt string
		createdAt     string
	)

	err := rows.Scan(
		&item.ID,
		&item.Entity,
		&item.RecordLocalID,
		&item.Field,
		&item.FilePath,
		&item.AttemptCount,
		&nextAttemptAt,
		&status,
		&item.LastError,
		&createdAt,
	)
	if err != nil {
		return models.UploadQueueItem{}, fmt.Errorf("failed to scan upload row: %w", err)
	}

	item.Status = models.UploadStatus(status)
	if item.NextAttemptAt, err = time.Parse(time.RFC3339Nano, nextAttemptAt); err != nil {
		return models.UploadQueueItem{}, fmt.Errorf("failed to parse next attempt time: %w", err)
	}
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.UploadQueueItem{}, fmt.Errorf("failed to parse created time: %w", err)
	}

	return item, nil
}

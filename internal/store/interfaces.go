package store

import (
	"context"
	"time"

	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/models"
)

// RecordRepository is the minimal contract the engine needs from the local
// database for synchronized rows: read/write by table, scope and key, no
// business logic. Tables and columns come from descriptors at runtime.
type RecordRepository interface {
	// Insert stores a locally created row with sync status PENDING.
	Insert(ctx context.Context, d *entity.Descriptor, row models.Row) error
	// Upsert applies pulled server rows, matching on the descriptor's primary
	// keys. Applied rows land in SYNCED state with synced_at set.
	Upsert(ctx context.Context, d *entity.Descriptor, rows ...models.Row) error
	// Get fetches one row by primary key values; ErrNotFound if absent.
	Get(ctx context.Context, d *entity.Descriptor, keys map[string]any) (models.Row, error)
	// Pending returns up to limit rows awaiting push (PENDING or FAILED),
	// oldest edits first, optionally filtered by scope.
	Pending(ctx context.Context, d *entity.Descriptor, scope string, limit int) ([]models.Row, error)
	// PendingForInstance narrows Pending to rows under one logical parent.
	PendingForInstance(ctx context.Context, d *entity.Descriptor, scope, instanceID string, limit int) ([]models.Row, error)
	// MarkSyncing claims rows for an in-flight push.
	MarkSyncing(ctx context.Context, d *entity.Descriptor, localIDs []string) error
	// ReleaseSyncing reverts claimed rows to PENDING; called on every push
	// exit path so no row is left stuck in SYNCING.
	ReleaseSyncing(ctx context.Context, d *entity.Descriptor, localIDs []string) error
	// RecoverStuck reverts all SYNCING rows to PENDING (startup recovery
	// after a crash mid-push).
	RecoverStuck(ctx context.Context, d *entity.Descriptor) error
	// MarkSynced settles a row after server acknowledgement, reconciling the
	// primary key with the server-assigned id when it differs.
	MarkSynced(ctx context.Context, d *entity.Descriptor, localID, serverID string, at time.Time) error
	// MarkFailed records a per-row rejection with the server-supplied reason.
	MarkFailed(ctx context.Context, d *entity.Descriptor, localID, reason string) error
	// SetField patches one column (e.g. an attachment reference). A SYNCED
	// row becomes PENDING again so the patch rides the next push cycle.
	SetField(ctx context.Context, d *entity.Descriptor, localID, field string, value any) error
	// CountPending counts rows in PENDING or FAILED state.
	CountPending(ctx context.Context, d *entity.Descriptor, scope string) (int, error)
}

// CursorRepository persists per-(descriptor, scope) pull watermarks so pulls
// resume across process restarts. Cursors never regress.
type CursorRepository interface {
	Get(ctx context.Context, descriptor, scope string) (time.Time, error)
	// Advance moves the cursor forward; calls with an older value are no-ops.
	Advance(ctx context.Context, descriptor, scope string, to time.Time) error
}

// UploadQueueRepository persists pending binary attachments.
type UploadQueueRepository interface {
	Enqueue(ctx context.Context, item models.UploadQueueItem) error
	// Due returns queued items whose next attempt time has arrived.
	Due(ctx context.Context, now time.Time, limit int) ([]models.UploadQueueItem, error)
	MarkUploading(ctx context.Context, id string) error
	MarkUploaded(ctx context.Context, id string, at time.Time) error
	// MarkRetry re-queues a failed attempt with its backoff deadline.
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, reason string) error
	// MarkFailed is terminal; the item is surfaced, never retried.
	MarkFailed(ctx context.Context, id, reason string) error
	// RecoverStuck reverts UPLOADING items to QUEUED (startup recovery).
	RecoverStuck(ctx context.Context) error
	CountPending(ctx context.Context) (int, error)
}

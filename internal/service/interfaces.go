package service

import (
	"context"

	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/models"
)

// PullService replicates server records into the local database for one
// descriptor at a time.
type PullService interface {
	// Pull pages through the descriptor's replication endpoint starting at the
	// persisted cursor, applies each page under the descriptor's conflict
	// policy, and advances the cursor after every applied page. A mid-run
	// error returns the partial result; progress made so far is kept.
	Pull(ctx context.Context, d *entity.Descriptor) (models.PullResult, error)
}

// PushService submits locally created or edited rows to the remote API.
type PushService interface {
	// Push drains the descriptor's pending rows in batches. Rows are claimed
	// (SYNCING) before submission and always settle into SYNCED, FAILED or
	// back to PENDING; none remain claimed after the call returns.
	Push(ctx context.Context, d *entity.Descriptor) (models.PushResult, error)

	// PushInstance narrows Push to rows under one logical parent, e.g. a
	// single checklist instance on form submit.
	PushInstance(ctx context.Context, d *entity.Descriptor, instanceID string) (models.PushResult, error)
}

// SyncOrchestrator runs pull-then-push cycles per descriptor, guaranteeing at
// most one in-flight cycle per descriptor.
type SyncOrchestrator interface {
	// SyncEntity runs one cycle for the named descriptor. Concurrent calls
	// for the same descriptor coalesce into the in-flight cycle and share its
	// result.
	SyncEntity(ctx context.Context, name string) (models.CycleResult, error)

	// SyncAll cycles every registered descriptor in registration order. A
	// failing descriptor does not stop the others; its error lands in the
	// returned map keyed by descriptor name.
	SyncAll(ctx context.Context) ([]models.CycleResult, map[string]string)

	// Status returns the last recorded outcome for the named descriptor.
	Status(name string) (models.DescriptorStatus, bool)

	// Recover reverts rows stuck in SYNCING after a crash. Called once at
	// startup before any cycle runs.
	Recover(ctx context.Context) error
}

// UploadService manages the attachment upload queue.
type UploadService interface {
	// Enqueue registers one binary attachment for background upload. The
	// owning record only needs to exist locally; upload and record push
	// converge independently.
	Enqueue(ctx context.Context, entityName, recordLocalID, field, filePath string) (models.UploadQueueItem, error)

	// ProcessQueue attempts every due item once. Transient failures are
	// rescheduled with exponential backoff; an item that exhausts its attempt
	// budget is marked FAILED and never retried.
	ProcessQueue(ctx context.Context) (models.UploadRunResult, error)

	// CountPending counts items still waiting to land on the server.
	CountPending(ctx context.Context) (int, error)

	// Recover reverts items stuck in UPLOADING after a crash.
	Recover(ctx context.Context) error
}

// SyncCoordinator is the single entry point the application layer talks to:
// it owns the online flag, the status counters and full-sync coalescing.
type SyncCoordinator interface {
	// SyncAll runs one full pass: every descriptor cycle, then the upload
	// queue. Overlapping calls coalesce into the in-flight pass. Returns
	// ErrOffline when the device is flagged offline.
	SyncAll(ctx context.Context) (models.SyncSummary, error)

	// SyncOne pushes the pending rows of one logical parent immediately,
	// e.g. right after a checklist is submitted.
	SyncOne(ctx context.Context, entityName, instanceID string) (models.PushResult, error)

	// SetOnline flips the connectivity flag. An offline-to-online transition
	// kicks off a background SyncAll.
	SetOnline(ctx context.Context, online bool)

	// Status reports the counters consumed by the UI layer.
	Status(ctx context.Context) models.CoordinatorStatus

	// Recover performs startup crash recovery for records and uploads.
	Recover(ctx context.Context) error
}

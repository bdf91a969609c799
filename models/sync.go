package models

import "time"

// SyncStatus is the lifecycle state of a locally stored record with respect
// to the remote API.
type SyncStatus string

const (
	// SyncStatusPending marks a record created or edited offline that has not
	// been accepted by the server yet.
	SyncStatusPending SyncStatus = "PENDING"
	// SyncStatusSyncing marks a record claimed by an in-flight push. A record
	// must never remain in this state after a cycle completes.
	SyncStatusSyncing SyncStatus = "SYNCING"
	// SyncStatusSynced marks a record acknowledged by the server.
	SyncStatusSynced SyncStatus = "SYNCED"
	// SyncStatusFailed marks a record rejected by the server; the reason is
	// kept in the sync_error column for UI display.
	SyncStatusFailed SyncStatus = "FAILED"
)

// ConflictPolicy selects how a pull resolves an incoming server record whose
// local counterpart still carries unsynced edits.
type ConflictPolicy string

const (
	// ConflictServerWins discards the local pending edit. Used for
	// append-only, authoritative records such as signatures.
	ConflictServerWins ConflictPolicy = "server_wins"
	// ConflictLastWriteWins keeps whichever side has the later updated_at.
	ConflictLastWriteWins ConflictPolicy = "last_write_wins"
	// ConflictClientWins preserves the local row and leaves it queued for
	// push. Reserved for create-only flows.
	ConflictClientWins ConflictPolicy = "client_wins"
)

// Bookkeeping columns present on every synchronized table.
const (
	ColLocalID    = "local_id"
	ColUpdatedAt  = "updated_at"
	ColSyncStatus = "sync_status"
	ColSyncedAt   = "synced_at"
	ColSyncError  = "sync_error"
)

// PullResult summarizes one completed pull for a descriptor and scope.
type PullResult struct {
	Applied         int
	Skipped         int
	CursorAdvanced  time.Time
	PagesFetched    int
	ConflictsLocal  int // rows preserved by client_wins / last_write_wins
	ConflictsServer int // rows overwritten by server_wins / last_write_wins
}

// PushFailure records a per-row rejection returned by the server.
type PushFailure struct {
	LocalID string
	Error   string
}

// PushResult summarizes one completed push for a descriptor and scope.
type PushResult struct {
	Succeeded int
	Failed    []PushFailure
}

// CycleResult is the outcome of one pull-then-push cycle for a descriptor.
type CycleResult struct {
	Descriptor string
	Pull       PullResult
	Push       PushResult
}

// DescriptorStatus is the last known outcome per descriptor, kept by the
// orchestrator for UI counters.
type DescriptorStatus struct {
	LastRunAt time.Time
	LastError string
	Applied   int
	Pushed    int
}

// SyncSummary aggregates one SyncAll run across all descriptors plus the
// upload queue.
type SyncSummary struct {
	Cycles  []CycleResult
	Uploads UploadRunResult
	Errors  map[string]string // descriptor name -> error text
}

// Failed reports whether any descriptor cycle in the run ended with an error.
func (s SyncSummary) Failed() bool {
	return len(s.Errors) > 0
}

// CoordinatorStatus is the observable state consumed by the UI layer.
type CoordinatorStatus struct {
	IsOnline       bool
	IsSyncing      bool
	PendingAnswers int
	PendingUploads int
	LastSyncAt     time.Time
	LastError      string
}

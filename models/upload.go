package models

import "time"

// UploadStatus is the lifecycle state of a queued binary attachment.
type UploadStatus string

const (
	UploadStatusQueued    UploadStatus = "QUEUED"
	UploadStatusUploading UploadStatus = "UPLOADING"
	UploadStatusUploaded  UploadStatus = "UPLOADED"
	// UploadStatusFailed is terminal: the item exceeded the attempt budget and
	// is surfaced to the user instead of retried forever.
	UploadStatusFailed UploadStatus = "FAILED"
)

// UploadQueueItem is one pending binary attachment. It always references a
// record that exists locally, whether or not that record has been pushed yet;
// upload and push converge independently.
type UploadQueueItem struct {
	ID            string
	Entity        string // descriptor name of the owning record
	RecordLocalID string
	Field         string // column patched with the attachment id on success
	FilePath      string
	AttemptCount  int
	NextAttemptAt time.Time
	Status        UploadStatus
	LastError     string
	CreatedAt     time.Time
}

// NewUploadQueueItem builds a queued item for the given owner reference.
func NewUploadQueueItem(entity, recordLocalID, field, filePath string, now time.Time) UploadQueueItem {
	return UploadQueueItem{
		ID:            NewLocalID(),
		Entity:        entity,
		RecordLocalID: recordLocalID,
		Field:         field,
		FilePath:      filePath,
		Status:        UploadStatusQueued,
		NextAttemptAt: now.UTC(),
		CreatedAt:     now.UTC(),
	}
}

// UploadItemResult is the per-item outcome of one queue pass.
type UploadItemResult struct {
	ID      string
	Success bool
	Error   string
}

// UploadRunResult summarizes one ProcessQueue pass.
type UploadRunResult struct {
	Success bool
	Results []UploadItemResult
}

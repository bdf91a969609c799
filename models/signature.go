package models

import "time"

// Signature is a customer sign-off captured on a work order. Append-only and
// authoritative once created (server_wins); the image itself travels through
// the upload queue, not the push pipeline, and AttachmentID is patched in
// once the upload completes.
type Signature struct {
	ID           string    `json:"id"`
	LocalID      string    `json:"localId"`
	WorkOrderID  string    `json:"workOrderId"`
	TechnicianID string    `json:"technicianId"`
	SignerName   string    `json:"signerName"`
	AttachmentID *string   `json:"attachmentId,omitempty"`
	SignedAt     time.Time `json:"signedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewSignature creates an offline signature record. The signature image is
// enqueued separately as an UploadQueueItem referencing this record.
func NewSignature(workOrderID, technicianID, signerName string, now time.Time) Signature {
	localID := NewLocalID()
	return Signature{
		ID:           localID,
		LocalID:      localID,
		WorkOrderID:  workOrderID,
		TechnicianID: technicianID,
		SignerName:   signerName,
		SignedAt:     now.UTC(),
		UpdatedAt:    now.UTC(),
	}
}

package models

import (
	"encoding/json"
	"time"
)

// PullResponse is one page of the incremental replication endpoint
// (GET <pullPath>?updatedSince=...&limit=...).
type PullResponse struct {
	Items      []json.RawMessage `json:"items"`
	NextCursor *time.Time        `json:"nextCursor"`
	HasMore    bool              `json:"hasMore"`
	ServerTime time.Time         `json:"serverTime"`
}

// PushItem is one outgoing mutation. It always embeds the record's localId;
// the server treats localId as a natural key and collapses retried
// submissions into one record.
type PushItem map[string]any

// PushRequest is the batched mutation body (POST <pushPath>).
type PushRequest struct {
	Items []PushItem `json:"items"`
}

// Per-item push outcome statuses.
const (
	PushStatusOK        = "ok"
	PushStatusError     = "error"
	PushStatusDuplicate = "duplicate"
)

// PushItemResult is the server's per-item response to a push.
type PushItemResult struct {
	LocalID string `json:"localId"`
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Accepted reports whether the item is settled server-side. A duplicate
// localId means the intended record already exists, so it counts as success.
func (r PushItemResult) Accepted() bool {
	return r.Status == PushStatusOK || r.Status == PushStatusDuplicate
}

// PushResponse is the batched mutation response body.
type PushResponse struct {
	Results []PushItemResult `json:"results"`
}

// AttachmentUpload describes one binary payload sent to the upload endpoint,
// keyed by the owning entity, record and field.
type AttachmentUpload struct {
	Entity        string
	RecordLocalID string
	Field         string
	FileName      string
	FilePath      string
	Data          []byte
}

// AttachmentRef is the server-assigned reference returned by a successful
// upload.
type AttachmentRef struct {
	AttachmentID string `json:"attachmentId"`
	URL          string `json:"url"`
}

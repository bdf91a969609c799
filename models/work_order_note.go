package models

import "time"

// WorkOrderNote is a free-form field note. Create-only: once written it is
// never edited from another surface, so its descriptor uses client_wins.
type WorkOrderNote struct {
	ID           string    `json:"id"`
	LocalID      string    `json:"localId"`
	WorkOrderID  string    `json:"workOrderId"`
	TechnicianID string    `json:"technicianId"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewWorkOrderNote creates an offline note with a fresh localId.
func NewWorkOrderNote(workOrderID, technicianID, body string, now time.Time) WorkOrderNote {
	localID := NewLocalID()
	return WorkOrderNote{
		ID:           localID,
		LocalID:      localID,
		WorkOrderID:  workOrderID,
		TechnicianID: technicianID,
		Body:         body,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
}

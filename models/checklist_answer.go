package models

import "time"

// ChecklistAnswer is one answered checklist item, created offline by a
// technician and reconciled with the server opportunistically. Mutable from
// multiple surfaces, so its descriptor uses last_write_wins.
type ChecklistAnswer struct {
	ID                  string    `json:"id"`
	LocalID             string    `json:"localId"`
	ChecklistInstanceID string    `json:"checklistInstanceId"`
	WorkOrderID         string    `json:"workOrderId"`
	ItemID              string    `json:"itemId"`
	TechnicianID        string    `json:"technicianId"`
	Value               string    `json:"value"`
	Note                *string   `json:"note,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// NewChecklistAnswer creates an offline answer with a fresh localId. The id
// equals the localId until the server assigns its own.
func NewChecklistAnswer(instanceID, workOrderID, itemID, technicianID, value string, now time.Time) ChecklistAnswer {
	localID := NewLocalID()
	return ChecklistAnswer{
		ID:                  localID,
		LocalID:             localID,
		ChecklistInstanceID: instanceID,
		WorkOrderID:         workOrderID,
		ItemID:              itemID,
		TechnicianID:        technicianID,
		Value:               value,
		UpdatedAt:           now.UTC(),
	}
}

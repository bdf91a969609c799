package models

import "time"

// WorkOrderType is reference data (e.g. "Maintenance", "Emergency") shared
// between the admin console and the device. Server-authoritative: its
// descriptor uses server_wins.
type WorkOrderType struct {
	ID          string    `json:"id"`
	LocalID     string    `json:"localId,omitempty"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Color       *string   `json:"color,omitempty"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewWorkOrderType creates a work order type offline (rare, but reference
// data is writable in the field).
func NewWorkOrderType(name string, now time.Time) WorkOrderType {
	localID := NewLocalID()
	return WorkOrderType{
		ID:        localID,
		LocalID:   localID,
		Name:      name,
		Active:    true,
		UpdatedAt: now.UTC(),
	}
}

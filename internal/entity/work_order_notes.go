package entity

import (
	"encoding/json"
	"errors"

	"github.com/provio/fieldsync/models"
)

// WorkOrderNotes describes free-form field notes. Create-only: a local note
// is never overwritten by a pull (client_wins) and simply stays queued until
// the server accepts it.
func WorkOrderNotes() *Descriptor {
	return &Descriptor{
		Name:        "work_order_notes",
		TableName:   "work_order_notes",
		PullPath:    "/api/sync/work-order-notes",
		PushPath:    "/api/work-order-notes",
		CursorField: models.ColUpdatedAt,
		PrimaryKeys: []string{"id"},
		ScopeField:  "technician_id",
		BatchSize:   50,
		Conflict:    models.ConflictClientWins,
		Counted:     true,
		FromServer:  workOrderNoteFromServer,
		ToServer:    workOrderNoteToServer,
	}
}

func workOrderNoteFromServer(raw json.RawMessage) (models.Row, error) {
	var n models.WorkOrderNote
	if err := models.DecodeStrict(raw, &n); err != nil {
		return nil, err
	}
	if n.ID == "" {
		return nil, errors.New("work order note without id")
	}

	localID := n.LocalID
	if localID == "" {
		localID = n.ID
	}

	return models.Row{
		"id":                n.ID,
		models.ColLocalID:   localID,
		"work_order_id":     n.WorkOrderID,
		"technician_id":     n.TechnicianID,
		"body":              n.Body,
		"created_at":        n.CreatedAt.UTC(),
		models.ColUpdatedAt: n.UpdatedAt.UTC(),
	}, nil
}

func workOrderNoteToServer(row models.Row) (models.PushItem, error) {
	localID := row.LocalID()
	if localID == "" {
		return nil, errors.New("work order note row without local_id")
	}

	return models.PushItem{
		"localId":      localID,
		"workOrderId":  row.String("work_order_id"),
		"technicianId": row.String("technician_id"),
		"body":         row.String("body"),
		"createdAt":    row.Time("created_at"),
		"updatedAt":    row.Time(models.ColUpdatedAt),
	}, nil
}

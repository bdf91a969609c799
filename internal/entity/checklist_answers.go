package entity

import (
	"encoding/json"
	"errors"

	"github.com/provio/fieldsync/models"
)

// ChecklistAnswers describes the two-way sync of technician checklist
// answers. Mutable from multiple surfaces, so conflicting offline edits are
// settled by last_write_wins.
func ChecklistAnswers() *Descriptor {
	return &Descriptor{
		Name:          "checklist_answers",
		TableName:     "checklist_answers",
		PullPath:      "/api/sync/checklist-answers",
		PushPath:      "/api/checklist-answers",
		CursorField:   models.ColUpdatedAt,
		PrimaryKeys:   []string{"id"},
		ScopeField:    "technician_id",
		InstanceField: "checklist_instance_id",
		BatchSize:     100,
		Conflict:      models.ConflictLastWriteWins,
		Counted:       true,
		FromServer:    checklistAnswerFromServer,
		ToServer:      checklistAnswerToServer,
	}
}

func checklistAnswerFromServer(raw json.RawMessage) (models.Row, error) {
	var a models.ChecklistAnswer
	if err := models.DecodeStrict(raw, &a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		return nil, errors.New("checklist answer without id")
	}

	localID := a.LocalID
	if localID == "" {
		localID = a.ID
	}

	return models.Row{
		"id":                    a.ID,
		models.ColLocalID:       localID,
		"checklist_instance_id": a.ChecklistInstanceID,
		"work_order_id":         a.WorkOrderID,
		"item_id":               a.ItemID,
		"technician_id":         a.TechnicianID,
		"value":                 a.Value,
		"note":                  optString(a.Note),
		models.ColUpdatedAt:     a.UpdatedAt.UTC(),
	}, nil
}

func checklistAnswerToServer(row models.Row) (models.PushItem, error) {
	localID := row.LocalID()
	if localID == "" {
		return nil, errors.New("checklist answer row without local_id")
	}

	item := models.PushItem{
		"localId":             localID,
		"checklistInstanceId": row.String("checklist_instance_id"),
		"workOrderId":         row.String("work_order_id"),
		"itemId":              row.String("item_id"),
		"technicianId":        row.String("technician_id"),
		"value":               row.String("value"),
		"updatedAt":           row.Time(models.ColUpdatedAt),
	}
	if note := colString(row, "note"); note != nil {
		item["note"] = *note
	}
	return item, nil
}

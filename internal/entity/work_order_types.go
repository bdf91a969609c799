package entity

import (
	"encoding/json"
	"errors"

	"github.com/provio/fieldsync/models"
)

// WorkOrderTypes describes the shared reference data table. Pull-dominant and
// server-authoritative (server_wins); not scoped by technician.
func WorkOrderTypes() *Descriptor {
	return &Descriptor{
		Name:        "work_order_types",
		TableName:   "work_order_types",
		PullPath:    "/api/sync/work-order-types",
		PushPath:    "/api/work-order-types",
		CursorField: models.ColUpdatedAt,
		PrimaryKeys: []string{"id"},
		BatchSize:   200,
		Conflict:    models.ConflictServerWins,
		FromServer:  workOrderTypeFromServer,
		ToServer:    workOrderTypeToServer,
	}
}

func workOrderTypeFromServer(raw json.RawMessage) (models.Row, error) {
	var t models.WorkOrderType
	if err := models.DecodeStrict(raw, &t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		return nil, errors.New("work order type without id")
	}

	localID := t.LocalID
	if localID == "" {
		// Reference data created in the admin console has no client token;
		// the server id is stable enough to double as one.
		localID = t.ID
	}

	return models.Row{
		"id":                t.ID,
		models.ColLocalID:   localID,
		"name":              t.Name,
		"description":       optString(t.Description),
		"color":             optString(t.Color),
		"active":            t.Active,
		models.ColUpdatedAt: t.UpdatedAt.UTC(),
	}, nil
}

func workOrderTypeToServer(row models.Row) (models.PushItem, error) {
	localID := row.LocalID()
	if localID == "" {
		return nil, errors.New("work order type row without local_id")
	}

	item := models.PushItem{
		"localId":   localID,
		"name":      row.String("name"),
		"active":    row.Bool("active"),
		"updatedAt": row.Time(models.ColUpdatedAt),
	}
	if desc := colString(row, "description"); desc != nil {
		item["description"] = *desc
	}
	if color := colString(row, "color"); color != nil {
		item["color"] = *color
	}
	return item, nil
}

package entity

import (
	"encoding/json"
	"errors"

	"github.com/provio/fieldsync/models"
)

// Signatures describes customer sign-offs. Append-only and authoritative once
// the server has them: an incoming server record always overwrites a local
// pending edit (server_wins). The signature image travels through the upload
// queue and is referenced via attachment_id.
func Signatures() *Descriptor {
	return &Descriptor{
		Name:        "signatures",
		TableName:   "signatures",
		PullPath:    "/api/sync/signatures",
		PushPath:    "/api/signatures",
		CursorField: models.ColUpdatedAt,
		PrimaryKeys: []string{"id"},
		ScopeField:  "technician_id",
		BatchSize:   25,
		Conflict:    models.ConflictServerWins,
		Counted:     true,
		FromServer:  signatureFromServer,
		ToServer:    signatureToServer,
	}
}

func signatureFromServer(raw json.RawMessage) (models.Row, error) {
	var s models.Signature
	if err := models.DecodeStrict(raw, &s); err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, errors.New("signature without id")
	}

	localID := s.LocalID
	if localID == "" {
		localID = s.ID
	}

	return models.Row{
		"id":                s.ID,
		models.ColLocalID:   localID,
		"work_order_id":     s.WorkOrderID,
		"technician_id":     s.TechnicianID,
		"signer_name":       s.SignerName,
		"attachment_id":     optString(s.AttachmentID),
		"signed_at":         s.SignedAt.UTC(),
		models.ColUpdatedAt: s.UpdatedAt.UTC(),
	}, nil
}

func signatureToServer(row models.Row) (models.PushItem, error) {
	localID := row.LocalID()
	if localID == "" {
		return nil, errors.New("signature row without local_id")
	}

	item := models.PushItem{
		"localId":      localID,
		"workOrderId":  row.String("work_order_id"),
		"technicianId": row.String("technician_id"),
		"signerName":   row.String("signer_name"),
		"signedAt":     row.Time("signed_at"),
		"updatedAt":    row.Time(models.ColUpdatedAt),
	}
	if att := colString(row, "attachment_id"); att != nil {
		item["attachmentId"] = *att
	}
	return item, nil
}

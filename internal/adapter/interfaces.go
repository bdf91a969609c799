package adapter

import (
	"context"
	"time"

	"github.com/provio/fieldsync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/transport_mock.go -package=mock

// Transport is the engine's view of the remote field-service API. The real
// implementation speaks HTTP/JSON; tests substitute a gomock mock.
type Transport interface {
	// Pull fetches one page of records updated since the given cursor.
	// A zero since means "from the beginning".
	Pull(ctx context.Context, path string, since time.Time, limit int, scope string) (models.PullResponse, error)
	// Push submits a batch of mutations and returns per-item results. The
	// returned error covers request-level failures only; row-level rejections
	// arrive inside the results.
	Push(ctx context.Context, path string, items []models.PushItem) ([]models.PushItemResult, error)
	// UploadAttachment transfers one binary payload, multipart-encoded and
	// keyed by the owning entity, record and field.
	UploadAttachment(ctx context.Context, path string, upload models.AttachmentUpload) (models.AttachmentRef, error)
	// SetToken stores the bearer token for subsequent requests.
	SetToken(token string)
	// Scope returns the technician id carried in the token's subject claim;
	// it partitions scoped tables on the device.
	Scope() (string, error)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/provio/fieldsync/internal/adapter"
	"github.com/provio/fieldsync/internal/config"
	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/mock"
	"github.com/provio/fieldsync/models"
)

func uploadTestConfig() config.SyncConfig {
	return config.SyncConfig{
		BatchSize:         100,
		UploadBatchSize:   10,
		UploadMaxAttempts: 3,
		UploadBackoffBase: time.Second,
		UploadBackoffCap:  time.Minute,
	}
}

func newUploadFixture(t *testing.T, ctrl *gomock.Controller) (*uploadService, *fakeRecords, *fakeUploads, *mock.MockTransport) {
	t.Helper()

	records := newFakeRecords()
	uploads := newFakeUploads()
	transport := mock.NewMockTransport(ctrl)
	registry := testRegistry(t)

	svc := NewUploadService(registry, testStorages(records, newFakeCursors(), uploads), transport, uploadTestConfig(), logger.Nop()).(*uploadService)
	return svc, records, uploads, transport
}

func TestUploadService_Enqueue_RejectsUnknownEntity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, _, _ := newUploadFixture(t, ctrl)

	_, err := svc.Enqueue(context.Background(), "no_such_entity", "s1", "attachment_id", "/tmp/sig.png")
	require.Error(t, err)
}

func TestUploadService_ProcessQueue_SuccessPatchesOwnerRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, records, uploads, transport := newUploadFixture(t, ctrl)
	d := entity.Signatures()
	ctx := context.Background()

	// Owner record already pushed and settled.
	require.NoError(t, records.Insert(ctx, d, models.Row{
		"id":                "s1",
		models.ColLocalID:   "s1",
		"technician_id":     "tech-1",
		models.ColUpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, records.MarkSynced(ctx, d, "s1", "srv-1", time.Now().UTC()))

	item, err := svc.Enqueue(ctx, d.Name, "s1", "attachment_id", "/tmp/sig.png")
	require.NoError(t, err)

	transport.EXPECT().
		UploadAttachment(gomock.Any(), uploadPath, gomock.Any()).
		Return(models.AttachmentRef{AttachmentID: "att-1"}, nil)

	run, err := svc.ProcessQueue(ctx)
	require.NoError(t, err)
	require.True(t, run.Success)
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].Success)

	assert.Equal(t, models.UploadStatusUploaded, uploads.get(item.ID).Status)

	// The patched record re-enters the push queue.
	owner := records.get(d, "s1")
	assert.Equal(t, "att-1", owner.String("attachment_id"))
	assert.Equal(t, models.SyncStatusPending, owner.Status())
}

func TestUploadService_ProcessQueue_TransientFailureSchedulesRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, uploads, transport := newUploadFixture(t, ctrl)
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, "signatures", "s1", "attachment_id", "/tmp/sig.png")
	require.NoError(t, err)

	before := time.Now().UTC()
	transport.EXPECT().
		UploadAttachment(gomock.Any(), uploadPath, gomock.Any()).
		Return(models.AttachmentRef{}, &adapter.StatusError{Code: 503, Message: "maintenance"}).
		Times(3) // the in-pass retries burn through before the backoff schedule takes over

	run, err := svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.False(t, run.Success)

	got := uploads.get(item.ID)
	assert.Equal(t, models.UploadStatusQueued, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Contains(t, got.LastError, "maintenance")
	assert.True(t, got.NextAttemptAt.After(before))
}

func TestUploadService_ProcessQueue_BackoffGrowsAndCaps(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, _, _ := newUploadFixture(t, ctrl)

	var last time.Duration
	for attempts := 1; attempts <= 10; attempts++ {
		delay := svc.backoffDelay(attempts)
		assert.GreaterOrEqual(t, delay, last, "delay must never shrink")
		assert.LessOrEqual(t, delay, svc.cfg.UploadBackoffCap)
		last = delay
	}
	assert.Equal(t, svc.cfg.UploadBackoffCap, svc.backoffDelay(10))
}

func TestUploadService_ProcessQueue_ExhaustedAttemptsAreTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, uploads, transport := newUploadFixture(t, ctrl)
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, "signatures", "s1", "attachment_id", "/tmp/sig.png")
	require.NoError(t, err)
	// Two attempts already burned; the next failure exhausts the budget of 3.
	require.NoError(t, uploads.MarkRetry(ctx, item.ID, 2, time.Now().UTC().Add(-time.Second), "still down"))

	transport.EXPECT().
		UploadAttachment(gomock.Any(), uploadPath, gomock.Any()).
		Return(models.AttachmentRef{}, &adapter.StatusError{Code: 503, Message: "still down"}).
		Times(3)

	run, err := svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.False(t, run.Success)

	got := uploads.get(item.ID)
	assert.Equal(t, models.UploadStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "gave up after 3 attempts")

	// Terminal items never come due again.
	due, err := uploads.Due(ctx, time.Now().Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestUploadService_ProcessQueue_RejectionIsImmediatelyTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, uploads, transport := newUploadFixture(t, ctrl)
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, "signatures", "s1", "attachment_id", "/tmp/sig.png")
	require.NoError(t, err)

	// A 4xx rejection is permanent; no retry can fix the payload.
	transport.EXPECT().
		UploadAttachment(gomock.Any(), uploadPath, gomock.Any()).
		Return(models.AttachmentRef{}, &adapter.StatusError{Code: 413, Message: "payload too large"})

	run, err := svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.False(t, run.Success)

	got := uploads.get(item.ID)
	assert.Equal(t, models.UploadStatusFailed, got.Status)
	assert.Equal(t, 0, got.AttemptCount)
}

func TestUploadService_ProcessQueue_MissingOwnerIsStillSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, uploads, transport := newUploadFixture(t, ctrl)
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, "signatures", "gone", "attachment_id", "/tmp/sig.png")
	require.NoError(t, err)

	transport.EXPECT().
		UploadAttachment(gomock.Any(), uploadPath, gomock.Any()).
		Return(models.AttachmentRef{AttachmentID: "att-9"}, nil)

	run, err := svc.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.True(t, run.Success)
	assert.Equal(t, models.UploadStatusUploaded, uploads.get(item.ID).Status)
}

func TestUploadService_Recover_RequeuesStuckUploads(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, uploads, _ := newUploadFixture(t, ctrl)
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, "signatures", "s1", "attachment_id", "/tmp/sig.png")
	require.NoError(t, err)
	require.NoError(t, uploads.MarkUploading(ctx, item.ID))

	require.NoError(t, svc.Recover(ctx))
	assert.Equal(t, models.UploadStatusQueued, uploads.get(item.ID).Status)
}

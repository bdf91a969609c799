package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/provio/fieldsync/internal/adapter"
	"github.com/provio/fieldsync/internal/config"
	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/store"
	"github.com/provio/fieldsync/models"
)

const uploadPath = "/api/attachments"

type uploadService struct {
	uploads   store.UploadQueueRepository
	records   store.RecordRepository
	registry  *entity.Registry
	transport adapter.Transport

	cfg    config.SyncConfig
	now    func() time.Time
	logger *logger.Logger
}

// NewUploadService builds the attachment upload queue processor.
func NewUploadService(registry *entity.Registry, storages *store.ClientStorages, transport adapter.Transport, cfg config.SyncConfig, log *logger.Logger) UploadService {
	return &uploadService{
		uploads:   storages.Uploads,
		records:   storages.Records,
		registry:  registry,
		transport: transport,
		cfg:       cfg,
		now:       time.Now,
		logger:    log,
	}
}

func (s *uploadService) Enqueue(ctx context.Context, entityName, recordLocalID, field, filePath string) (models.UploadQueueItem, error) {
	if _, err := s.registry.Get(entityName); err != nil {
		return models.UploadQueueItem{}, err
	}
	if recordLocalID == "" || field == "" || filePath == "" {
		return models.UploadQueueItem{}, errors.New("record local id, field and file path are required")
	}

	item := models.NewUploadQueueItem(entityName, recordLocalID, field, filePath, s.now())
	if err := s.uploads.Enqueue(ctx, item); err != nil {
		return models.UploadQueueItem{}, err
	}
	return item, nil
}

func (s *uploadService) ProcessQueue(ctx context.Context) (models.UploadRunResult, error) {
	items, err := s.uploads.Due(ctx, s.now(), s.cfg.UploadBatchSize)
	if err != nil {
		return models.UploadRunResult{}, err
	}

	run := models.UploadRunResult{Success: true}
	for _, item := range items {
		res := s.processItem(ctx, item)
		if !res.Success {
			run.Success = false
		}
		run.Results = append(run.Results, res)
	}
	return run, nil
}

func (s *uploadService) CountPending(ctx context.Context) (int, error) {
	return s.uploads.CountPending(ctx)
}

func (s *uploadService) Recover(ctx context.Context) error {
	return s.uploads.RecoverStuck(ctx)
}

func (s *uploadService) processItem(ctx context.Context, item models.UploadQueueItem) models.UploadItemResult {
	log := logger.FromContext(ctx)

	d, err := s.registry.Get(item.Entity)
	if err != nil {
		// An item whose descriptor vanished can never complete.
		s.failTerminal(ctx, item.ID, err.Error())
		return models.UploadItemResult{ID: item.ID, Error: err.Error()}
	}

	if err = s.uploads.MarkUploading(ctx, item.ID); err != nil {
		return models.UploadItemResult{ID: item.ID, Error: err.Error()}
	}

	ref, err := s.attempt(ctx, item)
	if err != nil {
		return s.settleFailure(ctx, item, err)
	}

	if err = s.uploads.MarkUploaded(ctx, item.ID, s.now()); err != nil {
		return models.UploadItemResult{ID: item.ID, Error: err.Error()}
	}

	// Patch the owning record with the server reference. A SYNCED record
	// becomes PENDING again and rides the next push cycle.
	if err = s.records.SetField(ctx, d, item.RecordLocalID, item.Field, ref.AttachmentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().
				Str("func", "uploadService.processItem").
				Str("upload_id", item.ID).
				Str("record_local_id", item.RecordLocalID).
				Msg("uploaded attachment has no local owner record")
		} else {
			return models.UploadItemResult{ID: item.ID, Error: err.Error()}
		}
	}

	log.Info().
		Str("func", "uploadService.processItem").
		Str("upload_id", item.ID).
		Str("attachment_id", ref.AttachmentID).
		Msg("attachment uploaded")

	return models.UploadItemResult{ID: item.ID, Success: true}
}

// attempt performs the transfer with a couple of short in-process retries to
// smooth over flaky mobile links; real outages fall through to the persisted
// backoff schedule.
func (s *uploadService) attempt(ctx context.Context, item models.UploadQueueItem) (models.AttachmentRef, error) {
	upload := models.AttachmentUpload{
		Entity:        item.Entity,
		RecordLocalID: item.RecordLocalID,
		Field:         item.Field,
		FilePath:      item.FilePath,
	}

	var ref models.AttachmentRef
	err := retry.Do(ctx, retry.WithMaxRetries(2, retry.NewConstant(500*time.Millisecond)), func(ctx context.Context) error {
		var attemptErr error
		ref, attemptErr = s.transport.UploadAttachment(ctx, uploadPath, upload)
		if attemptErr != nil && adapter.IsTransient(attemptErr) {
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})
	return ref, err
}

func (s *uploadService) settleFailure(ctx context.Context, item models.UploadQueueItem, cause error) models.UploadItemResult {
	log := logger.FromContext(ctx)

	attempts := item.AttemptCount + 1
	switch {
	case !adapter.IsTransient(cause):
		// The server rejected the payload outright; retrying cannot help.
		s.failTerminal(ctx, item.ID, cause.Error())
	case attempts >= s.cfg.UploadMaxAttempts:
		s.failTerminal(ctx, item.ID, fmt.Sprintf("gave up after %d attempts: %s", attempts, cause.Error()))
	default:
		next := s.now().UTC().Add(s.backoffDelay(attempts))
		if err := s.uploads.MarkRetry(ctx, item.ID, attempts, next, cause.Error()); err != nil {
			log.Err(err).
				Str("func", "uploadService.settleFailure").
				Str("upload_id", item.ID).
				Msg("failed to schedule upload retry")
		}
	}

	return models.UploadItemResult{ID: item.ID, Error: cause.Error()}
}

// backoffDelay walks the capped exponential schedule to the delay for the
// given attempt number (1-based).
func (s *uploadService) backoffDelay(attempts int) time.Duration {
	b := retry.WithCappedDuration(s.cfg.UploadBackoffCap, retry.NewExponential(s.cfg.UploadBackoffBase))

	delay := s.cfg.UploadBackoffBase
	for i := 0; i < attempts; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}

func (s *uploadService) failTerminal(ctx context.Context, id, reason string) {
	if err := s.uploads.MarkFailed(ctx, id, reason); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "uploadService.failTerminal").
			Str("upload_id", id).
			Msg("failed to mark upload as permanently failed")
	}
}

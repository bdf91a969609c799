package service

import (
	"context"
	"fmt"
	"time"

	"github.com/provio/fieldsync/internal/adapter"
	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/store"
	"github.com/provio/fieldsync/models"
)

type pushService struct {
	records   store.RecordRepository
	transport adapter.Transport

	defaultBatchSize int
	now              func() time.Time
	logger           *logger.Logger
}

// NewPushService builds the outbound mutation pipeline.
func NewPushService(storages *store.ClientStorages, transport adapter.Transport, defaultBatchSize int, log *logger.Logger) PushService {
	return &pushService{
		records:          storages.Records,
		transport:        transport,
		defaultBatchSize: defaultBatchSize,
		now:              time.Now,
		logger:           log,
	}
}

func (s *pushService) Push(ctx context.Context, d *entity.Descriptor) (models.PushResult, error) {
	scope, err := s.scopeFor(d)
	if err != nil {
		return models.PushResult{}, err
	}

	return s.drain(ctx, d, func(ctx context.Context, limit int) ([]models.Row, error) {
		return s.records.Pending(ctx, d, scope, limit)
	})
}

func (s *pushService) PushInstance(ctx context.Context, d *entity.Descriptor, instanceID string) (models.PushResult, error) {
	if d.InstanceField == "" {
		return models.PushResult{}, fmt.Errorf("descriptor %s has no instance field", d.Name)
	}

	scope, err := s.scopeFor(d)
	if err != nil {
		return models.PushResult{}, err
	}

	return s.drain(ctx, d, func(ctx context.Context, limit int) ([]models.Row, error) {
		return s.records.PendingForInstance(ctx, d, scope, instanceID, limit)
	})
}

// drain pages through the pending backlog in batches. Rows rejected during
// this call come back from the store as FAILED and would be re-selected by
// fetch; the attempted set guarantees every row is submitted at most once per
// call, so rejected rows wait for a later push instead of looping here. The
// fetch window grows by the attempted count so already-tried rows cannot
// shadow fresh ones.
func (s *pushService) drain(ctx context.Context, d *entity.Descriptor, fetch func(ctx context.Context, limit int) ([]models.Row, error)) (models.PushResult, error) {
	limit := s.batchLimit(d)
	attempted := make(map[string]struct{})

	var result models.PushResult
	for {
		rows, err := fetch(ctx, limit+len(attempted))
		if err != nil {
			return result, err
		}

		batch := make([]models.Row, 0, limit)
		for _, row := range rows {
			if _, seen := attempted[row.LocalID()]; seen {
				continue
			}
			attempted[row.LocalID()] = struct{}{}
			batch = append(batch, row)
			if len(batch) == limit {
				break
			}
		}
		if len(batch) == 0 {
			return result, nil
		}

		if err = s.pushBatch(ctx, d, batch, &result); err != nil {
			return result, err
		}
	}
}

// pushBatch claims one batch, submits it, and settles every claimed row. Rows
// are claimed in SYNCING; on every exit path any row without a final verdict
// reverts to PENDING.
func (s *pushService) pushBatch(ctx context.Context, d *entity.Descriptor, rows []models.Row, result *models.PushResult) error {
	log := logger.FromContext(ctx)

	localIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		localIDs = append(localIDs, row.LocalID())
	}
	if err := s.records.MarkSyncing(ctx, d, localIDs); err != nil {
		return err
	}

	claimed := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		claimed[id] = struct{}{}
	}
	defer func() {
		if len(claimed) == 0 {
			return
		}
		remaining := make([]string, 0, len(claimed))
		for id := range claimed {
			remaining = append(remaining, id)
		}
		if err := s.records.ReleaseSyncing(ctx, d, remaining); err != nil {
			log.Err(err).
				Str("func", "pushService.pushBatch").
				Str("descriptor", d.Name).
				Msg("failed to release claimed rows")
		}
	}()

	items := make([]models.PushItem, 0, len(rows))
	for _, row := range rows {
		item, err := d.ToServer(row)
		if err != nil {
			// A row that cannot serialize will never succeed; surface it
			// instead of blocking the batch forever.
			localID := row.LocalID()
			if markErr := s.records.MarkFailed(ctx, d, localID, err.Error()); markErr != nil {
				return markErr
			}
			delete(claimed, localID)
			result.Failed = append(result.Failed, models.PushFailure{LocalID: localID, Error: err.Error()})
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil
	}

	results, err := s.transport.Push(ctx, d.PushPath, items)
	if err != nil {
		// Request-level failure: the deferred release reverts the whole
		// batch to PENDING for the next cycle.
		return fmt.Errorf("push %s: %w", d.Name, err)
	}

	now := s.now().UTC()
	for _, r := range results {
		if _, ok := claimed[r.LocalID]; !ok {
			log.Warn().
				Str("func", "pushService.pushBatch").
				Str("descriptor", d.Name).
				Str("local_id", r.LocalID).
				Msg("server result references unclaimed row")
			continue
		}

		if r.Accepted() {
			if err = s.records.MarkSynced(ctx, d, r.LocalID, r.ID, now); err != nil {
				return err
			}
			result.Succeeded++
		} else {
			if err = s.records.MarkFailed(ctx, d, r.LocalID, r.Error); err != nil {
				return err
			}
			result.Failed = append(result.Failed, models.PushFailure{LocalID: r.LocalID, Error: r.Error})
		}
		delete(claimed, r.LocalID)
	}

	// Items the server never answered for revert via the deferred release.
	return nil
}

func (s *pushService) batchLimit(d *entity.Descriptor) int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return s.defaultBatchSize
}

func (s *pushService) scopeFor(d *entity.Descriptor) (string, error) {
	if d.ScopeField == "" {
		return "", nil
	}
	scope, err := s.transport.Scope()
	if err != nil {
		return "", fmt.Errorf("resolve scope for %s: %w", d.Name, err)
	}
	return scope, nil
}

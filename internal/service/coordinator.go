package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/provio/fieldsync/internal/adapter"
	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/store"
	"github.com/provio/fieldsync/models"
)

// syncAllKey coalesces overlapping full-sync triggers (manual refresh,
// periodic job, connectivity regain) into one in-flight pass.
const syncAllKey = "sync-all"

type syncCoordinator struct {
	orchestrator SyncOrchestrator
	uploadsSvc   UploadService
	push         PushService
	registry     *entity.Registry
	records      store.RecordRepository
	transport    adapter.Transport

	group singleflight.Group

	mu         sync.RWMutex
	online     bool
	syncing    bool
	lastSyncAt time.Time
	lastError  string

	logger *logger.Logger
}

// NewSyncCoordinator builds the application-facing coordinator. The device
// starts in the online state.
func NewSyncCoordinator(registry *entity.Registry, storages *store.ClientStorages, transport adapter.Transport, orchestrator SyncOrchestrator, push PushService, uploads UploadService, log *logger.Logger) SyncCoordinator {
	return &syncCoordinator{
		orchestrator: orchestrator,
		uploadsSvc:   uploads,
		push:         push,
		registry:     registry,
		records:      storages.Records,
		transport:    transport,
		online:       true,
		logger:       log,
	}
}

func (c *syncCoordinator) SyncAll(ctx context.Context) (models.SyncSummary, error) {
	if !c.isOnline() {
		return models.SyncSummary{}, ErrOffline
	}

	v, err, _ := c.group.Do(syncAllKey, func() (any, error) {
		c.setSyncing(true)
		defer c.setSyncing(false)

		cycles, cycleErrs := c.orchestrator.SyncAll(ctx)

		uploads, uploadErr := c.uploadsSvc.ProcessQueue(ctx)
		if uploadErr != nil {
			cycleErrs["uploads"] = uploadErr.Error()
		}

		summary := models.SyncSummary{Cycles: cycles, Uploads: uploads, Errors: cycleErrs}
		c.recordOutcome(summary)
		return summary, nil
	})
	if err != nil {
		return models.SyncSummary{}, err
	}

	summary, _ := v.(models.SyncSummary)
	return summary, nil
}

func (c *syncCoordinator) SyncOne(ctx context.Context, entityName, instanceID string) (models.PushResult, error) {
	if !c.isOnline() {
		return models.PushResult{}, ErrOffline
	}

	d, err := c.registry.Get(entityName)
	if err != nil {
		return models.PushResult{}, err
	}

	return c.push.PushInstance(ctx, d, instanceID)
}

func (c *syncCoordinator) SetOnline(ctx context.Context, online bool) {
	log := logger.FromContext(ctx)

	c.mu.Lock()
	wasOnline := c.online
	c.online = online
	c.mu.Unlock()

	if online == wasOnline {
		return
	}

	log.Info().
		Str("func", "syncCoordinator.SetOnline").
		Bool("online", online).
		Msg("connectivity changed")

	if online {
		// Regaining connectivity flushes the backlog without waiting for
		// the next periodic tick.
		go func() {
			if _, err := c.SyncAll(context.WithoutCancel(ctx)); err != nil {
				log.Warn().
					Str("func", "syncCoordinator.SetOnline").
					Err(err).
					Msg("post-reconnect sync failed")
			}
		}()
	}
}

func (c *syncCoordinator) Status(ctx context.Context) models.CoordinatorStatus {
	log := logger.FromContext(ctx)

	c.mu.RLock()
	status := models.CoordinatorStatus{
		IsOnline:   c.online,
		IsSyncing:  c.syncing,
		LastSyncAt: c.lastSyncAt,
		LastError:  c.lastError,
	}
	c.mu.RUnlock()

	scope, scopeErr := c.transport.Scope()
	if scopeErr != nil {
		log.Warn().Str("func", "syncCoordinator.Status").Err(scopeErr).Msg("cannot resolve technician scope")
	}
	for _, d := range c.registry.Counted() {
		if d.ScopeField != "" && scopeErr != nil {
			// An empty scope would count every technician's rows on the
			// device; leave this descriptor out of the total instead.
			continue
		}
		count, countErr := c.records.CountPending(ctx, d, scope)
		if countErr != nil {
			log.Warn().
				Str("func", "syncCoordinator.Status").
				Str("descriptor", d.Name).
				Err(countErr).
				Msg("pending count failed")
			continue
		}
		status.PendingAnswers += count
	}

	uploads, err := c.uploadsSvc.CountPending(ctx)
	if err != nil {
		log.Warn().Str("func", "syncCoordinator.Status").Err(err).Msg("pending upload count failed")
	}
	status.PendingUploads = uploads

	return status
}

func (c *syncCoordinator) Recover(ctx context.Context) error {
	if err := c.orchestrator.Recover(ctx); err != nil {
		return err
	}
	return c.uploadsSvc.Recover(ctx)
}

func (c *syncCoordinator) isOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *syncCoordinator) setSyncing(v bool) {
	c.mu.Lock()
	c.syncing = v
	c.mu.Unlock()
}

func (c *syncCoordinator) recordOutcome(summary models.SyncSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSyncAt = time.Now().UTC()
	c.lastError = ""
	if summary.Failed() {
		for name, msg := range summary.Errors {
			c.lastError = name + ": " + msg
			break
		}
	}
}

package service

import (
	"github.com/provio/fieldsync/internal/adapter"
	"github.com/provio/fieldsync/internal/config"
	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/store"
)

// Services groups the sync engine's service layer into a single value that
// can be passed to the application wiring.
type Services struct {
	Pull         PullService
	Push         PushService
	Orchestrator SyncOrchestrator
	Uploads      UploadService
	Coordinator  SyncCoordinator
}

// NewServices wires the engine's services over the given registry, storage
// layer and transport.
func NewServices(registry *entity.Registry, storages *store.ClientStorages, transport adapter.Transport, cfg config.SyncConfig, log *logger.Logger) *Services {
	pullSvc := NewPullService(storages, transport, cfg.BatchSize, log)
	pushSvc := NewPushService(storages, transport, cfg.BatchSize, log)
	orchestrator := NewSyncOrchestrator(registry, pullSvc, pushSvc, storages, log)
	uploadsSvc := NewUploadService(registry, storages, transport, cfg, log)

	return &Services{
		Pull:         pullSvc,
		Push:         pushSvc,
		Orchestrator: orchestrator,
		Uploads:      uploadsSvc,
		Coordinator:  NewSyncCoordinator(registry, storages, transport, orchestrator, pushSvc, uploadsSvc, log),
	}
}

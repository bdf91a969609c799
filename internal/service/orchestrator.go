package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/store"
	"github.com/provio/fieldsync/models"
)

type syncOrchestrator struct {
	registry *entity.Registry
	pull     PullService
	push     PushService
	records  store.RecordRepository

	// group keys in-flight cycles by descriptor name so concurrent triggers
	// coalesce instead of racing over the same rows.
	group singleflight.Group

	mu     sync.RWMutex
	status map[string]models.DescriptorStatus
	now    func() time.Time

	logger *logger.Logger
}

// NewSyncOrchestrator builds the per-descriptor cycle runner.
func NewSyncOrchestrator(registry *entity.Registry, pull PullService, push PushService, storages *store.ClientStorages, log *logger.Logger) SyncOrchestrator {
	return &syncOrchestrator{
		registry: registry,
		pull:     pull,
		push:     push,
		records:  storages.Records,
		status:   make(map[string]models.DescriptorStatus),
		now:      time.Now,
		logger:   log,
	}
}

func (o *syncOrchestrator) SyncEntity(ctx context.Context, name string) (models.CycleResult, error) {
	d, err := o.registry.Get(name)
	if err != nil {
		return models.CycleResult{}, err
	}

	v, err, _ := o.group.Do(d.Name, func() (any, error) {
		return o.cycle(ctx, d)
	})

	result, _ := v.(models.CycleResult)
	return result, err
}

func (o *syncOrchestrator) SyncAll(ctx context.Context) ([]models.CycleResult, map[string]string) {
	log := logger.FromContext(ctx)

	cycles := make([]models.CycleResult, 0, len(o.registry.All()))
	errs := make(map[string]string)

	for _, d := range o.registry.All() {
		result, err := o.SyncEntity(ctx, d.Name)
		cycles = append(cycles, result)
		if err != nil {
			// One failing descriptor must not block the rest of the pass.
			errs[d.Name] = err.Error()
			log.Warn().
				Str("func", "syncOrchestrator.SyncAll").
				Str("descriptor", d.Name).
				Err(err).
				Msg("descriptor cycle failed")
		}
	}

	return cycles, errs
}

func (o *syncOrchestrator) Status(name string) (models.DescriptorStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st, ok := o.status[name]
	return st, ok
}

func (o *syncOrchestrator) Recover(ctx context.Context) error {
	for _, d := range o.registry.All() {
		if err := o.records.RecoverStuck(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// cycle runs pull strictly before push so local pending edits are resolved
// against the freshest server state before they are submitted.
func (o *syncOrchestrator) cycle(ctx context.Context, d *entity.Descriptor) (models.CycleResult, error) {
	result := models.CycleResult{Descriptor: d.Name}

	pullRes, pullErr := o.pull.Pull(ctx, d)
	result.Pull = pullRes
	if pullErr != nil {
		o.recordStatus(d.Name, result, pullErr)
		return result, pullErr
	}

	pushRes, pushErr := o.push.Push(ctx, d)
	result.Push = pushRes
	o.recordStatus(d.Name, result, pushErr)
	return result, pushErr
}

func (o *syncOrchestrator) recordStatus(name string, result models.CycleResult, err error) {
	st := models.DescriptorStatus{
		LastRunAt: o.now().UTC(),
		Applied:   result.Pull.Applied,
		Pushed:    result.Push.Succeeded,
	}
	if err != nil {
		st.LastError = err.Error()
	}

	o.mu.Lock()
	o.status[name] = st
	o.mu.Unlock()
}

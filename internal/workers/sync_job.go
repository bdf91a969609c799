package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/service"
)

// SyncJob periodically triggers a full sync pass while the app is running.
// Overlap with manual syncs is harmless: the coordinator coalesces them.
type SyncJob struct {
	coordinator service.SyncCoordinator
	interval    time.Duration
	ctx         context.Context
	logger      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a SyncJob that calls SyncAll on a ticker. The job is
// idle until Run or Start is called. If interval is zero or negative it
// defaults to 5 minutes.
func NewSyncJob(ctx context.Context, coordinator service.SyncCoordinator, interval time.Duration, log *logger.Logger) *SyncJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SyncJob{
		coordinator: coordinator,
		interval:    interval,
		ctx:         ctx,
		logger:      log,
	}
}

// Run implements [Worker] by starting the job with its configured context.
func (j *SyncJob) Run() {
	j.Start(j.ctx)
}

// Start stops any previously running job, then launches a background
// goroutine that calls SyncAll every interval. The goroutine exits when ctx
// is cancelled or Stop is called.
func (j *SyncJob) Start(ctx context.Context) {
	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(j.interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				j.tick(jobCtx)
			}
		}
	}()
}

// Stop cancels the background goroutine's context and blocks until the
// goroutine has fully exited. Safe to call when the job is not running.
func (j *SyncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}

func (j *SyncJob) tick(ctx context.Context) {
	summary, err := j.coordinator.SyncAll(ctx)
	if errors.Is(err, service.ErrOffline) {
		return
	}
	if err != nil {
		j.logger.Warn().Str("func", "SyncJob.tick").Err(err).Msg("periodic sync failed")
		return
	}
	if summary.Failed() {
		j.logger.Warn().
			Str("func", "SyncJob.tick").
			Int("failed_descriptors", len(summary.Errors)).
			Msg("periodic sync finished with errors")
	}
}

package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/service"
	"github.com/provio/fieldsync/models"
)

type countingCoordinator struct {
	calls atomic.Int32
	err   error
}

func (c *countingCoordinator) SyncAll(context.Context) (models.SyncSummary, error) {
	c.calls.Add(1)
	return models.SyncSummary{}, c.err
}

func (c *countingCoordinator) SyncOne(context.Context, string, string) (models.PushResult, error) {
	return models.PushResult{}, nil
}

func (c *countingCoordinator) SetOnline(context.Context, bool) {}

func (c *countingCoordinator) Status(context.Context) models.CoordinatorStatus {
	return models.CoordinatorStatus{}
}

func (c *countingCoordinator) Recover(context.Context) error { return nil }

func TestSyncJob_TicksTriggerSyncAll(t *testing.T) {
	coordinator := &countingCoordinator{}
	job := NewSyncJob(context.Background(), coordinator, 20*time.Millisecond, logger.Nop())

	job.Run()
	defer job.Stop()

	require.Eventually(t, func() bool {
		return coordinator.calls.Load() >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestSyncJob_StopHaltsTicking(t *testing.T) {
	coordinator := &countingCoordinator{}
	job := NewSyncJob(context.Background(), coordinator, 20*time.Millisecond, logger.Nop())

	job.Start(context.Background())
	require.Eventually(t, func() bool {
		return coordinator.calls.Load() >= 1
	}, time.Second, 10*time.Millisecond)

	job.Stop()
	settled := coordinator.calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, coordinator.calls.Load())
}

func TestSyncJob_OfflineTicksAreQuiet(t *testing.T) {
	coordinator := &countingCoordinator{err: service.ErrOffline}
	job := NewSyncJob(context.Background(), coordinator, 20*time.Millisecond, logger.Nop())

	job.Start(context.Background())
	defer job.Stop()

	// Ticks keep coming; the offline error is swallowed, not fatal.
	require.Eventually(t, func() bool {
		return coordinator.calls.Load() >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestSyncJob_ContextCancelStops(t *testing.T) {
	coordinator := &countingCoordinator{}
	ctx, cancel := context.WithCancel(context.Background())
	job := NewSyncJob(ctx, coordinator, 20*time.Millisecond, logger.Nop())

	job.Run()
	cancel()

	time.Sleep(60 * time.Millisecond)
	settled := coordinator.calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, coordinator.calls.Load())
	job.Stop()
}

func TestSyncJob_DefaultInterval(t *testing.T) {
	job := NewSyncJob(context.Background(), &countingCoordinator{}, 0, logger.Nop())
	assert.Equal(t, 5*time.Minute, job.interval)
}

func TestWorkers_RunStartsAll(t *testing.T) {
	coordinator := &countingCoordinator{}
	job := NewSyncJob(context.Background(), coordinator, 20*time.Millisecond, logger.Nop())

	NewWorkers(job).Run()
	defer job.Stop()

	require.Eventually(t, func() bool {
		return coordinator.calls.Load() >= 1
	}, time.Second, 10*time.Millisecond)
}

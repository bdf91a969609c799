package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/models"
)

// blockingPull lets the test hold a cycle open while more triggers arrive.
type blockingPull struct {
	calls   atomic.Int32
	release chan struct{}
	result  models.PullResult
	err     error
}

func (p *blockingPull) Pull(_ context.Context, _ *entity.Descriptor) (models.PullResult, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	return p.result, p.err
}

type stubPush struct {
	calls  atomic.Int32
	result models.PushResult
	err    error
}

func (p *stubPush) Push(_ context.Context, _ *entity.Descriptor) (models.PushResult, error) {
	p.calls.Add(1)
	return p.result, p.err
}

func (p *stubPush) PushInstance(_ context.Context, _ *entity.Descriptor, _ string) (models.PushResult, error) {
	return p.result, p.err
}

func testRegistry(t *testing.T) *entity.Registry {
	t.Helper()
	registry, err := entity.DefaultRegistry()
	require.NoError(t, err)
	return registry
}

func TestSyncOrchestrator_SyncEntity_PullRunsBeforePush(t *testing.T) {
	var order []string
	var mu sync.Mutex

	pull := pullFunc(func(_ context.Context, _ *entity.Descriptor) (models.PullResult, error) {
		mu.Lock()
		order = append(order, "pull")
		mu.Unlock()
		return models.PullResult{Applied: 2}, nil
	})
	push := pushFunc(func(_ context.Context, _ *entity.Descriptor) (models.PushResult, error) {
		mu.Lock()
		order = append(order, "push")
		mu.Unlock()
		return models.PushResult{Succeeded: 1}, nil
	})

	o := NewSyncOrchestrator(testRegistry(t), pull, push, testStorages(newFakeRecords(), newFakeCursors(), newFakeUploads()), logger.Nop())

	result, err := o.SyncEntity(context.Background(), "checklist_answers")
	require.NoError(t, err)

	assert.Equal(t, []string{"pull", "push"}, order)
	assert.Equal(t, "checklist_answers", result.Descriptor)
	assert.Equal(t, 2, result.Pull.Applied)
	assert.Equal(t, 1, result.Push.Succeeded)

	st, ok := o.Status("checklist_answers")
	require.True(t, ok)
	assert.Equal(t, 2, st.Applied)
	assert.Equal(t, 1, st.Pushed)
	assert.Empty(t, st.LastError)
}

func TestSyncOrchestrator_SyncEntity_PullFailureSkipsPush(t *testing.T) {
	pull := pullFunc(func(_ context.Context, _ *entity.Descriptor) (models.PullResult, error) {
		return models.PullResult{}, errors.New("server unavailable")
	})
	push := &stubPush{}

	o := NewSyncOrchestrator(testRegistry(t), pull, push, testStorages(newFakeRecords(), newFakeCursors(), newFakeUploads()), logger.Nop())

	_, err := o.SyncEntity(context.Background(), "signatures")
	require.Error(t, err)
	assert.Equal(t, int32(0), push.calls.Load())

	st, ok := o.Status("signatures")
	require.True(t, ok)
	assert.Contains(t, st.LastError, "server unavailable")
}

func TestSyncOrchestrator_SyncEntity_UnknownDescriptor(t *testing.T) {
	o := NewSyncOrchestrator(testRegistry(t), &blockingPull{}, &stubPush{}, testStorages(newFakeRecords(), newFakeCursors(), newFakeUploads()), logger.Nop())

	_, err := o.SyncEntity(context.Background(), "no_such_entity")
	require.Error(t, err)
}

func TestSyncOrchestrator_SyncEntity_ConcurrentCallsCoalesce(t *testing.T) {
	pull := &blockingPull{release: make(chan struct{}), result: models.PullResult{Applied: 1}}
	push := &stubPush{}

	o := NewSyncOrchestrator(testRegistry(t), pull, push, testStorages(newFakeRecords(), newFakeCursors(), newFakeUploads()), logger.Nop())

	const callers = 5
	var wg sync.WaitGroup
	results := make([]models.CycleResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := o.SyncEntity(context.Background(), "work_order_notes")
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}

	// Let the callers pile up on the in-flight cycle, then release it.
	time.Sleep(50 * time.Millisecond)
	close(pull.release)
	wg.Wait()

	assert.Equal(t, int32(1), pull.calls.Load())
	assert.Equal(t, int32(1), push.calls.Load())
	for _, result := range results {
		assert.Equal(t, 1, result.Pull.Applied)
	}
}

func TestSyncOrchestrator_SyncAll_FailureIsIsolated(t *testing.T) {
	pull := pullFunc(func(_ context.Context, d *entity.Descriptor) (models.PullResult, error) {
		if d.Name == "signatures" {
			return models.PullResult{}, errors.New("boom")
		}
		return models.PullResult{Applied: 1}, nil
	})
	push := &stubPush{}

	registry := testRegistry(t)
	o := NewSyncOrchestrator(registry, pull, push, testStorages(newFakeRecords(), newFakeCursors(), newFakeUploads()), logger.Nop())

	cycles, errs := o.SyncAll(context.Background())

	assert.Len(t, cycles, len(registry.All()))
	require.Len(t, errs, 1)
	assert.Contains(t, errs["signatures"], "boom")
	// The three healthy descriptors still pushed.
	assert.Equal(t, int32(3), push.calls.Load())
}

func TestSyncOrchestrator_Recover_ReleasesStuckRows(t *testing.T) {
	records := newFakeRecords()
	d := entity.WorkOrderNotes()
	require.NoError(t, records.Insert(context.Background(), d, pendingNote("n1", time.Now())))
	require.NoError(t, records.MarkSyncing(context.Background(), d, []string{"n1"}))

	o := NewSyncOrchestrator(testRegistry(t), &blockingPull{}, &stubPush{}, testStorages(records, newFakeCursors(), newFakeUploads()), logger.Nop())

	require.NoError(t, o.Recover(context.Background()))
	assert.Equal(t, models.SyncStatusPending, records.get(d, "n1").Status())
}

// pullFunc and pushFunc adapt plain functions to the service interfaces.
type pullFunc func(ctx context.Context, d *entity.Descriptor) (models.PullResult, error)

func (f pullFunc) Pull(ctx context.Context, d *entity.Descriptor) (models.PullResult, error) {
	return f(ctx, d)
}

type pushFunc func(ctx context.Context, d *entity.Descriptor) (models.PushResult, error)

func (f pushFunc) Push(ctx context.Context, d *entity.Descriptor) (models.PushResult, error) {
	return f(ctx, d)
}

func (f pushFunc) PushInstance(ctx context.Context, d *entity.Descriptor, _ string) (models.PushResult, error) {
	return f(ctx, d)
}

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/store"
	"github.com/provio/fieldsync/models"
)

// fakeRecords is an in-memory RecordRepository keyed by table and local_id.
type fakeRecords struct {
	mu   sync.Mutex
	data map[string]map[string]models.Row // table -> local_id -> row
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{data: make(map[string]map[string]models.Row)}
}

func (f *fakeRecords) table(d *entity.Descriptor) map[string]models.Row {
	t, ok := f.data[d.TableName]
	if !ok {
		t = make(map[string]models.Row)
		f.data[d.TableName] = t
	}
	return t
}

func (f *fakeRecords) Insert(_ context.Context, d *entity.Descriptor, row models.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := row.Clone()
	stored[models.ColSyncStatus] = string(models.SyncStatusPending)
	f.table(d)[row.LocalID()] = stored
	return nil
}

func (f *fakeRecords) Upsert(_ context.Context, d *entity.Descriptor, rows ...models.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.table(d)
	for _, row := range rows {
		stored := row.Clone()
		stored[models.ColSyncStatus] = string(models.SyncStatusSynced)
		stored[models.ColSyncedAt] = time.Now().UTC()

		// Match on primary key the way the real upsert does.
		localID := row.LocalID()
		for id, existing := range t {
			if existing.String(d.PrimaryKeys[0]) == row.String(d.PrimaryKeys[0]) {
				localID = id
				break
			}
		}
		t[localID] = stored
	}
	return nil
}

func (f *fakeRecords) Get(_ context.Context, d *entity.Descriptor, keys map[string]any) (models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.table(d) {
		match := true
		for col, want := range keys {
			if fmt.Sprint(row[col]) != fmt.Sprint(want) {
				match = false
				break
			}
		}
		if match {
			return row.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeRecords) Pending(_ context.Context, d *entity.Descriptor, scope string, limit int) ([]models.Row, error) {
	return f.pending(d, scope, "", limit), nil
}

func (f *fakeRecords) PendingForInstance(_ context.Context, d *entity.Descriptor, scope, instanceID string, limit int) ([]models.Row, error) {
	return f.pending(d, scope, instanceID, limit), nil
}

func (f *fakeRecords) pending(d *entity.Descriptor, scope, instanceID string, limit int) []models.Row {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Row
	for _, row := range f.table(d) {
		status := row.Status()
		if status != models.SyncStatusPending && status != models.SyncStatusFailed {
			continue
		}
		if scope != "" && d.ScopeField != "" && row.String(d.ScopeField) != scope {
			continue
		}
		if instanceID != "" && row.String(d.InstanceField) != instanceID {
			continue
		}
		out = append(out, row.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Time(models.ColUpdatedAt).Before(out[j].Time(models.ColUpdatedAt))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeRecords) MarkSyncing(_ context.Context, d *entity.Descriptor, localIDs []string) error {
	return f.setStatus(d, localIDs, models.SyncStatusSyncing)
}

func (f *fakeRecords) ReleaseSyncing(_ context.Context, d *entity.Descriptor, localIDs []string) error {
	return f.setStatus(d, localIDs, models.SyncStatusPending)
}

func (f *fakeRecords) setStatus(d *entity.Descriptor, localIDs []string, status models.SyncStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.table(d)
	for _, id := range localIDs {
		if row, ok := t[id]; ok {
			row[models.ColSyncStatus] = string(status)
		}
	}
	return nil
}

func (f *fakeRecords) RecoverStuck(_ context.Context, d *entity.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.table(d) {
		if row.Status() == models.SyncStatusSyncing {
			row[models.ColSyncStatus] = string(models.SyncStatusPending)
		}
	}
	return nil
}

func (f *fakeRecords) MarkSynced(_ context.Context, d *entity.Descriptor, localID, serverID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.table(d)[localID]
	if !ok {
		return store.ErrNotFound
	}
	row[models.ColSyncStatus] = string(models.SyncStatusSynced)
	row[models.ColSyncedAt] = at
	row[models.ColSyncError] = nil
	if serverID != "" {
		row[d.PrimaryKeys[0]] = serverID
	}
	return nil
}

func (f *fakeRecords) MarkFailed(_ context.Context, d *entity.Descriptor, localID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.table(d)[localID]
	if !ok {
		return store.ErrNotFound
	}
	row[models.ColSyncStatus] = string(models.SyncStatusFailed)
	row[models.ColSyncError] = reason
	return nil
}

func (f *fakeRecords) SetField(_ context.Context, d *entity.Descriptor, localID, field string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.table(d)[localID]
	if !ok {
		return store.ErrNotFound
	}
	row[field] = value
	row[models.ColUpdatedAt] = time.Now().UTC()
	if row.Status() == models.SyncStatusSynced {
		row[models.ColSyncStatus] = string(models.SyncStatusPending)
	}
	return nil
}

func (f *fakeRecords) CountPending(_ context.Context, d *entity.Descriptor, scope string) (int, error) {
	return len(f.pending(d, scope, "", 1<<30)), nil
}

// get returns a stored row without copying, for assertions.
func (f *fakeRecords) get(d *entity.Descriptor, localID string) models.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.table(d)[localID]
}

// fakeCursors is an in-memory CursorRepository with the monotonic guard.
type fakeCursors struct {
	mu      sync.Mutex
	cursors map[string]time.Time
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{cursors: make(map[string]time.Time)}
}

func (f *fakeCursors) Get(_ context.Context, descriptor, scope string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[descriptor+"/"+scope], nil
}

func (f *fakeCursors) Advance(_ context.Context, descriptor, scope string, to time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := descriptor + "/" + scope
	if to.After(f.cursors[key]) {
		f.cursors[key] = to.UTC()
	}
	return nil
}

// fakeUploads is an in-memory UploadQueueRepository.
type fakeUploads struct {
	mu    sync.Mutex
	items map[string]*models.UploadQueueItem
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{items: make(map[string]*models.UploadQueueItem)}
}

func (f *fakeUploads) Enqueue(_ context.Context, item models.UploadQueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := item
	f.items[item.ID] = &stored
	return nil
}

func (f *fakeUploads) Due(_ context.Context, now time.Time, limit int) ([]models.UploadQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.UploadQueueItem
	for _, item := range f.items {
		if item.Status == models.UploadStatusQueued && !item.NextAttemptAt.After(now) {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUploads) MarkUploading(_ context.Context, id string) error {
	return f.setStatus(id, models.UploadStatusUploading)
}

func (f *fakeUploads) MarkUploaded(_ context.Context, id string, _ time.Time) error {
	return f.setStatus(id, models.UploadStatusUploaded)
}

func (f *fakeUploads) MarkRetry(_ context.Context, id string, attempts int, next time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return store.ErrNotFound
	}
	item.Status = models.UploadStatusQueued
	item.AttemptCount = attempts
	item.NextAttemptAt = next
	item.LastError = reason
	return nil
}

func (f *fakeUploads) MarkFailed(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return store.ErrNotFound
	}
	item.Status = models.UploadStatusFailed
	item.LastError = reason
	return nil
}

func (f *fakeUploads) RecoverStuck(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range f.items {
		if item.Status == models.UploadStatusUploading {
			item.Status = models.UploadStatusQueued
		}
	}
	return nil
}

func (f *fakeUploads) CountPending(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, item := range f.items {
		if item.Status == models.UploadStatusQueued || item.Status == models.UploadStatusUploading {
			count++
		}
	}
	return count, nil
}

func (f *fakeUploads) setStatus(id string, status models.UploadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return store.ErrNotFound
	}
	item.Status = status
	return nil
}

func (f *fakeUploads) get(id string) models.UploadQueueItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

// testStorages bundles the fakes into the aggregate the constructors expect.
func testStorages(records *fakeRecords, cursors *fakeCursors, uploads *fakeUploads) *store.ClientStorages {
	return &store.ClientStorages{Records: records, Cursors: cursors, Uploads: uploads}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/provio/fieldsync/internal/adapter"
	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/store"
	"github.com/provio/fieldsync/models"
)

type pullService struct {
	records   store.RecordRepository
	cursors   store.CursorRepository
	transport adapter.Transport

	defaultBatchSize int
	logger           *logger.Logger
}

// NewPullService builds the incremental pull pipeline.
func NewPullService(storages *store.ClientStorages, transport adapter.Transport, defaultBatchSize int, log *logger.Logger) PullService {
	return &pullService{
		records:          storages.Records,
		cursors:          storages.Cursors,
		transport:        transport,
		defaultBatchSize: defaultBatchSize,
		logger:           log,
	}
}

func (s *pullService) Pull(ctx context.Context, d *entity.Descriptor) (models.PullResult, error) {
	log := logger.FromContext(ctx)

	scope, err := s.scopeFor(d)
	if err != nil {
		return models.PullResult{}, err
	}

	since, err := s.cursors.Get(ctx, d.Name, scope)
	if err != nil {
		return models.PullResult{}, err
	}

	limit := d.BatchSize
	if limit <= 0 {
		limit = s.defaultBatchSize
	}

	var result models.PullResult
	for {
		page, pullErr := s.transport.Pull(ctx, d.PullPath, since, limit, scope)
		if pullErr != nil {
			// Pages applied before the failure stay applied; the cursor has
			// already advanced past them, so the next pull resumes here.
			return result, fmt.Errorf("pull %s: %w", d.Name, pullErr)
		}
		result.PagesFetched++

		advanceTo, applyErr := s.applyPage(ctx, d, page.Items, &result)
		if applyErr != nil {
			return result, fmt.Errorf("apply %s page: %w", d.Name, applyErr)
		}

		// The cursor moves only as far as the newest record actually
		// processed; the server's nextCursor hint may lie past records this
		// page never carried.
		advanced := advanceTo.After(since)
		if advanced {
			if cursErr := s.cursors.Advance(ctx, d.Name, scope, advanceTo); cursErr != nil {
				return result, cursErr
			}
			result.CursorAdvanced = advanceTo.UTC()
			since = advanceTo
		}

		if !page.HasMore || len(page.Items) == 0 {
			break
		}
		if !advanced {
			// A page that moved the watermark nowhere would be refetched
			// verbatim next iteration.
			log.Warn().
				Str("func", "pullService.Pull").
				Str("descriptor", d.Name).
				Msg("page advanced no records, stopping pagination")
			break
		}
	}

	log.Debug().
		Str("func", "pullService.Pull").
		Str("descriptor", d.Name).
		Int("applied", result.Applied).
		Int("skipped", result.Skipped).
		Int("pages", result.PagesFetched).
		Msg("pull complete")

	return result, nil
}

// applyPage transforms and upserts one page of wire records, returning the
// newest cursor timestamp observed among the applied rows.
func (s *pullService) applyPage(ctx context.Context, d *entity.Descriptor, items []json.RawMessage, result *models.PullResult) (time.Time, error) {
	log := logger.FromContext(ctx)

	var (
		toApply []models.Row
		maxSeen time.Time
	)

	for _, raw := range items {
		row, err := d.FromServer(raw)
		if err != nil {
			// One malformed record must not poison the page.
			log.Warn().
				Str("func", "pullService.applyPage").
				Str("descriptor", d.Name).
				Err(err).
				Msg("skipping malformed server record")
			result.Skipped++
			continue
		}

		res, hadConflict, err := s.resolve(ctx, d, row)
		if err != nil {
			return time.Time{}, err
		}

		switch res {
		case resolutionApply:
			toApply = append(toApply, row)
			if hadConflict {
				result.ConflictsServer++
			}
			if ts := row.Time(d.CursorField); ts.After(maxSeen) {
				maxSeen = ts
			}
		case resolutionKeepLocal:
			result.ConflictsLocal++
			result.Skipped++
			// The kept local row still moves the cursor; otherwise the same
			// server record would be refetched every cycle.
			if ts := row.Time(d.CursorField); ts.After(maxSeen) {
				maxSeen = ts
			}
		}
	}

	if len(toApply) > 0 {
		if err := s.records.Upsert(ctx, d, toApply...); err != nil {
			return time.Time{}, err
		}
		result.Applied += len(toApply)
	}

	return maxSeen, nil
}

// resolve looks up the local counterpart of an incoming row and applies the
// descriptor's conflict policy. The second return reports whether a real
// conflict (unsynced local edit) was overridden.
func (s *pullService) resolve(ctx context.Context, d *entity.Descriptor, incoming models.Row) (resolution, bool, error) {
	keys := make(map[string]any, len(d.PrimaryKeys))
	for _, k := range d.PrimaryKeys {
		keys[k] = incoming[k]
	}

	local, err := s.records.Get(ctx, d, keys)
	if errors.Is(err, store.ErrNotFound) {
		return resolutionApply, false, nil
	}
	if err != nil {
		return resolutionKeepLocal, false, err
	}

	res := resolveConflict(d, incoming, local)
	hadConflict := local.Status() != models.SyncStatusSynced
	return res, hadConflict && res == resolutionApply, nil
}

func (s *pullService) scopeFor(d *entity.Descriptor) (string, error) {
	if d.ScopeField == "" {
		return "", nil
	}
	scope, err := s.transport.Scope()
	if err != nil {
		return "", fmt.Errorf("resolve scope for %s: %w", d.Name, err)
	}
	return scope, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/models"
)

// recordRepository implements RecordRepository over sqlite. Queries are built
// with squirrel because table and column names are descriptor-driven.
type recordRepository struct {
	*DB
	logger *logger.Logger
}

// NewRecordRepository constructs the sqlite-backed RecordRepository.
func NewRecordRepository(db *DB, log *logger.Logger) RecordRepository {
	return &recordRepository{DB: db, logger: log}
}

func (r *recordRepository) Insert(ctx context.Context, d *entity.Descriptor, row models.Row) error {
	log := logger.FromContext(ctx)

	row = row.Clone()
	row[models.ColSyncStatus] = string(models.SyncStatusPending)
	row[models.ColSyncedAt] = nil
	row[models.ColSyncError] = nil

	cols, vals := sortedColumns(row)
	query, args, err := sq.Insert(d.TableName).Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert for %s: %w", d.TableName, err)
	}

	if _, err = r.ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "recordRepository.Insert").
			Str("table", d.TableName).
			Str("local_id", row.LocalID()).
			Msg("failed to insert local record")
		return fmt.Errorf("failed to insert record (local_id=%s): %w", row.LocalID(), err)
	}

	return nil
}

func (r *recordRepository) Upsert(ctx context.Context, d *entity.Descriptor, rows ...models.Row) error {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	for _, row := range rows {
		row = row.Clone()
		// Pulled server records are authoritative by definition.
		row[models.ColSyncStatus] = string(models.SyncStatusSynced)
		row[models.ColSyncedAt] = now
		row[models.ColSyncError] = nil

		cols, vals := sortedColumns(row)
		query, args, err := sq.Insert(d.TableName).
			Columns(cols...).
			Values(vals...).
			Suffix(upsertSuffix(d, cols)).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert for %s: %w", d.TableName, err)
		}

		if _, err = r.ExecContext(ctx, query, args...); err != nil {
			log.Err(err).
				Str("func", "recordRepository.Upsert").
				Str("table", d.TableName).
				Str("local_id", row.LocalID()).
				Msg("failed to execute upsert for pulled record")
			return fmt.Errorf("failed to upsert record (local_id=%s): %w", row.LocalID(), err)
		}
	}

	return nil
}

func (r *recordRepository) Get(ctx context.Context, d *entity.Descriptor, keys map[string]any) (models.Row, error) {
	query, args, err := sq.Select("*").From(d.TableName).Where(sq.Eq(normalizeMap(keys))).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select for %s: %w", d.TableName, err)
	}

	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	defer rows.Close()

	found, err := scanGenericRows(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (r *recordRepository) Pending(ctx context.Context, d *entity.Descriptor, scope string, limit int) ([]models.Row, error) {
	return r.pending(ctx, d, scope, "", limit)
}

func (r *recordRepository) PendingForInstance(ctx context.Context, d *entity.Descriptor, scope, instanceID string, limit int) ([]models.Row, error) {
	return r.pending(ctx, d, scope, instanceID, limit)
}

func (r *recordRepository) pending(ctx context.Context, d *entity.Descriptor, scope, instanceID string, limit int) ([]models.Row, error) {
	log := logger.FromContext(ctx)

	builder := sq.Select("*").
		From(d.TableName).
		Where(sq.Eq{models.ColSyncStatus: []string{
			string(models.SyncStatusPending),
			string(models.SyncStatusFailed),
		}}).
		OrderBy(models.ColUpdatedAt + " ASC")
	if d.ScopeField != "" && scope != "" {
		builder = builder.Where(sq.Eq{d.ScopeField: scope})
	}
	if d.InstanceField != "" && instanceID != "" {
		builder = builder.Where(sq.Eq{d.InstanceField: instanceID})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending select for %s: %w", d.TableName, err)
	}

	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "recordRepository.Pending").
			Str("table", d.TableName).
			Msg("failed to query pending records")
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	return scanGenericRows(rows)
}

func (r *recordRepository) MarkSyncing(ctx context.Context, d *entity.Descriptor, localIDs []string) error {
	if len(localIDs) == 0 {
		return nil
	}

	query, args, err := sq.Update(d.TableName).
		Set(models.ColSyncStatus, string(models.SyncStatusSyncing)).
		Where(sq.Eq{models.ColLocalID: localIDs}).
		Where(sq.Eq{models.ColSyncStatus: []string{
			string(models.SyncStatusPending),
			string(models.SyncStatusFailed),
		}}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark syncing for %s: %w", d.TableName, err)
	}

	if _, err = r.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark records syncing: %w", err)
	}
	return nil
}

func (r *recordRepository) ReleaseSyncing(ctx context.Context, d *entity.Descriptor, localIDs []string) error {
	if len(localIDs) == 0 {
		return nil
	}

	query, args, err := sq.Update(d.TableName).
		Set(models.ColSyncStatus, string(models.SyncStatusPending)).
		Where(sq.Eq{models.ColLocalID: localIDs}).
		Where(sq.Eq{models.ColSyncStatus: string(models.SyncStatusSyncing)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release syncing for %s: %w", d.TableName, err)
	}

	if _, err = r.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to release syncing records: %w", err)
	}
	return nil
}

func (r *recordRepository) RecoverStuck(ctx context.Context, d *entity.Descriptor) error {
	query, args, err := sq.Update(d.TableName).
		Set(models.ColSyncStatus, string(models.SyncStatusPending)).
		Where(sq.Eq{models.ColSyncStatus: string(models.SyncStatusSyncing)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build recover stuck for %s: %w", d.TableName, err)
	}

	if _, err = r.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to recover stuck records: %w", err)
	}
	return nil
}

func (r *recordRepository) MarkSynced(ctx context.Context, d *entity.Descriptor, localID, serverID string, at time.Time) error {
	log := logger.FromContext(ctx)

	builder := sq.Update(d.TableName).
		Set(models.ColSyncStatus, string(models.SyncStatusSynced)).
		Set(models.ColSyncedAt, at.UTC().Format(time.RFC3339Nano)).
		Set(models.ColSyncError, nil).
		Where(sq.Eq{models.ColLocalID: localID})
	if serverID != "" {
		// Reconcile local identity with the server-assigned id.
		builder = builder.Set(d.PrimaryKeys[0], serverID)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build mark synced for %s: %w", d.TableName, err)
	}

	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "recordRepository.MarkSynced").
			Str("table", d.TableName).
			Str("local_id", localID).
			Msg("failed to mark record synced")
		return fmt.Errorf("failed to mark record synced (local_id=%s): %w", localID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected (local_id=%s): %w", localID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w (local_id=%s)", ErrNotFound, localID)
	}

	return nil
}

func (r *recordRepository) MarkFailed(ctx context.Context, d *entity.Descriptor, localID, reason string) error {
	query, args, err := sq.Update(d.TableName).
		Set(models.ColSyncStatus, string(models.SyncStatusFailed)).
		Set(models.ColSyncError, reason).
		Where(sq.Eq{models.ColLocalID: localID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark failed for %s: %w", d.TableName, err)
	}

	if _, err = r.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark record failed (local_id=%s): %w", localID, err)
	}
	return nil
}

func (r *recordRepository) SetField(ctx context.Context, d *entity.Descriptor, localID, field string, value any) error {
	query, args, err := sq.Update(d.TableName).
		Set(field, normalizeValue(value)).
		Set(models.ColUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano)).
		Set(models.ColSyncStatus, sq.Expr(
			"CASE WHEN "+models.ColSyncStatus+" = ? THEN ? ELSE "+models.ColSyncStatus+" END",
			string(models.SyncStatusSynced), string(models.SyncStatusPending),
		)).
		Where(sq.Eq{models.ColLocalID: localID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set field for %s: %w", d.TableName, err)
	}

	if _, err = r.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set %s (local_id=%s): %w", field, localID, err)
	}
	return nil
}

func (r *recordRepository) CountPending(ctx context.Context, d *entity.Descriptor, scope string) (int, error) {
	builder := sq.Select("COUNT(*)").
		From(d.TableName).
		Where(sq.Eq{models.ColSyncStatus: []string{
			string(models.SyncStatusPending),
			string(models.SyncStatusFailed),
		}})
	if d.ScopeField != "" && scope != "" {
		builder = builder.Where(sq.Eq{d.ScopeField: scope})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count pending for %s: %w", d.TableName, err)
	}

	var count int
	if err = r.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return count, nil
}

// sortedColumns flattens a row into deterministic column/value slices.
func sortedColumns(row models.Row) ([]string, []any) {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	vals := make([]any, 0, len(cols))
	for _, col := range cols {
		vals = append(vals, normalizeValue(row[col]))
	}
	return cols, vals
}

// upsertSuffix builds the ON CONFLICT clause matching the descriptor's
// primary keys and overwriting every other column from the incoming row.
func upsertSuffix(d *entity.Descriptor, cols []string) string {
	pk := make(map[string]bool, len(d.PrimaryKeys))
	for _, k := range d.PrimaryKeys {
		pk[k] = true
	}

	assignments := make([]string, 0, len(cols))
	for _, col := range cols {
		if pk[col] {
			continue
		}
		assignments = append(assignments, col+" = excluded."+col)
	}

	return "ON CONFLICT(" + strings.Join(d.PrimaryKeys, ", ") + ") DO UPDATE SET " +
		strings.Join(assignments, ", ")
}

// normalizeValue serializes timestamps as RFC3339Nano text; sqlite has no
// native timestamp type and string comparison keeps cursors portable.
func normalizeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

// scanGenericRows reads a result set into generic rows using the returned
// column list; byte slices are folded to strings.
func scanGenericRows(rows *sql.Rows) ([]models.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var out []models.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}

		row := make(models.Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = vals[i]
			}
		}
		out = append(out, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", rowsErr)
	}
	return out, nil
}

package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provio/fieldsync/internal/logger"
)

func newTestCursors(t *testing.T) (CursorRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newTestDB(t)
	return NewCursorRepository(db, logger.Nop()), mock
}

func TestCursorRepository_Get_ZeroTimeWhenAbsent(t *testing.T) {
	repo, mock := newTestCursors(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT cursor")).
		WithArgs("checklist_answers", "tech-1").
		WillReturnRows(sqlmock.NewRows([]string{"cursor"}))

	got, err := repo.Get(context.Background(), "checklist_answers", "tech-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestCursorRepository_Get_ParsesStoredWatermark(t *testing.T) {
	repo, mock := newTestCursors(t)
	watermark := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT cursor")).
		WithArgs("signatures", "").
		WillReturnRows(sqlmock.NewRows([]string{"cursor"}).AddRow(watermark.Format(time.RFC3339Nano)))

	got, err := repo.Get(context.Background(), "signatures", "")
	require.NoError(t, err)
	assert.True(t, got.Equal(watermark))
}

func TestCursorRepository_Advance_PersistsNewerValue(t *testing.T) {
	repo, mock := newTestCursors(t)
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT cursor")).
		WithArgs("signatures", "").
		WillReturnRows(sqlmock.NewRows([]string{"cursor"}).AddRow(older.Format(time.RFC3339Nano)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sync_cursors")).
		WithArgs("signatures", "", newer.Format(time.RFC3339Nano)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Advance(context.Background(), "signatures", "", newer))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCursorRepository_Advance_NeverRegresses(t *testing.T) {
	repo, mock := newTestCursors(t)
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		to   time.Time
	}{
		{name: "older value is ignored", to: current.Add(-time.Hour)},
		{name: "equal value is ignored", to: current},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectQuery(regexp.QuoteMeta("SELECT cursor")).
				WithArgs("signatures", "").
				WillReturnRows(sqlmock.NewRows([]string{"cursor"}).AddRow(current.Format(time.RFC3339Nano)))

			require.NoError(t, repo.Advance(context.Background(), "signatures", "", tt.to))
		})
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCursorRepository_Advance_ZeroValueIsNoop(t *testing.T) {
	repo, mock := newTestCursors(t)

	require.NoError(t, repo.Advance(context.Background(), "signatures", "", time.Time{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

func sampleRecord() analysis.TaskStatus {
	now := time.Unix(1750000000, 0).UTC()
	return analysis.TaskStatus{
		TaskID:          "abcdef0123456789",
		Email:           "user@example.com",
		URL:             "https://example.com",
		Status:          analysis.StatusQueued,
		EmailStatus:     analysis.EmailPending,
		ReportDirectory: "",
		RetryCount:      0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func recordRows(rec analysis.TaskStatus) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"task_id", "email", "url", "status", "email_status",
		"report_directory", "error", "email_error", "retry_count",
		"created_at", "updated_at",
	}).AddRow(
		rec.TaskID, rec.Email, rec.URL, string(rec.Status), string(rec.EmailStatus),
		rec.ReportDirectory, rec.Error, rec.EmailError, rec.RetryCount,
		rec.CreatedAt, rec.UpdatedAt,
	)
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *AnalysisStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewAnalysisStoreWithPool(mock, "analyses")
	require.NoError(t, err)
	return mock, store
}

func TestNewAnalysisStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewAnalysisStoreWithPool(mock, "analyses; DROP TABLE analyses")
	require.Error(t, err)

	_, err = NewAnalysisStoreWithPool(nil, "analyses")
	require.Error(t, err)
}

func TestCreateRecordUpserts(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	rec := sampleRecord()

	mock.ExpectExec("INSERT INTO analyses").
		WithArgs(
			rec.TaskID, rec.Email, rec.URL, string(rec.Status), string(rec.EmailStatus),
			rec.ReportDirectory, rec.Error, rec.EmailError, rec.RetryCount,
			rec.CreatedAt, rec.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRecord(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRecordRequiresTaskID(t *testing.T) {
	t.Parallel()

	_, store := newMockStore(t)
	rec := sampleRecord()
	rec.TaskID = ""
	require.Error(t, store.CreateRecord(context.Background(), rec))
}

func TestUpdateRecordReportsMissingRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	rec := sampleRecord()
	rec.Status = analysis.StatusCompleted
	rec.ReportDirectory = "/reports/example.com-20260825-120000"

	mock.ExpectExec("UPDATE analyses SET").
		WithArgs(
			rec.TaskID, string(rec.Status), string(rec.EmailStatus), rec.ReportDirectory,
			rec.Error, rec.EmailError, rec.RetryCount, rec.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateRecord(context.Background(), rec)
	require.ErrorIs(t, err, analysis.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecord(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	rec := sampleRecord()

	mock.ExpectQuery("SELECT (.+) FROM analyses WHERE task_id").
		WithArgs(rec.TaskID).
		WillReturnRows(recordRows(rec))

	got, err := store.GetRecord(context.Background(), rec.TaskID)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	mock.ExpectQuery("SELECT (.+) FROM analyses WHERE task_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"task_id", "email", "url", "status", "email_status",
			"report_directory", "error", "email_error", "retry_count",
			"created_at", "updated_at",
		}))

	_, err = store.GetRecord(context.Background(), "missing")
	require.ErrorIs(t, err, analysis.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByEmail(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	rec := sampleRecord()

	mock.ExpectQuery("SELECT (.+) FROM analyses WHERE email").
		WithArgs(rec.Email).
		WillReturnRows(recordRows(rec))

	got, err := store.ListByEmail(context.Background(), rec.Email)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rec.TaskID, got[0].TaskID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCreatedSince(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	rec := sampleRecord()
	cutoff := rec.CreatedAt.Add(-time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM analyses WHERE created_at").
		WithArgs(cutoff).
		WillReturnRows(recordRows(rec))

	got, err := store.ListCreatedSince(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

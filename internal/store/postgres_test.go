package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/api/internal/report"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresGetReport(t *testing.T) {
	store, mock := newMockStore(t)
	doc := report.New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	doc.Legal.Sanctions = []string{"OFAC SDN"}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM reports WHERE id=$1`)).
		WithArgs("rep-1").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(raw))

	got, err := store.GetReport(context.Background(), "rep-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"OFAC SDN"}, got.Legal.Sanctions)
	assert.True(t, got.Sections[report.SectionLegal].HasData, "derived flags are recomputed on load")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetReportNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM reports`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetReport(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresPutReportUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	doc := report.New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	doc.Revision = 3

	mock.ExpectExec(`INSERT INTO reports .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("rep-1", "IR-1", "Jane Doe", "draft", report.DefaultClassification, 0, int64(3), sqlmock.AnyArg(), fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.PutReport(context.Background(), doc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutReportError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO reports`).WillReturnError(errors.New("connection refused"))

	err := store.PutReport(context.Background(), report.New("rep-1", "IR-1", "Jane Doe", nil, fixedNow))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put report")
}

func TestPostgresListReports(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "case_number", "target_name", "status", "overall_progress", "revision", "updated_at"}).
		AddRow("b", "IR-B", "Bravo", "completed", 100, int64(4), fixedNow).
		AddRow("a", "IR-A", "Alpha", "draft", 0, int64(1), fixedNow)
	mock.ExpectQuery(`SELECT id, case_number, target_name, status, overall_progress, revision, updated_at\s+FROM reports`).
		WithArgs(50).
		WillReturnRows(rows)

	items, err := store.ListReports(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, report.StatusCompleted, items[0].Status)
	assert.Equal(t, int64(4), items[0].Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordExport(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO report_exports`).
		WithArgs("rep-1", int64(2), "reports/rep-1/a.pdf", "abc", 3, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordExport(context.Background(), ExportRecord{
		ReportID: "rep-1", Revision: 2, ObjectKey: "reports/rep-1/a.pdf", Fingerprint: "abc", PageCount: 3, CreatedAt: fixedNow,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

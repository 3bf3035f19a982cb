package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cierreops/cierre-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_SaveJob_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs("ingresos", "j1", "pendiente", "202501_ingresos_76123456-0.xlsx",
			"", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	now := time.Now().UTC()
	err := s.SaveJob(context.Background(), &model.Job{
		ID:           "j1",
		DocumentType: model.DocTypeIngresos,
		State:        model.JobStatePending,
		FileLabel:    "202501_ingresos_76123456-0.xlsx",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT document_type, id, state, file_label, error_detail, counts, created_at, updated_at`).
		WithArgs("ingresos").
		WillReturnError(pgx.ErrNoRows)

	job, err := s.GetJob(context.Background(), model.DocTypeIngresos)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"document_type", "id", "state", "file_label", "error_detail", "counts", "created_at", "updated_at",
	}).AddRow("ingresos", "j1", "procesado", "f.xlsx", "", []byte(`{"filas":7}`), now, now)

	mock.ExpectQuery(`SELECT document_type, id, state`).
		WithArgs("ingresos").
		WillReturnRows(rows)

	job, err := s.GetJob(context.Background(), model.DocTypeIngresos)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobStateProcessed, job.State)
	assert.Equal(t, 7, job.Counts["filas"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM jobs`).
		WithArgs("novedades").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteJob(context.Background(), model.DocTypeNovedades)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendActivity_GeneratesID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO activity_log`).
		WithArgs(pgxmock.AnyArg(), "client-1", "archivos", "subir", "archivo subido", "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendActivity(context.Background(), model.ActivityEntry{
		ClientID:    "client-1",
		Category:    "archivos",
		Action:      "subir",
		Description: "archivo subido",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActivity_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "client_id", "category", "action", "description", "detail", "cierre_id", "created_at",
	}).AddRow("a1", "client-1", "archivos", "subir", "", "", "c-1", now)

	mock.ExpectQuery(`SELECT id, client_id, category`).
		WithArgs("archivos", "c-1", 100).
		WillReturnRows(rows)

	entries, err := s.ListActivity(context.Background(), ActivityFilter{
		Category: "archivos",
		CierreID: "c-1",
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c-1", entries[0].CierreID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

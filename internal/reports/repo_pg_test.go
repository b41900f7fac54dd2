package reports

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPGRepo(db), mock
}

func reportRow(t *testing.T, status string, analysis []byte) *sqlmock.Rows {
	t.Helper()
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var analysisValue any
	if analysis != nil {
		analysisValue = analysis
	}
	return sqlmock.NewRows(reportColumns).AddRow(
		"r-1", "user-1", "q3.pdf", int64(2048), "application/pdf", "k/q3.pdf", status,
		"Revenue grew", "k/q3.pdf.extracted.txt", false, nil,
		analysisValue, nil, uploaded, uploaded,
	)
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	report := Report{
		ID:         "r-1",
		UserID:     "user-1",
		FileName:   "q3.pdf",
		FileSize:   2048,
		FileType:   "application/pdf",
		StorageKey: "k/q3.pdf",
		Status:     StatusUploaded,
		UploadDate: now,
	}

	mock.ExpectExec("INSERT INTO reports").
		WithArgs(
			"r-1", "user-1", "q3.pdf", int64(2048), "application/pdf", "k/q3.pdf", StatusUploaded,
			nil, // extracted_text
			nil, // extracted_text_key
			false,
			nil, // full_text_size
			nil, // analysis
			nil, // error_message
			now,
			now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), report))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT (.+) FROM reports WHERE id = \$1 LIMIT 1`).
		WithArgs("r-1").
		WillReturnRows(reportRow(t, StatusCompleted, []byte(`{"summary":"Strong quarter","key_points":["a"]}`)))

	got, err := repo.GetByID(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "Revenue grew", got.ExtractedText)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, "Strong quarter", got.Analysis.Summary)
	assert.Empty(t, got.Error)

	mock.ExpectQuery(`FROM reports WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoListAppliesFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM reports WHERE user_id = \$1 AND status = \$2 ORDER BY upload_date DESC, id DESC LIMIT 5 OFFSET 10`).
		WithArgs("user-1", StatusExtracted).
		WillReturnRows(reportRow(t, StatusExtracted, nil))

	got, err := repo.List(context.Background(), ListFilter{UserID: "user-1", Status: StatusExtracted, Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Analysis)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoApplyCompareAndSet(t *testing.T) {
	repo, mock := newMockRepo(t)
	clearErr := ""

	mock.ExpectQuery(`UPDATE reports SET updated_at = \$1, status = \$2, analysis = \$3, error_message = \$4 WHERE id = \$5 AND status IN \(\$6,\$7\) RETURNING`).
		WithArgs(sqlmock.AnyArg(), StatusProcessing, nil, nil, "r-1", StatusUploaded, StatusExtracted).
		WillReturnRows(reportRow(t, StatusProcessing, nil))

	got, err := repo.Apply(context.Background(), "r-1", []string{StatusUploaded, StatusExtracted}, Update{
		Status:        StatusProcessing,
		ClearAnalysis: true,
		Error:         &clearErr,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoApplyDistinguishesConflictFromMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	update := Update{Status: StatusProcessing}
	from := []string{StatusUploaded}

	mock.ExpectQuery(`UPDATE reports SET`).
		WithArgs(sqlmock.AnyArg(), StatusProcessing, "r-1", StatusUploaded).
		WillReturnRows(sqlmock.NewRows(reportColumns))
	mock.ExpectQuery(`SELECT status FROM reports WHERE id = \$1`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusCompleted))

	_, err := repo.Apply(context.Background(), "r-1", from, update)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	mock.ExpectQuery(`UPDATE reports SET`).
		WithArgs(sqlmock.AnyArg(), StatusProcessing, "r-2", StatusUploaded).
		WillReturnRows(sqlmock.NewRows(reportColumns))
	mock.ExpectQuery(`SELECT status FROM reports WHERE id = \$1`).
		WithArgs("r-2").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err = repo.Apply(context.Background(), "r-2", from, update)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoDelete(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`DELETE FROM reports WHERE id = \$1`).
		WithArgs("r-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM reports WHERE id = \$1`).
		WithArgs("r-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "r-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "r-2"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

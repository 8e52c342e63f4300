package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
)

var runRowColumns = []string{"id", "source", "status", "progress", "fingerprint", "params", "roster", "assignments", "unscheduled", "anomalies", "result_url", "created_by", "created_at", "finished_at", "error_message"}

const runParamsJSON = `{"days":["Monday","Tuesday"],"periodsPerDay":4,"format":"xlsx"}`

func TestTimetableRunRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_runs")).
		WithArgs(sqlmock.AnyArg(), "upload", "QUEUED", 0, "", sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0, 0, nil, "user-1", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.TimetableRun{
		Source:    models.RunSourceUpload,
		Params:    models.RunParams{Days: []string{"Monday", "Tuesday"}, PeriodsPerDay: 4, Format: models.OutputFormatXLSX},
		CreatedBy: "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), run))
	require.NotEmpty(t, run.ID)

	rows := sqlmock.NewRows(runRowColumns).
		AddRow(run.ID, "upload", "QUEUED", 0, "", runParamsJSON, `{"teachers":["Rao"],"classes":["9A"]}`, 0, 0, 0, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source, status, progress, fingerprint, params, roster, assignments, unscheduled, anomalies, result_url, created_by, created_at, finished_at, error_message FROM timetable_runs WHERE id = ?")).
		WithArgs(run.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, 4, fetched.Params.PeriodsPerDay)
	assert.Equal(t, []string{"Rao"}, fetched.Roster.Teachers)
	assert.Empty(t, fetched.Roster.Warnings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRunRepository(db)

	now := time.Now()
	status := models.RunStatusFinished
	progress := 100
	unscheduled := 2
	result := "/api/v1/timetables/export/token"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_runs SET status = ?, progress = ?, unscheduled = ?, result_url = ?, finished_at = ? WHERE id = ?")).
		WithArgs(status, progress, unscheduled, result, now, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "run-1", UpdateTimetableRunParams{
		Status:      &status,
		Progress:    &progress,
		Unscheduled: &unscheduled,
		ResultURL:   &result,
		FinishedAt:  &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryUpdateNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRunRepository(db)

	require.NoError(t, repo.Update(context.Background(), "run-1", UpdateTimetableRunParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRunRepository(db)

	status := models.RunStatusFinished
	rows := sqlmock.NewRows(runRowColumns).
		AddRow("run-1", "api", "FINISHED", 100, "abc", runParamsJSON, `{}`, 10, 0, 0, nil, "", time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_runs WHERE 1=1 AND status = ? ORDER BY created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs(status).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetable_runs WHERE 1=1 AND status = ?")).
		WithArgs(status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	runs, total, err := repo.List(context.Background(), models.TimetableRunFilter{Status: &status, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, 11, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRunRepository(db)

	rows := sqlmock.NewRows(runRowColumns).
		AddRow("run-1", "upload", "QUEUED", 0, "", runParamsJSON, `{}`, 0, 0, 0, nil, "", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT ?")).
		WithArgs(20).
		WillReturnRows(rows)

	runs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryListFinishedBefore(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRunRepository(db)

	rows := sqlmock.NewRows(runRowColumns).
		AddRow("run-1", "upload", "FINISHED", 100, "", runParamsJSON, `{}`, 4, 0, 0, "/api/v1/timetables/export/token", "", time.Now().Add(-48*time.Hour), time.Now().Add(-25*time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'FINISHED' AND result_url IS NOT NULL AND finished_at IS NOT NULL AND finished_at < ? ORDER BY finished_at ASC LIMIT ?")).
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	runs, err := repo.ListFinishedBefore(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].ResultURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryLatestFinished(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRunRepository(db)

	finished := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows(runRowColumns).
		AddRow("run-7", "api", "FINISHED", 100, "fp", runParamsJSON, `{"teachers":["Rao"],"classes":["9A"]}`, 3, 0, 0, nil, "", finished.Add(-time.Minute), finished, nil)
	latestQuery := regexp.QuoteMeta("WHERE status = 'FINISHED' AND finished_at IS NOT NULL ORDER BY finished_at DESC LIMIT 1")
	mock.ExpectQuery(latestQuery).WillReturnRows(rows)

	run, err := repo.LatestFinished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-7", run.ID)
	assert.Equal(t, 3, run.Assignments)

	mock.ExpectQuery(latestQuery).WillReturnRows(sqlmock.NewRows(runRowColumns))
	_, err = repo.LatestFinished(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRunRepositoryRequeueInterrupted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_runs SET status = 'QUEUED', progress = 0 WHERE status = 'PROCESSING'")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.RequeueInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

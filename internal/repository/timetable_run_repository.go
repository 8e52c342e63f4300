package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
)

const timetableRunColumns = `id, source, status, progress, fingerprint, params, roster, assignments, unscheduled, anomalies, result_url, created_by, created_at, finished_at, error_message`

// TimetableRunRepository persists run metadata.
type TimetableRunRepository struct {
	db *sqlx.DB
}

// NewTimetableRunRepository constructs the repository.
func NewTimetableRunRepository(db *sqlx.DB) *TimetableRunRepository {
	return &TimetableRunRepository{db: db}
}

// Create inserts a new run row with generated defaults.
func (r *TimetableRunRepository) Create(ctx context.Context, run *models.TimetableRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timetable_runs (` + timetableRunColumns + `)
VALUES (:id, :source, :status, :progress, :fingerprint, :params, :roster, :assignments, :unscheduled, :anomalies, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create timetable run: %w", err)
	}
	return nil
}

// GetByID returns a run by its identifier. A missing row surfaces as sql.ErrNoRows.
func (r *TimetableRunRepository) GetByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	query := r.db.Rebind(`SELECT ` + timetableRunColumns + ` FROM timetable_runs WHERE id = ?`)
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get timetable run: %w", err)
	}
	return &run, nil
}

// UpdateTimetableRunParams defines the mutable fields.
type UpdateTimetableRunParams struct {
	Status       *models.RunStatus
	Progress     *int
	Fingerprint  *string
	Roster       *models.RunRoster
	Assignments  *int
	Unscheduled  *int
	Anomalies    *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a run row.
func (r *TimetableRunRepository) Update(ctx context.Context, id string, params UpdateTimetableRunParams) error {
	set := make([]string, 0, 10)
	args := make([]interface{}, 0, 11)
	add := func(column string, value interface{}) {
		set = append(set, column+" = ?")
		args = append(args, value)
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.Fingerprint != nil {
		add("fingerprint", *params.Fingerprint)
	}
	if params.Roster != nil {
		add("roster", *params.Roster)
	}
	if params.Assignments != nil {
		add("assignments", *params.Assignments)
	}
	if params.Unscheduled != nil {
		add("unscheduled", *params.Unscheduled)
	}
	if params.Anomalies != nil {
		add("anomalies", *params.Anomalies)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}

	if len(set) == 0 {
		return nil
	}

	query := r.db.Rebind(fmt.Sprintf("UPDATE timetable_runs SET %s WHERE id = ?", strings.Join(set, ", ")))
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update timetable run: %w", err)
	}
	return nil
}

// List returns runs newest first with the total matching count.
func (r *TimetableRunRepository) List(ctx context.Context, filter models.TimetableRunFilter) ([]models.TimetableRun, int, error) {
	baseQuery := `FROM timetable_runs WHERE 1=1`
	var args []interface{}
	if filter.Status != nil {
		baseQuery += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Source != nil {
		baseQuery += " AND source = ?"
		args = append(args, *filter.Source)
	}

	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := r.db.Rebind(fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", timetableRunColumns, baseQuery, pageSize, offset))
	runs := make([]models.TimetableRun, 0)
	if err := r.db.SelectContext(ctx, &runs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetable runs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+baseQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("count timetable runs: %w", err)
	}
	return runs, total, nil
}

// LatestFinished returns the most recently finished run. A missing row surfaces as sql.ErrNoRows.
func (r *TimetableRunRepository) LatestFinished(ctx context.Context) (*models.TimetableRun, error) {
	const query = `SELECT ` + timetableRunColumns + ` FROM timetable_runs WHERE status = 'FINISHED' AND finished_at IS NOT NULL ORDER BY finished_at DESC LIMIT 1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query); err != nil {
		return nil, fmt.Errorf("latest finished timetable run: %w", err)
	}
	return &run, nil
}

// RequeueInterrupted moves runs left PROCESSING by a stopped worker back to QUEUED.
func (r *TimetableRunRepository) RequeueInterrupted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE timetable_runs SET status = 'QUEUED', progress = 0 WHERE status = 'PROCESSING'`)
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted timetable runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted timetable runs: %w", err)
	}
	return n, nil
}

// ListQueued fetches queued runs oldest first (used for cold start recovery).
func (r *TimetableRunRepository) ListQueued(ctx context.Context, limit int) ([]models.TimetableRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.db.Rebind(`SELECT ` + timetableRunColumns + ` FROM timetable_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT ?`)
	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued timetable runs: %w", err)
	}
	return runs, nil
}

// ListFinishedBefore retrieves finished runs older than cutoff for artifact cleanup.
func (r *TimetableRunRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.TimetableRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.Rebind(`SELECT ` + timetableRunColumns + ` FROM timetable_runs WHERE status = 'FINISHED' AND result_url IS NOT NULL AND finished_at IS NOT NULL AND finished_at < ? ORDER BY finished_at ASC LIMIT ?`)
	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished timetable runs: %w", err)
	}
	return runs, nil
}

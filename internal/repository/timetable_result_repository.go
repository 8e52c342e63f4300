package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
)

// insertBatchSize bounds rows per multi-row INSERT so bind parameters stay under driver limits.
const insertBatchSize = 500

// TimetableResultRepository persists the placed periods and deficits of a run.
type TimetableResultRepository struct {
	db *sqlx.DB
}

// NewTimetableResultRepository constructs the repository.
func NewTimetableResultRepository(db *sqlx.DB) *TimetableResultRepository {
	return &TimetableResultRepository{db: db}
}

// SaveResult replaces any stored records of runID in a single transaction.
func (r *TimetableResultRepository) SaveResult(ctx context.Context, runID string, assignments []models.TimetableAssignment, deficits []models.TimetableDeficit) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save result: %w", err)
	}
	if err := saveResultTx(ctx, tx, runID, assignments, deficits); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save result: %w", err)
	}
	return nil
}

func saveResultTx(ctx context.Context, tx *sqlx.Tx, runID string, assignments []models.TimetableAssignment, deficits []models.TimetableDeficit) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM timetable_assignments WHERE run_id = ?`), runID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM timetable_deficits WHERE run_id = ?`), runID); err != nil {
		return fmt.Errorf("clear deficits: %w", err)
	}

	for i := range assignments {
		assignments[i].RunID = runID
	}
	for start := 0; start < len(assignments); start += insertBatchSize {
		end := min(start+insertBatchSize, len(assignments))
		const query = `INSERT INTO timetable_assignments (run_id, teacher_id, class_id, day_index, period_index) VALUES (:run_id, :teacher_id, :class_id, :day_index, :period_index)`
		if _, err := tx.NamedExecContext(ctx, query, assignments[start:end]); err != nil {
			return fmt.Errorf("insert assignments: %w", err)
		}
	}

	for i := range deficits {
		deficits[i].RunID = runID
		deficits[i].Seq = i
	}
	for start := 0; start < len(deficits); start += insertBatchSize {
		end := min(start+insertBatchSize, len(deficits))
		const query = `INSERT INTO timetable_deficits (run_id, seq, teacher_id, class_id, required, scheduled, unscheduled) VALUES (:run_id, :seq, :teacher_id, :class_id, :required, :scheduled, :unscheduled)`
		if _, err := tx.NamedExecContext(ctx, query, deficits[start:end]); err != nil {
			return fmt.Errorf("insert deficits: %w", err)
		}
	}
	return nil
}

// ListAssignments returns the placed periods of a run ordered by teacher, day and period.
func (r *TimetableResultRepository) ListAssignments(ctx context.Context, runID string) ([]models.TimetableAssignment, error) {
	query := r.db.Rebind(`SELECT run_id, teacher_id, class_id, day_index, period_index FROM timetable_assignments WHERE run_id = ? ORDER BY teacher_id, day_index, period_index`)
	rows := make([]models.TimetableAssignment, 0)
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return rows, nil
}

// ListDeficits returns the unscheduled pairs of a run in placement order.
func (r *TimetableResultRepository) ListDeficits(ctx context.Context, runID string) ([]models.TimetableDeficit, error) {
	query := r.db.Rebind(`SELECT run_id, seq, teacher_id, class_id, required, scheduled, unscheduled FROM timetable_deficits WHERE run_id = ? ORDER BY seq`)
	rows := make([]models.TimetableDeficit, 0)
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list deficits: %w", err)
	}
	return rows, nil
}

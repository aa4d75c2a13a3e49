package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/study-scheduler/internal/persistence"
)

// ScheduleRepository implements persistence.ScheduleRepository using SQLite.
// The schedules table carries a start_day column (UTC calendar day of
// started_at) under a UNIQUE(study_id, start_day) index, enforcing the
// one-schedule-per-day rule against concurrent writers.
type ScheduleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewScheduleRepository creates a new SQLite schedule repository.
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const scheduleColumns = "id, study_id, started_at, finished_at, created_at, updated_at"

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// CreateSchedule inserts a schedule and its problem assignments in one
// transaction.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule, problems []persistence.ToSolveProblem) error {
	if schedule.ID == "" || schedule.StudyID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO schedules (id, study_id, started_at, finished_at, start_day, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			schedule.ID,
			schedule.StudyID,
			formatTime(schedule.StartedAt),
			formatTime(schedule.FinishedAt),
			dayKey(schedule.StartedAt),
			formatTime(schedule.CreatedAt),
			formatTime(schedule.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		for _, problem := range problems {
			_, err := r.helper.ExecTx(tx, `
				INSERT INTO to_solve_problems (schedule_id, problem_number, is_solved)
				VALUES (?, ?, ?)
			`, schedule.ID, problem.ProblemNumber, problem.IsSolved)
			if err != nil {
				return r.mapper.MapError(err)
			}
		}

		return nil
	})
}

// GetSchedule retrieves a schedule by ID.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	if id == "" {
		return persistence.Schedule{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	return r.scanSchedule(row)
}

// ExistsOnDay reports whether the study already has a schedule on the UTC
// calendar day of day, optionally ignoring excludeID.
func (r *ScheduleRepository) ExistsOnDay(ctx context.Context, studyID string, day time.Time, excludeID string) (bool, error) {
	query := `SELECT COUNT(*) FROM schedules WHERE study_id = ? AND start_day = ?`
	args := []any{studyID, dayKey(day)}
	if excludeID != "" {
		query += ` AND id != ?`
		args = append(args, excludeID)
	}

	var count int
	if err := r.helper.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return false, r.mapper.MapError(err)
	}
	return count > 0, nil
}

// UpdateSchedule rewrites the schedule row and reconciles its problem set.
// Rows absent from both added and removed keep their solved state.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule persistence.Schedule, added []persistence.ToSolveProblem, removed []int64) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `
			UPDATE schedules
			SET started_at = ?, finished_at = ?, start_day = ?, updated_at = ?
			WHERE id = ?
		`,
			formatTime(schedule.StartedAt),
			formatTime(schedule.FinishedAt),
			dayKey(schedule.StartedAt),
			formatTime(schedule.UpdatedAt),
			schedule.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}

		for _, number := range removed {
			if _, err := r.helper.ExecTx(tx, `
				DELETE FROM to_solve_problems
				WHERE schedule_id = ? AND problem_number = ?
			`, schedule.ID, number); err != nil {
				return r.mapper.MapError(err)
			}
		}

		for _, problem := range added {
			if _, err := r.helper.ExecTx(tx, `
				INSERT INTO to_solve_problems (schedule_id, problem_number, is_solved)
				VALUES (?, ?, ?)
			`, schedule.ID, problem.ProblemNumber, problem.IsSolved); err != nil {
				return r.mapper.MapError(err)
			}
		}

		return nil
	})
}

// ListProblems returns a schedule's problem assignments ordered by number.
func (r *ScheduleRepository) ListProblems(ctx context.Context, scheduleID string) ([]persistence.ToSolveProblem, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT schedule_id, problem_number, is_solved
		FROM to_solve_problems
		WHERE schedule_id = ?
		ORDER BY problem_number ASC
	`, scheduleID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var problems []persistence.ToSolveProblem
	for rows.Next() {
		var problem persistence.ToSolveProblem
		if err := rows.Scan(&problem.ScheduleID, &problem.ProblemNumber, &problem.IsSolved); err != nil {
			return nil, r.mapper.MapError(err)
		}
		problems = append(problems, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return problems, nil
}

// SetProblemSolved updates the solved flag of one assignment.
func (r *ScheduleRepository) SetProblemSolved(ctx context.Context, scheduleID string, problemNumber int64, solved bool) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE to_solve_problems
		SET is_solved = ?
		WHERE schedule_id = ? AND problem_number = ?
	`, solved, scheduleID, problemNumber)
	if err != nil {
		return r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// ListSchedulesInRange returns a study's schedules with started_at in the
// half-open interval [from, to), in chronological order.
func (r *ScheduleRepository) ListSchedulesInRange(ctx context.Context, studyID string, from, to time.Time) ([]persistence.Schedule, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE study_id = ? AND started_at >= ? AND started_at < ?
		ORDER BY started_at ASC
	`, studyID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var schedules []persistence.Schedule
	for rows.Next() {
		schedule, err := r.scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return schedules, nil
}

// DeleteSchedule removes a schedule and its problem assignments.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(tx, `DELETE FROM to_solve_problems WHERE schedule_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}

		result, err := r.helper.ExecTx(tx, `DELETE FROM schedules WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func (r *ScheduleRepository) scanSchedule(row rowScanner) (persistence.Schedule, error) {
	var schedule persistence.Schedule
	var startedAtStr, finishedAtStr, createdAtStr, updatedAtStr string

	err := row.Scan(
		&schedule.ID,
		&schedule.StudyID,
		&startedAtStr,
		&finishedAtStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Schedule{}, persistence.ErrNotFound
		}
		return persistence.Schedule{}, r.mapper.MapError(err)
	}

	if schedule.StartedAt, err = parseTime("started_at", startedAtStr); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.FinishedAt, err = parseTime("finished_at", finishedAtStr); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.Schedule{}, err
	}

	return schedule, nil
}

package sqlite

import (
	"context"
	"strings"

	"github.com/example/study-scheduler/internal/persistence"
)

// SubmissionRepository implements persistence.SubmissionRepository using SQLite.
type SubmissionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSubmissionRepository creates a new SQLite submission repository.
func NewSubmissionRepository(pool *ConnectionPool) *SubmissionRepository {
	return &SubmissionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateSubmission inserts one judge outcome.
func (r *SubmissionRepository) CreateSubmission(ctx context.Context, submission persistence.Submission) error {
	if submission.ID == "" || submission.UserID == "" || submission.ProblemNumber <= 0 {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO submissions (id, user_id, problem_number, passed, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		submission.ID,
		submission.UserID,
		submission.ProblemNumber,
		submission.Passed,
		formatTime(submission.SubmittedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// PassedProblemUsers returns, per requested problem number, the IDs among
// userIDs holding at least one passing submission for it.
func (r *SubmissionRepository) PassedProblemUsers(ctx context.Context, problemNumbers []int64, userIDs []string) (map[int64][]string, error) {
	if len(problemNumbers) == 0 || len(userIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(problemNumbers)+len(userIDs))
	for _, number := range problemNumbers {
		args = append(args, number)
	}
	for _, id := range userIDs {
		args = append(args, id)
	}

	query := `
		SELECT DISTINCT problem_number, user_id
		FROM submissions
		WHERE passed = 1
		  AND problem_number IN (` + placeholders(len(problemNumbers)) + `)
		  AND user_id IN (` + placeholders(len(userIDs)) + `)
		ORDER BY problem_number ASC, user_id ASC
	`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	result := make(map[int64][]string)
	for rows.Next() {
		var number int64
		var userID string
		if err := rows.Scan(&number, &userID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		result[number] = append(result[number], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

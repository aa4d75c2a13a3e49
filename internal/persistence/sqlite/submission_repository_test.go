package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/study-scheduler/internal/persistence"
)

func TestSubmissionRepository_PassedProblemUsers(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewSubmissionRepository(pool)
	seedUser(t, pool, "user-1", "alice")
	seedUser(t, pool, "user-2", "bob")
	seedUser(t, pool, "user-3", "carol")

	submissions := []persistence.Submission{
		{ID: "sub-1", UserID: "user-1", ProblemNumber: 1000, Passed: true, SubmittedAt: testReference},
		{ID: "sub-2", UserID: "user-1", ProblemNumber: 1000, Passed: true, SubmittedAt: testReference.Add(time.Minute)},
		{ID: "sub-3", UserID: "user-2", ProblemNumber: 1000, Passed: false, SubmittedAt: testReference},
		{ID: "sub-4", UserID: "user-2", ProblemNumber: 1001, Passed: true, SubmittedAt: testReference},
		{ID: "sub-5", UserID: "user-3", ProblemNumber: 1000, Passed: true, SubmittedAt: testReference},
	}
	for _, submission := range submissions {
		require.NoError(t, repo.CreateSubmission(ctx, submission))
	}

	// user-3 is outside the requested member set and must be excluded.
	passed, err := repo.PassedProblemUsers(ctx, []int64{1000, 1001, 1002}, []string{"user-1", "user-2"})
	require.NoError(t, err)
	require.Len(t, passed, 2)
	require.Equal(t, []string{"user-1"}, passed[1000])
	require.Equal(t, []string{"user-2"}, passed[1001])
	require.NotContains(t, passed, int64(1002))

	empty, err := repo.PassedProblemUsers(ctx, nil, []string{"user-1"})
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestSubmissionRepository_CreateValidation(t *testing.T) {
	pool := openTestPool(t)
	repo := NewSubmissionRepository(pool)

	err := repo.CreateSubmission(context.Background(), persistence.Submission{ID: "", UserID: "user-1", ProblemNumber: 1000})
	require.ErrorIs(t, err, persistence.ErrConstraintViolation)
}

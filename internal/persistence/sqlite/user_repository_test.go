package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/study-scheduler/internal/persistence"
)

func TestUserRepository_CreateAndLookup(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	user := persistence.User{
		ID:           "user-1",
		Username:     "alice",
		DisplayName:  "Alice",
		PasswordHash: "hash",
		CreatedAt:    testReference,
		UpdatedAt:    testReference,
	}
	require.NoError(t, repo.CreateUser(ctx, user))

	byID, err := repo.GetUser(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)
	require.True(t, byID.CreatedAt.Equal(testReference))

	byName, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "user-1", byName.ID)

	duplicate := user
	duplicate.ID = "user-2"
	require.ErrorIs(t, repo.CreateUser(ctx, duplicate), persistence.ErrDuplicate)

	_, err = repo.GetUserByUsername(ctx, "ghost")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestUserRepository_ListUsersByIDs(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)
	seedUser(t, pool, "user-1", "alice")
	seedUser(t, pool, "user-2", "bob")

	users, err := repo.ListUsersByIDs(ctx, []string{"user-2", "user-1", "ghost"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "alice", users[0].Username)
	require.Equal(t, "bob", users[1].Username)

	users, err = repo.ListUsersByIDs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestUserRepository_DeleteUser(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)
	seedUser(t, pool, "user-1", "alice")
	seedUser(t, pool, "user-2", "bob")
	seedStudy(t, pool, "study-1", "user-1")

	memberships := NewMembershipRepository(pool)
	require.NoError(t, memberships.CreateMembership(ctx, persistence.Membership{UserID: "user-2", StudyID: "study-1", PinnedAt: testReference}))

	// Plain members can be removed along with their dependent rows.
	require.NoError(t, repo.DeleteUser(ctx, "user-2"))
	_, err := repo.GetUser(ctx, "user-2")
	require.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = memberships.GetMembership(ctx, "user-2", "study-1")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	// A room maker must hand the study over first.
	require.ErrorIs(t, repo.DeleteUser(ctx, "user-1"), persistence.ErrForeignKeyViolation)
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/study-scheduler/internal/persistence"
)

func TestMembershipRepository_CreateAndGet(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	seedUser(t, pool, "user-1", "alice")
	seedUser(t, pool, "user-2", "bob")
	seedStudy(t, pool, "study-1", "user-1")
	repo := NewMembershipRepository(pool)

	membership := persistence.Membership{UserID: "user-2", StudyID: "study-1", PinnedAt: testReference}
	require.NoError(t, repo.CreateMembership(ctx, membership))

	got, err := repo.GetMembership(ctx, "user-2", "study-1")
	require.NoError(t, err)
	require.False(t, got.IsRoomMaker)
	require.True(t, got.PinnedAt.Equal(testReference))

	require.ErrorIs(t, repo.CreateMembership(ctx, membership), persistence.ErrDuplicate)

	_, err = repo.GetMembership(ctx, "user-2", "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestMembershipRepository_ListUserMemberships(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	seedUser(t, pool, "user-1", "alice")
	seedStudy(t, pool, "study-a", "user-1")
	seedStudy(t, pool, "study-b", "user-1")
	seedStudy(t, pool, "study-c", "user-1")
	repo := NewMembershipRepository(pool)

	// Re-pin to give a deterministic recency order: c, a, b.
	require.NoError(t, repo.UpdatePinnedAt(ctx, "user-1", "study-b", testReference.Add(1*time.Minute)))
	require.NoError(t, repo.UpdatePinnedAt(ctx, "user-1", "study-a", testReference.Add(2*time.Minute)))
	require.NoError(t, repo.UpdatePinnedAt(ctx, "user-1", "study-c", testReference.Add(3*time.Minute)))

	all, err := repo.ListUserMemberships(ctx, "user-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "study-c", all[0].StudyID)
	require.Equal(t, "study-a", all[1].StudyID)
	require.Equal(t, "study-b", all[2].StudyID)

	page, err := repo.ListUserMemberships(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "study-a", page[0].StudyID)
}

func TestMembershipRepository_TransferRoomMaker(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	seedUser(t, pool, "user-1", "alice")
	seedUser(t, pool, "user-2", "bob")
	seedStudy(t, pool, "study-1", "user-1")
	repo := NewMembershipRepository(pool)
	require.NoError(t, repo.CreateMembership(ctx, persistence.Membership{UserID: "user-2", StudyID: "study-1", PinnedAt: testReference}))

	require.NoError(t, repo.TransferRoomMaker(ctx, "study-1", "user-1", "user-2"))

	from, err := repo.GetMembership(ctx, "user-1", "study-1")
	require.NoError(t, err)
	require.False(t, from.IsRoomMaker)

	to, err := repo.GetMembership(ctx, "user-2", "study-1")
	require.NoError(t, err)
	require.True(t, to.IsRoomMaker)

	// user-1 no longer holds the role, so a repeat transfer must change nothing.
	err = repo.TransferRoomMaker(ctx, "study-1", "user-1", "user-2")
	require.ErrorIs(t, err, persistence.ErrNotFound)
	to, err = repo.GetMembership(ctx, "user-2", "study-1")
	require.NoError(t, err)
	require.True(t, to.IsRoomMaker)
}

func TestMembershipRepository_TransferRoomMakerRollsBack(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	seedUser(t, pool, "user-1", "alice")
	seedStudy(t, pool, "study-1", "user-1")
	repo := NewMembershipRepository(pool)

	// Target has no membership: the transfer must fail and the current
	// room maker must keep the role.
	err := repo.TransferRoomMaker(ctx, "study-1", "user-1", "stranger")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	current, err := repo.GetMembership(ctx, "user-1", "study-1")
	require.NoError(t, err)
	require.True(t, current.IsRoomMaker)
}

func TestMembershipRepository_Delete(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	seedUser(t, pool, "user-1", "alice")
	seedUser(t, pool, "user-2", "bob")
	seedStudy(t, pool, "study-1", "user-1")
	repo := NewMembershipRepository(pool)
	require.NoError(t, repo.CreateMembership(ctx, persistence.Membership{UserID: "user-2", StudyID: "study-1", PinnedAt: testReference}))

	require.NoError(t, repo.DeleteMembership(ctx, "user-2", "study-1"))
	_, err := repo.GetMembership(ctx, "user-2", "study-1")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	require.ErrorIs(t, repo.DeleteMembership(ctx, "user-2", "study-1"), persistence.ErrNotFound)
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/study-scheduler/internal/persistence"
)

func TestSessionRepository_Lifecycle(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewSessionRepository(pool)
	seedUser(t, pool, "user-1", "alice")

	session := persistence.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Token:     "tok-1",
		ExpiresAt: testReference.Add(time.Hour),
		CreatedAt: testReference,
		UpdatedAt: testReference,
	}
	_, err := repo.CreateSession(ctx, session)
	require.NoError(t, err)

	got, err := repo.GetSession(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
	require.Nil(t, got.RevokedAt)

	revoked, err := repo.RevokeSession(ctx, "tok-1", testReference.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)
	require.True(t, revoked.RevokedAt.Equal(testReference.Add(time.Minute)))

	_, err = repo.RevokeSession(ctx, "missing", testReference)
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestSessionRepository_DeleteExpiredSessions(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewSessionRepository(pool)
	seedUser(t, pool, "user-1", "alice")

	fresh := persistence.Session{ID: "sess-1", UserID: "user-1", Token: "tok-fresh", ExpiresAt: testReference.Add(time.Hour), CreatedAt: testReference, UpdatedAt: testReference}
	stale := persistence.Session{ID: "sess-2", UserID: "user-1", Token: "tok-stale", ExpiresAt: testReference.Add(-time.Hour), CreatedAt: testReference, UpdatedAt: testReference}
	_, err := repo.CreateSession(ctx, fresh)
	require.NoError(t, err)
	_, err = repo.CreateSession(ctx, stale)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteExpiredSessions(ctx, testReference))

	_, err = repo.GetSession(ctx, "tok-stale")
	require.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = repo.GetSession(ctx, "tok-fresh")
	require.NoError(t, err)
}

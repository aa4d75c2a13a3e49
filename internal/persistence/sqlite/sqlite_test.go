package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/study-scheduler/internal/persistence"
)

var testReference = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

func openTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "study.db")
	pool, err := NewConnectionPool(DefaultConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, Migrate(context.Background(), pool))
	return pool
}

func seedUser(t *testing.T, pool *ConnectionPool, id, username string) persistence.User {
	t.Helper()

	user := persistence.User{
		ID:           id,
		Username:     username,
		DisplayName:  username,
		PasswordHash: "hash",
		CreatedAt:    testReference,
		UpdatedAt:    testReference,
	}
	require.NoError(t, NewUserRepository(pool).CreateUser(context.Background(), user))
	return user
}

func seedStudy(t *testing.T, pool *ConnectionPool, id, creatorID string) persistence.Study {
	t.Helper()

	study := persistence.Study{
		ID:        id,
		Title:     "Study " + id,
		CreatedAt: testReference,
		UpdatedAt: testReference,
	}
	creator := persistence.Membership{
		UserID:      creatorID,
		StudyID:     id,
		IsRoomMaker: true,
		PinnedAt:    testReference,
	}
	require.NoError(t, NewStudyRepository(pool).CreateStudy(context.Background(), study, creator))
	return study
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := openTestPool(t)
	require.NoError(t, Migrate(context.Background(), pool))

	var version int
	err := pool.DB().QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, len(migrations), version)
}

func TestErrorMapper(t *testing.T) {
	mapper := NewErrorMapper()

	require.NoError(t, mapper.MapError(nil))

	err := mapper.MapError(errors.New("UNIQUE constraint failed: users.username"))
	require.ErrorIs(t, err, persistence.ErrDuplicate)

	err = mapper.MapError(errors.New("FOREIGN KEY constraint failed"))
	require.ErrorIs(t, err, persistence.ErrForeignKeyViolation)

	err = mapper.MapError(errors.New("CHECK constraint failed: schedules"))
	require.ErrorIs(t, err, persistence.ErrConstraintViolation)

	plain := errors.New("disk I/O error")
	require.Equal(t, plain, mapper.MapError(plain))
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	pool := openTestPool(t)
	seedUser(t, pool, "user-1", "alice")

	boom := errors.New("boom")
	err := pool.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		if _, execErr := tx.Exec(`DELETE FROM users WHERE id = ?`, "user-1"); execErr != nil {
			return execErr
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, pool.DB().QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	require.Equal(t, 1, count)
}

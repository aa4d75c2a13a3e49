package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/study-scheduler/internal/persistence"
	"github.com/example/study-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Users       persistence.UserRepository
	Studies     persistence.StudyRepository
	Memberships persistence.MembershipRepository
	Schedules   persistence.ScheduleRepository
	Submissions persistence.SubmissionRepository
	Chats       persistence.ChatRepository
	Sessions    persistence.SessionRepository

	Pool *sqlite.ConnectionPool

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness over a temporary database file
// that is migrated automatically. Callers may optionally invoke Close, but the
// helper also registers a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "study.db")

	pool, err := sqlite.NewConnectionPool(sqlite.DefaultConfig("file:" + path + "?_foreign_keys=on"))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to apply migrations: %v", err)
	}

	harness := &SQLiteHarness{
		Users:       sqlite.NewUserRepository(pool),
		Studies:     sqlite.NewStudyRepository(pool),
		Memberships: sqlite.NewMembershipRepository(pool),
		Schedules:   sqlite.NewScheduleRepository(pool),
		Submissions: sqlite.NewSubmissionRepository(pool),
		Chats:       sqlite.NewChatRepository(pool),
		Sessions:    sqlite.NewSessionRepository(pool),
		Pool:        pool,
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order. Each entry runs at most once; the applied
// version is tracked in schema_migrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		token TEXT NOT NULL UNIQUE,
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		revoked_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS studies (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		info TEXT NOT NULL DEFAULT '',
		invite_code TEXT,
		invite_code_expiry TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		user_id TEXT NOT NULL REFERENCES users(id),
		study_id TEXT NOT NULL REFERENCES studies(id),
		is_room_maker INTEGER NOT NULL DEFAULT 0,
		pinned_at TEXT NOT NULL,
		PRIMARY KEY (user_id, study_id)
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		study_id TEXT NOT NULL REFERENCES studies(id),
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		start_day TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (study_id, start_day)
	)`,
	`CREATE TABLE IF NOT EXISTS to_solve_problems (
		schedule_id TEXT NOT NULL REFERENCES schedules(id),
		problem_number INTEGER NOT NULL,
		is_solved INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (schedule_id, problem_number)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		study_id TEXT NOT NULL REFERENCES studies(id),
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		sent_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_study_id ON chat_messages(study_id, id)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		problem_number INTEGER NOT NULL,
		passed INTEGER NOT NULL DEFAULT 0,
		submitted_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_problem ON submissions(problem_number, user_id)`,
}

// Migrate brings the schema up to date. It is safe to call on every startup.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	if _, err := pool.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	err := pool.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		statement := migrations[i]
		err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.Exec(statement); err != nil {
				return fmt.Errorf("migration %d failed: %w", version, err)
			}
			if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

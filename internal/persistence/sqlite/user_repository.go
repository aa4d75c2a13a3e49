package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/study-scheduler/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const userColumns = "id, username, display_name, password_hash, created_at, updated_at"

// CreateUser inserts a new user into the database.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.Username == "" {
		return persistence.ErrConstraintViolation
	}
	if user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO users (id, username, display_name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		user.ID,
		user.Username,
		user.DisplayName,
		user.PasswordHash,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanUser(row)
}

// GetUserByUsername retrieves a user by their unique username.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	if username == "" {
		return persistence.User{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return r.scanUser(row)
}

// ListUsersByIDs returns the users matching the given IDs. Missing IDs are
// silently skipped.
func (r *UserRepository) ListUsersByIDs(ctx context.Context, ids []string) ([]persistence.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders + `) ORDER BY username ASC`
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := r.scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return users, nil
}

// DeleteUser removes a user and their dependent rows: sessions, submissions,
// and chat authorship stays (messages keep the sender ID for history).
// Deleting a user who still holds a room-maker membership fails.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var roomMakerCount int
		err := r.helper.QueryRowTx(tx, `SELECT COUNT(*) FROM memberships WHERE user_id = ? AND is_room_maker = 1`, id).Scan(&roomMakerCount)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if roomMakerCount > 0 {
			return persistence.ErrForeignKeyViolation
		}

		for _, stmt := range []string{
			`DELETE FROM memberships WHERE user_id = ?`,
			`DELETE FROM sessions WHERE user_id = ?`,
			`DELETE FROM submissions WHERE user_id = ?`,
		} {
			if _, err := r.helper.ExecTx(tx, stmt, id); err != nil {
				return r.mapper.MapError(err)
			}
		}

		result, err := r.helper.ExecTx(tx, `DELETE FROM users WHERE id = ?`, id)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row rowScanner) (persistence.User, error) {
	var user persistence.User
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, r.mapper.MapError(err)
	}

	if user.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.User{}, err
	}

	return user, nil
}

func (r *UserRepository) scanUserRows(rows *sql.Rows) (persistence.User, error) {
	return r.scanUser(rows)
}

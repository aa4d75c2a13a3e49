package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/study-scheduler/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const sessionColumns = "id, user_id, token, expires_at, created_at, updated_at, revoked_at"

// CreateSession inserts a new session row.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.UserID == "" || session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token, expires_at, created_at, updated_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.UserID,
		session.Token,
		formatTime(session.ExpiresAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
		formatNullableTime(session.RevokedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	return session, nil
}

// GetSession retrieves a session by token.
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token)
	return r.scanSession(row)
}

// RevokeSession stamps a session as revoked and returns the updated row.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = ?, updated_at = ?
		WHERE token = ?
	`, formatTime(revokedAt), formatTime(revokedAt), token)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	if rowsAffected == 0 {
		return persistence.Session{}, persistence.ErrNotFound
	}

	return r.GetSession(ctx, token)
}

// DeleteExpiredSessions prunes sessions whose expiry passed before reference.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM sessions WHERE expires_at < ?`, formatTime(reference))
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

func (r *SessionRepository) scanSession(row rowScanner) (persistence.Session, error) {
	var session persistence.Session
	var expiresAtStr, createdAtStr, updatedAtStr string
	var revokedAtStr *string

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&expiresAtStr,
		&createdAtStr,
		&updatedAtStr,
		&revokedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Session{}, persistence.ErrNotFound
		}
		return persistence.Session{}, r.mapper.MapError(err)
	}

	if session.ExpiresAt, err = parseTime("expires_at", expiresAtStr); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.Session{}, err
	}
	if session.RevokedAt, err = parseNullableTime("revoked_at", revokedAtStr); err != nil {
		return persistence.Session{}, err
	}

	return session, nil
}

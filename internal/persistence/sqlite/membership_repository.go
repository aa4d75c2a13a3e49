package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/study-scheduler/internal/persistence"
)

// MembershipRepository implements persistence.MembershipRepository using SQLite.
type MembershipRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewMembershipRepository creates a new SQLite membership repository.
func NewMembershipRepository(pool *ConnectionPool) *MembershipRepository {
	return &MembershipRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const membershipColumns = "user_id, study_id, is_room_maker, pinned_at"

// CreateMembership inserts a membership row.
func (r *MembershipRepository) CreateMembership(ctx context.Context, membership persistence.Membership) error {
	if membership.UserID == "" || membership.StudyID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO memberships (user_id, study_id, is_room_maker, pinned_at)
		VALUES (?, ?, ?, ?)
	`,
		membership.UserID,
		membership.StudyID,
		membership.IsRoomMaker,
		formatTime(membership.PinnedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// GetMembership retrieves a single user-study membership.
func (r *MembershipRepository) GetMembership(ctx context.Context, userID, studyID string) (persistence.Membership, error) {
	if userID == "" || studyID == "" {
		return persistence.Membership{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE user_id = ? AND study_id = ?
	`, userID, studyID)
	return r.scanMembership(row)
}

// ListStudyMembers returns all memberships of a study.
func (r *MembershipRepository) ListStudyMembers(ctx context.Context, studyID string) ([]persistence.Membership, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE study_id = ?
		ORDER BY is_room_maker DESC, user_id ASC
	`, studyID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	return r.collectMemberships(rows)
}

// ListUserMemberships returns a user's memberships, most recently pinned
// first, paged by offset and limit. A limit of zero means no limit.
func (r *MembershipRepository) ListUserMemberships(ctx context.Context, userID string, offset, limit int) ([]persistence.Membership, error) {
	if offset < 0 {
		offset = 0
	}
	// SQLite requires a LIMIT clause for OFFSET to apply.
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.helper.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE user_id = ?
		ORDER BY pinned_at DESC, study_id ASC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	return r.collectMemberships(rows)
}

// UpdatePinnedAt bumps the pin timestamp of one membership.
func (r *MembershipRepository) UpdatePinnedAt(ctx context.Context, userID, studyID string, pinnedAt time.Time) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE memberships
		SET pinned_at = ?
		WHERE user_id = ? AND study_id = ?
	`, formatTime(pinnedAt), userID, studyID)
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
}

// DeleteMembership removes a membership row.
func (r *MembershipRepository) DeleteMembership(ctx context.Context, userID, studyID string) error {
	result, err := r.helper.Exec(ctx, `
		DELETE FROM memberships
		WHERE user_id = ? AND study_id = ?
	`, userID, studyID)
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
}

// TransferRoomMaker clears the room-maker flag on fromUserID and sets it on
// toUserID inside a single transaction. Either both rows change or neither
// does, so the study always keeps exactly one room maker.
func (r *MembershipRepository) TransferRoomMaker(ctx context.Context, studyID, fromUserID, toUserID string) error {
	if studyID == "" || fromUserID == "" || toUserID == "" || fromUserID == toUserID {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `
			UPDATE memberships
			SET is_room_maker = 0
			WHERE study_id = ? AND user_id = ? AND is_room_maker = 1
		`, studyID, fromUserID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		cleared, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if cleared == 0 {
			return persistence.ErrNotFound
		}

		result, err = r.helper.ExecTx(tx, `
			UPDATE memberships
			SET is_room_maker = 1
			WHERE study_id = ? AND user_id = ?
		`, studyID, toUserID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		granted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if granted == 0 {
			return persistence.ErrNotFound
		}

		return nil
	})
}

func (r *MembershipRepository) scanMembership(row rowScanner) (persistence.Membership, error) {
	var membership persistence.Membership
	var pinnedAtStr string

	err := row.Scan(
		&membership.UserID,
		&membership.StudyID,
		&membership.IsRoomMaker,
		&pinnedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Membership{}, persistence.ErrNotFound
		}
		return persistence.Membership{}, r.mapper.MapError(err)
	}

	if membership.PinnedAt, err = parseTime("pinned_at", pinnedAtStr); err != nil {
		return persistence.Membership{}, err
	}

	return membership, nil
}

func (r *MembershipRepository) collectMemberships(rows *sql.Rows) ([]persistence.Membership, error) {
	var memberships []persistence.Membership
	for rows.Next() {
		membership, err := r.scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return memberships, nil
}

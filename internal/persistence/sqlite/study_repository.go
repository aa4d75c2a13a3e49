package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/study-scheduler/internal/persistence"
)

// StudyRepository implements persistence.StudyRepository using SQLite.
type StudyRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewStudyRepository creates a new SQLite study repository.
func NewStudyRepository(pool *ConnectionPool) *StudyRepository {
	return &StudyRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const studyColumns = "id, title, info, invite_code, invite_code_expiry, created_at, updated_at"

// CreateStudy inserts a study and the creator's room-maker membership in one
// transaction. A study never exists without a room maker.
func (r *StudyRepository) CreateStudy(ctx context.Context, study persistence.Study, creator persistence.Membership) error {
	if study.ID == "" || study.Title == "" {
		return persistence.ErrConstraintViolation
	}
	if creator.UserID == "" || creator.StudyID != study.ID || !creator.IsRoomMaker {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO studies (id, title, info, invite_code, invite_code_expiry, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			study.ID,
			study.Title,
			study.Info,
			study.InviteCode,
			formatNullableTime(study.InviteCodeExpiry),
			formatTime(study.CreatedAt),
			formatTime(study.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		_, err = r.helper.ExecTx(tx, `
			INSERT INTO memberships (user_id, study_id, is_room_maker, pinned_at)
			VALUES (?, ?, 1, ?)
		`,
			creator.UserID,
			creator.StudyID,
			formatTime(creator.PinnedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		return nil
	})
}

// GetStudy retrieves a study by ID.
func (r *StudyRepository) GetStudy(ctx context.Context, id string) (persistence.Study, error) {
	if id == "" {
		return persistence.Study{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `SELECT `+studyColumns+` FROM studies WHERE id = ?`, id)
	return r.scanStudy(row)
}

// UpdateStudy rewrites a study's mutable attributes.
func (r *StudyRepository) UpdateStudy(ctx context.Context, study persistence.Study) error {
	if study.ID == "" || study.Title == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE studies
		SET title = ?, info = ?, updated_at = ?
		WHERE id = ?
	`,
		study.Title,
		study.Info,
		formatTime(study.UpdatedAt),
		study.ID,
	)
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

// SetInviteCode stores a fresh invite code and its expiry.
func (r *StudyRepository) SetInviteCode(ctx context.Context, studyID, code string, expiry time.Time) error {
	if studyID == "" || code == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE studies
		SET invite_code = ?, invite_code_expiry = ?
		WHERE id = ?
	`,
		code,
		formatTime(expiry),
		studyID,
	)
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

// DeleteStudy removes a study and everything it owns. Child rows go first so
// foreign keys hold throughout the transaction.
func (r *StudyRepository) DeleteStudy(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM to_solve_problems WHERE schedule_id IN (SELECT id FROM schedules WHERE study_id = ?)`,
			`DELETE FROM schedules WHERE study_id = ?`,
			`DELETE FROM chat_messages WHERE study_id = ?`,
			`DELETE FROM memberships WHERE study_id = ?`,
		} {
			if _, err := r.helper.ExecTx(tx, stmt, id); err != nil {
				return r.mapper.MapError(err)
			}
		}

		result, err := r.helper.ExecTx(tx, `DELETE FROM studies WHERE id = ?`, id)
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

func (r *StudyRepository) scanStudy(row rowScanner) (persistence.Study, error) {
	var study persistence.Study
	var inviteCode sql.NullString
	var inviteExpiryStr *string
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&study.ID,
		&study.Title,
		&study.Info,
		&inviteCode,
		&inviteExpiryStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Study{}, persistence.ErrNotFound
		}
		return persistence.Study{}, r.mapper.MapError(err)
	}

	if inviteCode.Valid {
		code := inviteCode.String
		study.InviteCode = &code
	}
	if study.InviteCodeExpiry, err = parseNullableTime("invite_code_expiry", inviteExpiryStr); err != nil {
		return persistence.Study{}, err
	}
	if study.CreatedAt, err = parseTime("created_at", createdAtStr); err != nil {
		return persistence.Study{}, err
	}
	if study.UpdatedAt, err = parseTime("updated_at", updatedAtStr); err != nil {
		return persistence.Study{}, err
	}

	return study, nil
}

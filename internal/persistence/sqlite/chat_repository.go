package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/example/study-scheduler/internal/persistence"
)

// ChatRepository implements persistence.ChatRepository using SQLite. Message
// IDs come from an AUTOINCREMENT column, so keyset pagination over the ID is
// stable while new messages arrive.
type ChatRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewChatRepository creates a new SQLite chat repository.
func NewChatRepository(pool *ConnectionPool) *ChatRepository {
	return &ChatRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// AppendMessage inserts one message and returns it with the assigned ID.
func (r *ChatRepository) AppendMessage(ctx context.Context, message persistence.ChatMessage) (persistence.ChatMessage, error) {
	if message.StudyID == "" || message.SenderID == "" || message.Content == "" {
		return persistence.ChatMessage{}, persistence.ErrConstraintViolation
	}

	result, err := r.helper.Exec(ctx, `
		INSERT INTO chat_messages (study_id, sender_id, content, sent_at)
		VALUES (?, ?, ?, ?)
	`,
		message.StudyID,
		message.SenderID,
		message.Content,
		formatTime(message.SentAt),
	)
	if err != nil {
		return persistence.ChatMessage{}, r.mapper.MapError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return persistence.ChatMessage{}, fmt.Errorf("failed to get assigned message id: %w", err)
	}
	message.ID = id

	return message, nil
}

// ListBefore returns up to limit messages with ID strictly less than beforeID,
// newest first. A beforeID of zero starts from the latest message. The second
// return reports whether older history remains past the page.
func (r *ChatRepository) ListBefore(ctx context.Context, studyID string, beforeID int64, limit int) ([]persistence.ChatMessage, bool, error) {
	if limit <= 0 {
		return nil, false, nil
	}
	if beforeID <= 0 {
		beforeID = math.MaxInt64
	}

	// Fetch one extra row to learn whether more history exists.
	rows, err := r.helper.Query(ctx, `
		SELECT id, study_id, sender_id, content, sent_at
		FROM chat_messages
		WHERE study_id = ? AND id < ?
		ORDER BY id DESC
		LIMIT ?
	`, studyID, beforeID, limit+1)
	if err != nil {
		return nil, false, r.mapper.MapError(err)
	}
	defer rows.Close()

	var messages []persistence.ChatMessage
	for rows.Next() {
		message, err := r.scanMessage(rows)
		if err != nil {
			return nil, false, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, false, r.mapper.MapError(err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	return messages, hasMore, nil
}

// LatestMessage returns the newest message of a study.
func (r *ChatRepository) LatestMessage(ctx context.Context, studyID string) (persistence.ChatMessage, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT id, study_id, sender_id, content, sent_at
		FROM chat_messages
		WHERE study_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, studyID)
	return r.scanMessage(row)
}

func (r *ChatRepository) scanMessage(row rowScanner) (persistence.ChatMessage, error) {
	var message persistence.ChatMessage
	var sentAtStr string

	err := row.Scan(
		&message.ID,
		&message.StudyID,
		&message.SenderID,
		&message.Content,
		&sentAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ChatMessage{}, persistence.ErrNotFound
		}
		return persistence.ChatMessage{}, r.mapper.MapError(err)
	}

	if message.SentAt, err = parseTime("sent_at", sentAtStr); err != nil {
		return persistence.ChatMessage{}, err
	}

	return message, nil
}

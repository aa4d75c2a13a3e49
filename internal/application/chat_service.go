package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/study-scheduler/internal/persistence"
)

const (
	// DefaultChatPageSize bounds a history fetch when the caller does not say.
	DefaultChatPageSize = 30
	maxChatPageSize     = 100
	maxChatContentRunes = 1000
)

// ChatRepository captures the persistence interactions needed by the service.
type ChatRepository interface {
	AppendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
	ListBefore(ctx context.Context, studyID string, beforeID int64, limit int) ([]ChatMessage, bool, error)
	LatestMessage(ctx context.Context, studyID string) (ChatMessage, error)
}

// ChatService mediates access to each study's append-only chat history.
// History is read newest-first with keyset pagination over message IDs, so a
// page stays stable while new messages arrive.
type ChatService struct {
	chats       ChatRepository
	users       UserDirectory
	memberships MembershipRepository
	guard       *MemberGuard
	now         func() time.Time
	pageSize    int
	logger      *slog.Logger
}

// NewChatService constructs a chat service with the provided dependencies.
func NewChatService(chats ChatRepository, users UserDirectory, memberships MembershipRepository, now func() time.Time, pageSize int) *ChatService {
	return NewChatServiceWithLogger(chats, users, memberships, now, pageSize, nil)
}

// NewChatServiceWithLogger constructs a chat service with a specified logger.
func NewChatServiceWithLogger(chats ChatRepository, users UserDirectory, memberships MembershipRepository, now func() time.Time, pageSize int, logger *slog.Logger) *ChatService {
	if now == nil {
		now = time.Now
	}
	if pageSize <= 0 {
		pageSize = DefaultChatPageSize
	}
	if pageSize > maxChatPageSize {
		pageSize = maxChatPageSize
	}
	return &ChatService{
		chats:       chats,
		users:       users,
		memberships: memberships,
		guard:       NewMemberGuard(memberships),
		now:         now,
		pageSize:    pageSize,
		logger:      defaultLogger(logger),
	}
}

func (s *ChatService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ChatService", operation, attrs...)
}

// PostMessage appends one message to the study's chat. Only members may post.
func (s *ChatService) PostMessage(ctx context.Context, principal Principal, studyID, content string) (message ChatMessage, err error) {
	if s == nil {
		err = fmt.Errorf("ChatService is nil")
		return
	}
	if s.chats == nil {
		err = fmt.Errorf("chat repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "PostMessage",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to post message", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("message_id", message.ID).InfoContext(ctx, "message posted")
	}()

	if _, err = s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		return
	}

	trimmed := strings.TrimSpace(content)
	vErr := &ValidationError{}
	if trimmed == "" {
		vErr.add("content", "content is required")
	} else if len([]rune(trimmed)) > maxChatContentRunes {
		vErr.add("content", "content is too long")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	message = ChatMessage{
		StudyID:  studyID,
		SenderID: principal.UserID,
		Sender:   principal.Username,
		Content:  trimmed,
		SentAt:   s.now(),
	}
	message, err = s.chats.AppendMessage(ctx, message)
	if err != nil {
		err = mapChatRepoError(err)
		message = ChatMessage{}
		return
	}
	message.Sender = principal.Username
	return
}

// FetchBefore returns up to one page of history strictly older than beforeID,
// newest first. A beforeID of zero starts from the latest message. HasMore
// reports whether older history remains past the returned page.
func (s *ChatService) FetchBefore(ctx context.Context, principal Principal, studyID string, beforeID int64, limit int) (page ChatPage, err error) {
	if s == nil {
		err = fmt.Errorf("ChatService is nil")
		return
	}

	logger := s.loggerWith(ctx, "FetchBefore",
		"principal_id", principal.UserID,
		"study_id", studyID,
		"before_id", beforeID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to fetch chat history", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(page.Messages)).InfoContext(ctx, "chat history fetched")
	}()

	if _, err = s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		return
	}

	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	var messages []ChatMessage
	var hasMore bool
	messages, hasMore, err = s.chats.ListBefore(ctx, studyID, beforeID, limit)
	if err != nil {
		err = mapChatRepoError(err)
		return
	}

	if err = s.attachSenders(ctx, messages); err != nil {
		return
	}

	page = ChatPage{Messages: messages, HasMore: hasMore}
	return
}

// FetchLatest returns the single most recent message, or ErrNotFound for a
// study with an empty chat.
func (s *ChatService) FetchLatest(ctx context.Context, principal Principal, studyID string) (message ChatMessage, err error) {
	if s == nil {
		err = fmt.Errorf("ChatService is nil")
		return
	}

	logger := s.loggerWith(ctx, "FetchLatest",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "failed to fetch latest message", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if _, err = s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		return
	}

	message, err = s.chats.LatestMessage(ctx, studyID)
	if err != nil {
		err = mapChatRepoError(err)
		message = ChatMessage{}
		return
	}

	single := []ChatMessage{message}
	if err = s.attachSenders(ctx, single); err != nil {
		message = ChatMessage{}
		return
	}
	message = single[0]
	return
}

// attachSenders resolves sender usernames for display. Messages from deleted
// accounts keep an empty sender.
func (s *ChatService) attachSenders(ctx context.Context, messages []ChatMessage) error {
	if s.users == nil || len(messages) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(messages))
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		if _, ok := seen[message.SenderID]; ok {
			continue
		}
		seen[message.SenderID] = struct{}{}
		ids = append(ids, message.SenderID)
	}

	users, err := s.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return mapUserRepoError(err)
	}
	usernameByID := make(map[string]string, len(users))
	for _, user := range users {
		usernameByID[user.ID] = user.Username
	}

	for i := range messages {
		messages[i].Sender = usernameByID[messages[i].SenderID]
	}
	return nil
}

func mapChatRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/study-scheduler/internal/application"
)

type chatService interface {
	PostMessage(ctx context.Context, principal application.Principal, studyID, content string) (application.ChatMessage, error)
	FetchBefore(ctx context.Context, principal application.Principal, studyID string, beforeID int64, limit int) (application.ChatPage, error)
	FetchLatest(ctx context.Context, principal application.Principal, studyID string) (application.ChatMessage, error)
}

type ChatHandler struct {
	service   chatService
	responder responder
	logger    *slog.Logger
}

func NewChatHandler(service chatService, logger *slog.Logger) *ChatHandler {
	base := defaultLogger(logger)
	return &ChatHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ChatHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ChatHandler", operation, attrs...)
}

func (h *ChatHandler) prepare(w http.ResponseWriter, r *http.Request) (application.Principal, string, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.Principal{}, "", false
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return application.Principal{}, "", false
	}
	studyID, found := StudyIDFromContext(r.Context())
	if !found || strings.TrimSpace(studyID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStudyID)
		return application.Principal{}, "", false
	}
	return principal, studyID, true
}

func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	principal, studyID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var req chatPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Post", "study_id", studyID, "user_id", principal.UserID)

	message, err := h.service.PostMessage(r.Context(), principal, studyID, req.Content)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to post chat message", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("message_id", message.ID).InfoContext(r.Context(), "chat message posted")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toChatMessageDTO(message))
}

// List pages backwards through the study's history. The before parameter is
// the exclusive message id cursor; zero or absent starts from the newest.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, studyID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var beforeID int64
	if raw := query.Get("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("before must be a non-negative integer"))
			return
		}
		beforeID = parsed
	}
	var limit int
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	page, err := h.service.FetchBefore(r.Context(), principal, studyID, beforeID, limit)
	if err != nil {
		h.log(r.Context(), "List", "study_id", studyID).ErrorContext(r.Context(), "failed to list chat messages", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toChatPageDTO(page))
}

func (h *ChatHandler) Latest(w http.ResponseWriter, r *http.Request) {
	principal, studyID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	message, err := h.service.FetchLatest(r.Context(), principal, studyID)
	if err != nil {
		h.log(r.Context(), "Latest", "study_id", studyID).ErrorContext(r.Context(), "failed to load latest chat message", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toChatMessageDTO(message))
}

type chatPostRequest struct {
	Content string `json:"content"`
}

type chatMessageDTO struct {
	ID       int64  `json:"id"`
	StudyID  string `json:"study_id"`
	SenderID string `json:"sender_id"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	SentAt   string `json:"sent_at"`
}

type chatPageDTO struct {
	Messages []chatMessageDTO `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

func toChatMessageDTO(message application.ChatMessage) chatMessageDTO {
	return chatMessageDTO{
		ID:       message.ID,
		StudyID:  message.StudyID,
		SenderID: message.SenderID,
		Sender:   message.Sender,
		Content:  message.Content,
		SentAt:   message.SentAt.UTC().Format(time.RFC3339Nano),
	}
}

func toChatPageDTO(page application.ChatPage) chatPageDTO {
	messages := make([]chatMessageDTO, 0, len(page.Messages))
	for _, message := range page.Messages {
		messages = append(messages, toChatMessageDTO(message))
	}
	return chatPageDTO{Messages: messages, HasMore: page.HasMore}
}

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/study-scheduler/internal/application"
)

type studyService interface {
	CreateStudy(ctx context.Context, params application.CreateStudyParams) (application.Study, error)
	GetStudy(ctx context.Context, principal application.Principal, studyID string) (application.StudyDetail, error)
	ListStudies(ctx context.Context, params application.ListStudiesParams) ([]application.Study, error)
	UpdateStudy(ctx context.Context, params application.UpdateStudyParams) (application.Study, error)
	DeleteStudy(ctx context.Context, principal application.Principal, studyID string) error
	Pin(ctx context.Context, principal application.Principal, studyID string) error
	GetOrCreateInviteCode(ctx context.Context, principal application.Principal, studyID string) (string, error)
	JoinByCode(ctx context.Context, principal application.Principal, studyID, code string) error
	InviteUser(ctx context.Context, principal application.Principal, studyID, targetUsername string) error
	TransferRoomMaker(ctx context.Context, principal application.Principal, studyID, targetUserID string) error
	KickMember(ctx context.Context, principal application.Principal, studyID, targetUserID string) error
	Leave(ctx context.Context, principal application.Principal, studyID string) error
}

type StudyHandler struct {
	service   studyService
	responder responder
	logger    *slog.Logger
}

func NewStudyHandler(service studyService, logger *slog.Logger) *StudyHandler {
	base := defaultLogger(logger)
	return &StudyHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *StudyHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "StudyHandler", operation, attrs...)
}

// prepare performs the shared nil-guard and principal extraction for handlers
// that run behind RequireSession.
func (h *StudyHandler) prepare(w http.ResponseWriter, r *http.Request) (application.Principal, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.Principal{}, false
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return application.Principal{}, false
	}
	return principal, true
}

func (h *StudyHandler) studyID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := StudyIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStudyID)
		return "", false
	}
	return id, true
}

func (h *StudyHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var req studyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "user_id", principal.UserID)

	study, err := h.service.CreateStudy(r.Context(), application.CreateStudyParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to create study", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("study_id", study.ID).InfoContext(r.Context(), "study created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toStudyDTO(study))
}

func (h *StudyHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}

	params := buildListStudiesParams(principal, r.URL.Query())
	studies, err := h.service.ListStudies(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "List", "user_id", principal.UserID).ErrorContext(r.Context(), "failed to list studies", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]studyDTO, 0, len(studies))
	for _, study := range studies {
		payload = append(payload, toStudyDTO(study))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, studyListResponse{Studies: payload})
}

func (h *StudyHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.GetStudy(r.Context(), principal, studyID)
	if err != nil {
		h.log(r.Context(), "Get", "study_id", studyID).ErrorContext(r.Context(), "failed to load study", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStudyDetailDTO(detail))
}

func (h *StudyHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	var req studyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "study_id", studyID, "user_id", principal.UserID)

	study, err := h.service.UpdateStudy(r.Context(), application.UpdateStudyParams{
		Principal: principal,
		StudyID:   studyID,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to update study", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "study updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStudyDTO(study))
}

func (h *StudyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Delete", "study_id", studyID, "user_id", principal.UserID)

	if err := h.service.DeleteStudy(r.Context(), principal, studyID); err != nil {
		logger.ErrorContext(r.Context(), "failed to delete study", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "study deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *StudyHandler) Pin(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	if err := h.service.Pin(r.Context(), principal, studyID); err != nil {
		h.log(r.Context(), "Pin", "study_id", studyID).ErrorContext(r.Context(), "failed to pin study", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *StudyHandler) InviteCode(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "InviteCode", "study_id", studyID, "user_id", principal.UserID)

	code, err := h.service.GetOrCreateInviteCode(r.Context(), principal, studyID)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to issue invite code", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "invite code issued")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, inviteCodeResponse{Code: code})
}

func (h *StudyHandler) Join(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Join", "study_id", studyID, "user_id", principal.UserID)

	if err := h.service.JoinByCode(r.Context(), principal, studyID, req.Code); err != nil {
		logger.ErrorContext(r.Context(), "failed to join study", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "user joined study")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *StudyHandler) Invite(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Invite", "study_id", studyID, "target_username", req.Username)

	if err := h.service.InviteUser(r.Context(), principal, studyID, req.Username); err != nil {
		logger.ErrorContext(r.Context(), "failed to invite user", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "user invited")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *StudyHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Transfer", "study_id", studyID, "target_user_id", req.UserID)

	if err := h.service.TransferRoomMaker(r.Context(), principal, studyID, req.UserID); err != nil {
		logger.ErrorContext(r.Context(), "failed to transfer room maker role", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "room maker role transferred")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *StudyHandler) Kick(w http.ResponseWriter, r *http.Request, targetUserID string) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Kick", "study_id", studyID, "target_user_id", targetUserID)

	if err := h.service.KickMember(r.Context(), principal, studyID, targetUserID); err != nil {
		logger.ErrorContext(r.Context(), "failed to kick member", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member kicked")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *StudyHandler) Leave(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Leave", "study_id", studyID, "user_id", principal.UserID)

	if err := h.service.Leave(r.Context(), principal, studyID); err != nil {
		logger.ErrorContext(r.Context(), "failed to leave study", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member left study")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func buildListStudiesParams(principal application.Principal, query url.Values) application.ListStudiesParams {
	params := application.ListStudiesParams{Principal: principal}
	if raw := query.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			params.Page = page
		}
	}
	if raw := query.Get("page_size"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			params.PageSize = size
		}
	}
	return params
}

type studyRequest struct {
	Title string `json:"title"`
	Info  string `json:"info"`
}

func (r studyRequest) toInput() application.StudyInput {
	return application.StudyInput{Title: r.Title, Info: r.Info}
}

type joinRequest struct {
	Code string `json:"code"`
}

type inviteRequest struct {
	Username string `json:"username"`
}

type transferRequest struct {
	UserID string `json:"user_id"`
}

type inviteCodeResponse struct {
	Code string `json:"code"`
}

type studyDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Info      string `json:"info"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type studyListResponse struct {
	Studies []studyDTO `json:"studies"`
}

type studyMemberDTO struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsRoomMaker bool   `json:"is_room_maker"`
}

type studyDetailDTO struct {
	studyDTO
	Members []studyMemberDTO `json:"members"`
}

func toStudyDTO(study application.Study) studyDTO {
	return studyDTO{
		ID:        study.ID,
		Title:     study.Title,
		Info:      study.Info,
		CreatedAt: study.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: study.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toStudyDetailDTO(detail application.StudyDetail) studyDetailDTO {
	members := make([]studyMemberDTO, 0, len(detail.Members))
	for _, member := range detail.Members {
		members = append(members, studyMemberDTO{
			UserID:      member.UserID,
			Username:    member.Username,
			DisplayName: member.DisplayName,
			IsRoomMaker: member.IsRoomMaker,
		})
	}
	return studyDetailDTO{studyDTO: toStudyDTO(detail.Study), Members: members}
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/study-scheduler/internal/application"
)

type scheduleService interface {
	CreateSchedule(ctx context.Context, params application.CreateScheduleParams) (application.Schedule, error)
	GetSchedule(ctx context.Context, principal application.Principal, studyID, scheduleID string) (application.ScheduleDetail, error)
	GetTodaySchedule(ctx context.Context, principal application.Principal, studyID string) (application.ScheduleDetail, error)
	ListSchedules(ctx context.Context, params application.ListSchedulesParams) (application.CalendarPage, error)
	UpdateSchedule(ctx context.Context, params application.UpdateScheduleParams) (application.Schedule, error)
	DeleteSchedule(ctx context.Context, principal application.Principal, studyID, scheduleID string) error
	MarkProblemSolved(ctx context.Context, principal application.Principal, studyID, scheduleID string, problemNumber int64, solved bool) error
	RecordSubmission(ctx context.Context, principal application.Principal, problemNumber int64, passed bool) (application.Submission, error)
}

type ScheduleHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	base := defaultLogger(logger)
	return &ScheduleHandler{service: service, responder: newResponder(base), logger: base, now: time.Now}
}

func (h *ScheduleHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ScheduleHandler", operation, attrs...)
}

func (h *ScheduleHandler) prepare(w http.ResponseWriter, r *http.Request) (application.Principal, bool) {
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

func (h *ScheduleHandler) pathIDs(w http.ResponseWriter, r *http.Request) (studyID, scheduleID string, ok bool) {
	studyID, found := StudyIDFromContext(r.Context())
	if !found || strings.TrimSpace(studyID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStudyID)
		return "", "", false
	}
	scheduleID, found = ScheduleIDFromContext(r.Context())
	if !found || strings.TrimSpace(scheduleID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return "", "", false
	}
	return studyID, scheduleID, true
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, found := StudyIDFromContext(r.Context())
	if !found || strings.TrimSpace(studyID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStudyID)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "Create", "study_id", studyID, "user_id", principal.UserID)

	schedule, err := h.service.CreateSchedule(r.Context(), application.CreateScheduleParams{
		Principal: principal,
		StudyID:   studyID,
		Input:     input,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to create schedule", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("schedule_id", schedule.ID).InfoContext(r.Context(), "schedule created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, scheduleID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	detail, err := h.service.GetSchedule(r.Context(), principal, studyID, scheduleID)
	if err != nil {
		h.log(r.Context(), "Get", "schedule_id", scheduleID).ErrorContext(r.Context(), "failed to load schedule", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDetailDTO(detail))
}

func (h *ScheduleHandler) Today(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, found := StudyIDFromContext(r.Context())
	if !found || strings.TrimSpace(studyID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStudyID)
		return
	}

	detail, err := h.service.GetTodaySchedule(r.Context(), principal, studyID)
	if err != nil {
		h.log(r.Context(), "Today", "study_id", studyID).ErrorContext(r.Context(), "failed to load today's schedule", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDetailDTO(detail))
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, found := StudyIDFromContext(r.Context())
	if !found || strings.TrimSpace(studyID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStudyID)
		return
	}

	params, err := h.buildListParams(principal, studyID, r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	page, err := h.service.ListSchedules(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "List", "study_id", studyID).ErrorContext(r.Context(), "failed to list schedules", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCalendarDTO(page))
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, scheduleID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "Update", "schedule_id", scheduleID, "user_id", principal.UserID)

	schedule, err := h.service.UpdateSchedule(r.Context(), application.UpdateScheduleParams{
		Principal:  principal,
		StudyID:    studyID,
		ScheduleID: scheduleID,
		Input:      input,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to update schedule", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "schedule updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, scheduleID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Delete", "schedule_id", scheduleID, "user_id", principal.UserID)

	if err := h.service.DeleteSchedule(r.Context(), principal, studyID, scheduleID); err != nil {
		logger.ErrorContext(r.Context(), "failed to delete schedule", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "schedule deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ScheduleHandler) MarkProblem(w http.ResponseWriter, r *http.Request, rawProblemNumber string) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}
	studyID, scheduleID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	problemNumber, err := strconv.ParseInt(rawProblemNumber, 10, 64)
	if err != nil || problemNumber <= 0 {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidProblemNum)
		return
	}

	var req markProblemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "MarkProblem",
		"schedule_id", scheduleID,
		"problem_number", problemNumber,
		"solved", req.Solved,
	)

	if err := h.service.MarkProblemSolved(r.Context(), principal, studyID, scheduleID, problemNumber, req.Solved); err != nil {
		logger.ErrorContext(r.Context(), "failed to mark problem", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "problem solved state updated")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ScheduleHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "CreateSubmission",
		"user_id", principal.UserID,
		"problem_number", req.ProblemNumber,
	)

	submission, err := h.service.RecordSubmission(r.Context(), principal, req.ProblemNumber, req.Passed)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to record submission", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "submission recorded")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSubmissionDTO(submission))
}

// buildListParams maps year/month/day query parameters onto a calendar view.
// Year and month default to the current UTC date; day selects the week view.
func (h *ScheduleHandler) buildListParams(principal application.Principal, studyID string, query url.Values) (application.ListSchedulesParams, error) {
	now := h.now().UTC()
	params := application.ListSchedulesParams{
		Principal: principal,
		StudyID:   studyID,
		Year:      now.Year(),
		Month:     now.Month(),
	}

	if raw := query.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return params, fmt.Errorf("year must be an integer")
		}
		params.Year = year
	}
	if raw := query.Get("month"); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil || month < 1 || month > 12 {
			return params, fmt.Errorf("month must be between 1 and 12")
		}
		params.Month = time.Month(month)
	}
	if raw := query.Get("day"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil || day < 1 || day > 31 {
			return params, fmt.Errorf("day must be between 1 and 31")
		}
		params.Day = day
	}
	return params, nil
}

type scheduleRequest struct {
	StartedAt      string  `json:"started_at"`
	FinishedAt     string  `json:"finished_at"`
	ProblemNumbers []int64 `json:"problem_numbers"`
}

func (r scheduleRequest) toInput() (application.ScheduleInput, error) {
	startedAt, err := time.Parse(time.RFC3339, r.StartedAt)
	if err != nil {
		return application.ScheduleInput{}, fmt.Errorf("started_at must be an RFC 3339 timestamp")
	}
	finishedAt, err := time.Parse(time.RFC3339, r.FinishedAt)
	if err != nil {
		return application.ScheduleInput{}, fmt.Errorf("finished_at must be an RFC 3339 timestamp")
	}
	return application.ScheduleInput{
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		ProblemNumbers: r.ProblemNumbers,
	}, nil
}

type markProblemRequest struct {
	Solved bool `json:"solved"`
}

type submissionRequest struct {
	ProblemNumber int64 `json:"problem_number"`
	Passed        bool  `json:"passed"`
}

type scheduleDTO struct {
	ID         string `json:"id"`
	StudyID    string `json:"study_id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type problemStatusDTO struct {
	ProblemNumber int64    `json:"problem_number"`
	IsSolved      bool     `json:"is_solved"`
	SolvedMembers []string `json:"solved_members"`
}

type scheduleDetailDTO struct {
	scheduleDTO
	Problems []problemStatusDTO `json:"problems"`
}

type calendarDTO struct {
	From      string        `json:"from"`
	To        string        `json:"to"`
	Schedules []scheduleDTO `json:"schedules"`
}

type submissionDTO struct {
	ID            string `json:"id"`
	ProblemNumber int64  `json:"problem_number"`
	Passed        bool   `json:"passed"`
	SubmittedAt   string `json:"submitted_at"`
}

func toScheduleDTO(schedule application.Schedule) scheduleDTO {
	return scheduleDTO{
		ID:         schedule.ID,
		StudyID:    schedule.StudyID,
		StartedAt:  schedule.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: schedule.FinishedAt.UTC().Format(time.RFC3339Nano),
		CreatedAt:  schedule.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  schedule.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toScheduleDetailDTO(detail application.ScheduleDetail) scheduleDetailDTO {
	problems := make([]problemStatusDTO, 0, len(detail.Problems))
	for _, problem := range detail.Problems {
		problems = append(problems, problemStatusDTO{
			ProblemNumber: problem.ProblemNumber,
			IsSolved:      problem.IsSolved,
			SolvedMembers: problem.SolvedMembers,
		})
	}
	return scheduleDetailDTO{scheduleDTO: toScheduleDTO(detail.Schedule), Problems: problems}
}

func toCalendarDTO(page application.CalendarPage) calendarDTO {
	schedules := make([]scheduleDTO, 0, len(page.Schedules))
	for _, schedule := range page.Schedules {
		schedules = append(schedules, toScheduleDTO(schedule))
	}
	return calendarDTO{
		From:      page.From.UTC().Format(time.RFC3339Nano),
		To:        page.To.UTC().Format(time.RFC3339Nano),
		Schedules: schedules,
	}
}

func toSubmissionDTO(submission application.Submission) submissionDTO {
	return submissionDTO{
		ID:            submission.ID,
		ProblemNumber: submission.ProblemNumber,
		Passed:        submission.Passed,
		SubmittedAt:   submission.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
}

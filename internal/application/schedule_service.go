package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/study-scheduler/internal/calendar"
	"github.com/example/study-scheduler/internal/persistence"
)

// ScheduleRepository captures the persistence interactions needed by the service.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule, problemNumbers []int64) (Schedule, error)
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	ExistsOnDay(ctx context.Context, studyID string, day time.Time, excludeScheduleID string) (bool, error)
	UpdateSchedule(ctx context.Context, schedule Schedule, addedProblems []int64, removedProblems []int64) (Schedule, error)
	ListProblems(ctx context.Context, scheduleID string) ([]AssignedProblem, error)
	SetProblemSolved(ctx context.Context, scheduleID string, problemNumber int64, solved bool) error
	ListSchedulesInRange(ctx context.Context, studyID string, from, to time.Time) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// SubmissionRepository captures the judge-result persistence interactions.
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, submission Submission) (Submission, error)
	PassedProblemUsers(ctx context.Context, problemNumbers []int64, userIDs []string) (map[int64][]string, error)
}

// ScheduleService orchestrates study session scheduling, problem assignment,
// and judge-result tracking. A study holds at most one schedule per UTC
// calendar day; the service checks before writing and the store's uniqueness
// constraint backstops concurrent creates.
type ScheduleService struct {
	schedules   ScheduleRepository
	submissions SubmissionRepository
	memberships MembershipRepository
	users       UserDirectory
	guard       *MemberGuard
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService constructs a schedule service with the provided dependencies.
func NewScheduleService(schedules ScheduleRepository, submissions SubmissionRepository, memberships MembershipRepository, users UserDirectory, idGenerator func() string, now func() time.Time) *ScheduleService {
	return NewScheduleServiceWithLogger(schedules, submissions, memberships, users, idGenerator, now, nil)
}

// NewScheduleServiceWithLogger constructs a schedule service with a specified logger.
func NewScheduleServiceWithLogger(schedules ScheduleRepository, submissions SubmissionRepository, memberships MembershipRepository, users UserDirectory, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		schedules:   schedules,
		submissions: submissions,
		memberships: memberships,
		users:       users,
		guard:       NewMemberGuard(memberships),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ScheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleService", operation, attrs...)
}

// CreateSchedule validates input and persists a new schedule with its problem
// assignments. Any member may create one; a second schedule on the same UTC
// day of the same study is rejected with ErrScheduleConflict.
func (s *ScheduleService) CreateSchedule(ctx context.Context, params CreateScheduleParams) (schedule Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateSchedule",
		"principal_id", params.Principal.UserID,
		"study_id", params.StudyID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("schedule_id", schedule.ID).InfoContext(ctx, "schedule created")
	}()

	if _, err = s.guard.RequireMember(ctx, params.Principal.UserID, params.StudyID); err != nil {
		return
	}

	vErr := validateScheduleInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	day := calendar.DayStart(params.Input.StartedAt)
	var taken bool
	taken, err = s.schedules.ExistsOnDay(ctx, params.StudyID, day, "")
	if err != nil {
		err = mapScheduleRepoError(err)
		return
	}
	if taken {
		err = ErrScheduleConflict
		return
	}

	now := s.now()
	schedule = Schedule{
		ID:         s.idGenerator(),
		StudyID:    params.StudyID,
		StartedAt:  params.Input.StartedAt.UTC(),
		FinishedAt: params.Input.FinishedAt.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	schedule, err = s.schedules.CreateSchedule(ctx, schedule, normalizeProblemNumbers(params.Input.ProblemNumbers))
	if err != nil {
		err = mapScheduleRepoError(err)
		schedule = Schedule{}
		return
	}
	return
}

// GetSchedule returns one schedule with the per-problem solve status,
// augmented with the members holding a passing submission for each problem.
func (s *ScheduleService) GetSchedule(ctx context.Context, principal Principal, studyID, scheduleID string) (detail ScheduleDetail, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetSchedule",
		"principal_id", principal.UserID,
		"study_id", studyID,
		"schedule_id", scheduleID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to get schedule", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if _, err = s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		return
	}

	var schedule Schedule
	schedule, err = s.scheduleInStudy(ctx, studyID, scheduleID)
	if err != nil {
		return
	}

	detail, err = s.scheduleDetail(ctx, schedule)
	return
}

// GetTodaySchedule returns the schedule occupying the current UTC day, or
// ErrNotFound when the study has none today.
func (s *ScheduleService) GetTodaySchedule(ctx context.Context, principal Principal, studyID string) (detail ScheduleDetail, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetTodaySchedule",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to get today's schedule", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if _, err = s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		return
	}

	from, to := calendar.DayBucket(s.now())
	var schedules []Schedule
	schedules, err = s.schedules.ListSchedulesInRange(ctx, studyID, from, to)
	if err != nil {
		err = mapScheduleRepoError(err)
		return
	}
	if len(schedules) == 0 {
		err = ErrNotFound
		return
	}

	detail, err = s.scheduleDetail(ctx, schedules[0])
	return
}

// ListSchedules returns the study's schedules over a calendar grid: the
// six-week month view when Day is zero, otherwise the Sunday-anchored week
// containing the day.
func (s *ScheduleService) ListSchedules(ctx context.Context, params ListSchedulesParams) (page CalendarPage, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListSchedules",
		"principal_id", params.Principal.UserID,
		"study_id", params.StudyID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list schedules", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(page.Schedules)).InfoContext(ctx, "schedules listed")
	}()

	if _, err = s.guard.RequireMember(ctx, params.Principal.UserID, params.StudyID); err != nil {
		return
	}

	var from, to time.Time
	if params.Day == 0 {
		from, to = calendar.MonthGrid(params.Year, params.Month)
	} else {
		from, to = calendar.WeekRange(time.Date(params.Year, params.Month, params.Day, 0, 0, 0, 0, time.UTC))
	}

	var schedules []Schedule
	schedules, err = s.schedules.ListSchedulesInRange(ctx, params.StudyID, from, to)
	if err != nil {
		err = mapScheduleRepoError(err)
		return
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].StartedAt.Before(schedules[j].StartedAt)
	})

	page = CalendarPage{From: from, To: to, Schedules: schedules}
	return
}

// UpdateSchedule changes a schedule's time window and reconciles its problem
// set. Restricted to the room maker. Problems present both before and after
// keep their solved flag; moving the schedule onto a day already occupied by
// a different schedule is rejected.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, params UpdateScheduleParams) (schedule Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSchedule",
		"principal_id", params.Principal.UserID,
		"study_id", params.StudyID,
		"schedule_id", params.ScheduleID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule updated")
	}()

	if _, err = s.guard.RequireRoomMaker(ctx, params.Principal.UserID, params.StudyID); err != nil {
		return
	}

	vErr := validateScheduleInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var existing Schedule
	existing, err = s.scheduleInStudy(ctx, params.StudyID, params.ScheduleID)
	if err != nil {
		return
	}

	day := calendar.DayStart(params.Input.StartedAt)
	var taken bool
	taken, err = s.schedules.ExistsOnDay(ctx, params.StudyID, day, existing.ID)
	if err != nil {
		err = mapScheduleRepoError(err)
		return
	}
	if taken {
		err = ErrScheduleConflict
		return
	}

	var current []AssignedProblem
	current, err = s.schedules.ListProblems(ctx, existing.ID)
	if err != nil {
		err = mapScheduleRepoError(err)
		return
	}

	added, removed := diffProblemNumbers(current, normalizeProblemNumbers(params.Input.ProblemNumbers))

	updated := existing
	updated.StartedAt = params.Input.StartedAt.UTC()
	updated.FinishedAt = params.Input.FinishedAt.UTC()
	updated.UpdatedAt = s.now()

	schedule, err = s.schedules.UpdateSchedule(ctx, updated, added, removed)
	if err != nil {
		err = mapScheduleRepoError(err)
		schedule = Schedule{}
		return
	}
	return
}

// DeleteSchedule removes a schedule and its problem assignments. Restricted
// to the room maker.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, principal Principal, studyID, scheduleID string) error {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteSchedule",
		"principal_id", principal.UserID,
		"study_id", studyID,
		"schedule_id", scheduleID,
	)

	err := s.deleteSchedule(ctx, principal, studyID, scheduleID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete schedule", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "schedule deleted")
	return nil
}

func (s *ScheduleService) deleteSchedule(ctx context.Context, principal Principal, studyID, scheduleID string) error {
	if _, err := s.guard.RequireRoomMaker(ctx, principal.UserID, studyID); err != nil {
		return err
	}
	schedule, err := s.scheduleInStudy(ctx, studyID, scheduleID)
	if err != nil {
		return err
	}
	if err := s.schedules.DeleteSchedule(ctx, schedule.ID); err != nil {
		return mapScheduleRepoError(err)
	}
	return nil
}

// MarkProblemSolved toggles the collective solved flag of one assigned
// problem. Any member may mark.
func (s *ScheduleService) MarkProblemSolved(ctx context.Context, principal Principal, studyID, scheduleID string, problemNumber int64, solved bool) error {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}

	logger := s.loggerWith(ctx, "MarkProblemSolved",
		"principal_id", principal.UserID,
		"study_id", studyID,
		"schedule_id", scheduleID,
		"problem_number", problemNumber,
	)

	err := s.markProblemSolved(ctx, principal, studyID, scheduleID, problemNumber, solved)
	if err != nil {
		logger.ErrorContext(ctx, "failed to mark problem", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "problem marked", "solved", solved)
	return nil
}

func (s *ScheduleService) markProblemSolved(ctx context.Context, principal Principal, studyID, scheduleID string, problemNumber int64, solved bool) error {
	if _, err := s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		return err
	}
	schedule, err := s.scheduleInStudy(ctx, studyID, scheduleID)
	if err != nil {
		return err
	}
	if err := s.schedules.SetProblemSolved(ctx, schedule.ID, problemNumber, solved); err != nil {
		return mapScheduleRepoError(err)
	}
	return nil
}

// RecordSubmission stores a judge outcome for the acting user.
func (s *ScheduleService) RecordSubmission(ctx context.Context, principal Principal, problemNumber int64, passed bool) (submission Submission, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.submissions == nil {
		err = fmt.Errorf("submission repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "RecordSubmission",
		"principal_id", principal.UserID,
		"problem_number", problemNumber,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record submission", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "submission recorded", "passed", passed)
	}()

	if problemNumber <= 0 {
		vErr := &ValidationError{}
		vErr.add("problemNumber", "problem number must be positive")
		err = vErr
		return
	}

	submission = Submission{
		ID:            s.idGenerator(),
		UserID:        principal.UserID,
		ProblemNumber: problemNumber,
		Passed:        passed,
		SubmittedAt:   s.now(),
	}
	submission, err = s.submissions.CreateSubmission(ctx, submission)
	if err != nil {
		err = mapScheduleRepoError(err)
		submission = Submission{}
		return
	}
	return
}

func (s *ScheduleService) scheduleInStudy(ctx context.Context, studyID, scheduleID string) (Schedule, error) {
	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}
	if schedule.StudyID != studyID {
		return Schedule{}, ErrNotFound
	}
	return schedule, nil
}

func (s *ScheduleService) scheduleDetail(ctx context.Context, schedule Schedule) (ScheduleDetail, error) {
	problems, err := s.schedules.ListProblems(ctx, schedule.ID)
	if err != nil {
		return ScheduleDetail{}, mapScheduleRepoError(err)
	}

	detail := ScheduleDetail{Schedule: schedule}
	if len(problems) == 0 {
		return detail, nil
	}

	solvedBy, err := s.solvedMembers(ctx, schedule.StudyID, problems)
	if err != nil {
		return ScheduleDetail{}, err
	}

	detail.Problems = make([]ProblemStatus, 0, len(problems))
	for _, problem := range problems {
		detail.Problems = append(detail.Problems, ProblemStatus{
			ProblemNumber: problem.ProblemNumber,
			IsSolved:      problem.IsSolved,
			SolvedMembers: solvedBy[problem.ProblemNumber],
		})
	}
	return detail, nil
}

// solvedMembers resolves, per problem, the usernames of study members with a
// passing submission. Submissions from former members are ignored.
func (s *ScheduleService) solvedMembers(ctx context.Context, studyID string, problems []AssignedProblem) (map[int64][]string, error) {
	if s.submissions == nil || s.memberships == nil || s.users == nil {
		return nil, nil
	}

	memberships, err := s.memberships.ListStudyMembers(ctx, studyID)
	if err != nil {
		return nil, mapMembershipRepoError(err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	memberIDs := make([]string, 0, len(memberships))
	for _, membership := range memberships {
		memberIDs = append(memberIDs, membership.UserID)
	}

	numbers := make([]int64, 0, len(problems))
	for _, problem := range problems {
		numbers = append(numbers, problem.ProblemNumber)
	}

	passedBy, err := s.submissions.PassedProblemUsers(ctx, numbers, memberIDs)
	if err != nil {
		return nil, mapScheduleRepoError(err)
	}
	if len(passedBy) == 0 {
		return nil, nil
	}

	users, err := s.users.ListUsersByIDs(ctx, memberIDs)
	if err != nil {
		return nil, mapUserRepoError(err)
	}
	usernameByID := make(map[string]string, len(users))
	for _, user := range users {
		usernameByID[user.ID] = user.Username
	}

	result := make(map[int64][]string, len(passedBy))
	for number, userIDs := range passedBy {
		names := make([]string, 0, len(userIDs))
		for _, id := range userIDs {
			if name, ok := usernameByID[id]; ok {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		result[number] = names
	}
	return result, nil
}

func validateScheduleInput(input ScheduleInput) *ValidationError {
	vErr := &ValidationError{}
	if input.StartedAt.IsZero() {
		vErr.add("startedAt", "start time is required")
	}
	if input.FinishedAt.IsZero() {
		vErr.add("finishedAt", "finish time is required")
	}
	if !input.StartedAt.IsZero() && !input.FinishedAt.IsZero() && !input.FinishedAt.After(input.StartedAt) {
		vErr.add("finishedAt", "finish time must be after start time")
	}
	seen := make(map[int64]struct{}, len(input.ProblemNumbers))
	for _, number := range input.ProblemNumbers {
		if number <= 0 {
			vErr.add("problemNumbers", "problem numbers must be positive")
			break
		}
		if _, dup := seen[number]; dup {
			vErr.add("problemNumbers", "problem numbers must be unique")
			break
		}
		seen[number] = struct{}{}
	}
	return vErr
}

// normalizeProblemNumbers returns a sorted copy without duplicates.
func normalizeProblemNumbers(numbers []int64) []int64 {
	if len(numbers) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(numbers))
	out := make([]int64, 0, len(numbers))
	for _, number := range numbers {
		if _, dup := seen[number]; dup {
			continue
		}
		seen[number] = struct{}{}
		out = append(out, number)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// diffProblemNumbers splits a desired problem set against the current
// assignments. Problems in both keep their stored solved flag untouched.
func diffProblemNumbers(current []AssignedProblem, desired []int64) (added, removed []int64) {
	currentSet := make(map[int64]struct{}, len(current))
	for _, problem := range current {
		currentSet[problem.ProblemNumber] = struct{}{}
	}
	desiredSet := make(map[int64]struct{}, len(desired))
	for _, number := range desired {
		desiredSet[number] = struct{}{}
		if _, ok := currentSet[number]; !ok {
			added = append(added, number)
		}
	}
	for _, problem := range current {
		if _, ok := desiredSet[problem.ProblemNumber]; !ok {
			removed = append(removed, problem.ProblemNumber)
		}
	}
	return added, removed
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) || errors.Is(err, persistence.ErrConstraintViolation) {
		return ErrScheduleConflict
	}
	return err
}

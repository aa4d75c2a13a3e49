package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/study-scheduler/internal/application"
	"github.com/example/study-scheduler/internal/config"
	httptransport "github.com/example/study-scheduler/internal/http"
	"github.com/example/study-scheduler/internal/persistence"
	"github.com/example/study-scheduler/internal/persistence/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(sqlite.DefaultConfig(cfg.SQLiteDSN))
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now

	users := newUserAdapter(sqlite.NewUserRepository(pool))
	studies := newStudyAdapter(sqlite.NewStudyRepository(pool))
	memberships := newMembershipAdapter(sqlite.NewMembershipRepository(pool))
	schedules := newScheduleAdapter(sqlite.NewScheduleRepository(pool))
	submissions := newSubmissionAdapter(sqlite.NewSubmissionRepository(pool))
	chats := newChatAdapter(sqlite.NewChatRepository(pool))
	sessions := newSessionAdapter(sqlite.NewSessionRepository(pool))

	userService := application.NewUserService(users, nil, idGenerator, now)
	authService := application.NewAuthServiceWithLogger(users, sessions, nil, tokenGenerator, now, cfg.SessionTTL, logger)
	studyService := application.NewStudyServiceWithLogger(studies, memberships, users, idGenerator, now, cfg.InviteTTL, logger)
	scheduleService := application.NewScheduleServiceWithLogger(schedules, submissions, memberships, users, idGenerator, now, logger)
	chatService := application.NewChatServiceWithLogger(chats, users, memberships, now, cfg.ChatPageSize, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:         httptransport.NewAuthHandler(authService, logger),
		Users:        httptransport.NewUserHandler(userService, logger),
		Studies:      httptransport.NewStudyHandler(studyService, logger),
		Schedules:    httptransport.NewScheduleHandler(scheduleService, logger),
		Chat:         httptransport.NewChatHandler(chatService, logger),
		SessionGuard: httptransport.RequireSession(authService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("study scheduler API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// userAdapter bridges the persistence user repository to the application's
// UserAccountRepository and CredentialStore interfaces.
type userAdapter struct {
	repo persistence.UserRepository
}

func newUserAdapter(repo persistence.UserRepository) *userAdapter {
	return &userAdapter{repo: repo}
}

func (a *userAdapter) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	model := persistence.User{
		ID:           creds.User.ID,
		Username:     creds.User.Username,
		DisplayName:  creds.User.DisplayName,
		PasswordHash: creds.PasswordHash,
		CreatedAt:    creds.User.CreatedAt,
		UpdatedAt:    creds.User.UpdatedAt,
	}
	if err := a.repo.CreateUser(ctx, model); err != nil {
		return application.User{}, err
	}
	stored, err := a.repo.GetUser(ctx, creds.User.ID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userAdapter) GetUserByUsername(ctx context.Context, username string) (application.User, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userAdapter) GetUserCredentialsByUsername(ctx context.Context, username string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(stored),
		PasswordHash: stored.PasswordHash,
	}, nil
}

func (a *userAdapter) ListUsersByIDs(ctx context.Context, ids []string) ([]application.User, error) {
	models, err := a.repo.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

func (a *userAdapter) DeleteUser(ctx context.Context, id string) error {
	return a.repo.DeleteUser(ctx, id)
}

type studyAdapter struct {
	repo persistence.StudyRepository
}

func newStudyAdapter(repo persistence.StudyRepository) *studyAdapter {
	return &studyAdapter{repo: repo}
}

func (a *studyAdapter) CreateStudy(ctx context.Context, study application.Study, creator application.Membership) (application.Study, error) {
	if err := a.repo.CreateStudy(ctx, toPersistenceStudy(study), toPersistenceMembership(creator)); err != nil {
		return application.Study{}, err
	}
	stored, err := a.repo.GetStudy(ctx, study.ID)
	if err != nil {
		return application.Study{}, err
	}
	return toApplicationStudy(stored), nil
}

func (a *studyAdapter) GetStudy(ctx context.Context, id string) (application.Study, error) {
	stored, err := a.repo.GetStudy(ctx, id)
	if err != nil {
		return application.Study{}, err
	}
	return toApplicationStudy(stored), nil
}

func (a *studyAdapter) UpdateStudy(ctx context.Context, study application.Study) (application.Study, error) {
	if err := a.repo.UpdateStudy(ctx, toPersistenceStudy(study)); err != nil {
		return application.Study{}, err
	}
	stored, err := a.repo.GetStudy(ctx, study.ID)
	if err != nil {
		return application.Study{}, err
	}
	return toApplicationStudy(stored), nil
}

func (a *studyAdapter) SetInviteCode(ctx context.Context, studyID, code string, expiry time.Time) error {
	return a.repo.SetInviteCode(ctx, studyID, code, expiry)
}

func (a *studyAdapter) DeleteStudy(ctx context.Context, id string) error {
	return a.repo.DeleteStudy(ctx, id)
}

type membershipAdapter struct {
	repo persistence.MembershipRepository
}

func newMembershipAdapter(repo persistence.MembershipRepository) *membershipAdapter {
	return &membershipAdapter{repo: repo}
}

func (a *membershipAdapter) CreateMembership(ctx context.Context, membership application.Membership) error {
	return a.repo.CreateMembership(ctx, toPersistenceMembership(membership))
}

func (a *membershipAdapter) GetMembership(ctx context.Context, userID, studyID string) (application.Membership, error) {
	stored, err := a.repo.GetMembership(ctx, userID, studyID)
	if err != nil {
		return application.Membership{}, err
	}
	return toApplicationMembership(stored), nil
}

func (a *membershipAdapter) ListStudyMembers(ctx context.Context, studyID string) ([]application.Membership, error) {
	models, err := a.repo.ListStudyMembers(ctx, studyID)
	if err != nil {
		return nil, err
	}
	return toApplicationMemberships(models), nil
}

func (a *membershipAdapter) ListUserMemberships(ctx context.Context, userID string, offset, limit int) ([]application.Membership, error) {
	models, err := a.repo.ListUserMemberships(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return toApplicationMemberships(models), nil
}

func (a *membershipAdapter) UpdatePinnedAt(ctx context.Context, userID, studyID string, pinnedAt time.Time) error {
	return a.repo.UpdatePinnedAt(ctx, userID, studyID, pinnedAt)
}

func (a *membershipAdapter) DeleteMembership(ctx context.Context, userID, studyID string) error {
	return a.repo.DeleteMembership(ctx, userID, studyID)
}

func (a *membershipAdapter) TransferRoomMaker(ctx context.Context, studyID, fromUserID, toUserID string) error {
	return a.repo.TransferRoomMaker(ctx, studyID, fromUserID, toUserID)
}

type scheduleAdapter struct {
	repo persistence.ScheduleRepository
}

func newScheduleAdapter(repo persistence.ScheduleRepository) *scheduleAdapter {
	return &scheduleAdapter{repo: repo}
}

func (a *scheduleAdapter) CreateSchedule(ctx context.Context, schedule application.Schedule, problemNumbers []int64) (application.Schedule, error) {
	if err := a.repo.CreateSchedule(ctx, toPersistenceSchedule(schedule), toSolveProblems(schedule.ID, problemNumbers)); err != nil {
		return application.Schedule{}, err
	}
	stored, err := a.repo.GetSchedule(ctx, schedule.ID)
	if err != nil {
		return application.Schedule{}, err
	}
	return toApplicationSchedule(stored), nil
}

func (a *scheduleAdapter) GetSchedule(ctx context.Context, id string) (application.Schedule, error) {
	stored, err := a.repo.GetSchedule(ctx, id)
	if err != nil {
		return application.Schedule{}, err
	}
	return toApplicationSchedule(stored), nil
}

func (a *scheduleAdapter) ExistsOnDay(ctx context.Context, studyID string, day time.Time, excludeScheduleID string) (bool, error) {
	return a.repo.ExistsOnDay(ctx, studyID, day, excludeScheduleID)
}

func (a *scheduleAdapter) UpdateSchedule(ctx context.Context, schedule application.Schedule, addedProblems, removedProblems []int64) (application.Schedule, error) {
	if err := a.repo.UpdateSchedule(ctx, toPersistenceSchedule(schedule), toSolveProblems(schedule.ID, addedProblems), removedProblems); err != nil {
		return application.Schedule{}, err
	}
	stored, err := a.repo.GetSchedule(ctx, schedule.ID)
	if err != nil {
		return application.Schedule{}, err
	}
	return toApplicationSchedule(stored), nil
}

func (a *scheduleAdapter) ListProblems(ctx context.Context, scheduleID string) ([]application.AssignedProblem, error) {
	models, err := a.repo.ListProblems(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	problems := make([]application.AssignedProblem, 0, len(models))
	for _, model := range models {
		problems = append(problems, application.AssignedProblem{
			ProblemNumber: model.ProblemNumber,
			IsSolved:      model.IsSolved,
		})
	}
	return problems, nil
}

func (a *scheduleAdapter) SetProblemSolved(ctx context.Context, scheduleID string, problemNumber int64, solved bool) error {
	return a.repo.SetProblemSolved(ctx, scheduleID, problemNumber, solved)
}

func (a *scheduleAdapter) ListSchedulesInRange(ctx context.Context, studyID string, from, to time.Time) ([]application.Schedule, error) {
	models, err := a.repo.ListSchedulesInRange(ctx, studyID, from, to)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	schedules := make([]application.Schedule, 0, len(models))
	for _, model := range models {
		schedules = append(schedules, toApplicationSchedule(model))
	}
	return schedules, nil
}

func (a *scheduleAdapter) DeleteSchedule(ctx context.Context, id string) error {
	return a.repo.DeleteSchedule(ctx, id)
}

type submissionAdapter struct {
	repo persistence.SubmissionRepository
}

func newSubmissionAdapter(repo persistence.SubmissionRepository) *submissionAdapter {
	return &submissionAdapter{repo: repo}
}

func (a *submissionAdapter) CreateSubmission(ctx context.Context, submission application.Submission) (application.Submission, error) {
	model := persistence.Submission{
		ID:            submission.ID,
		UserID:        submission.UserID,
		ProblemNumber: submission.ProblemNumber,
		Passed:        submission.Passed,
		SubmittedAt:   submission.SubmittedAt,
	}
	if err := a.repo.CreateSubmission(ctx, model); err != nil {
		return application.Submission{}, err
	}
	return submission, nil
}

func (a *submissionAdapter) PassedProblemUsers(ctx context.Context, problemNumbers []int64, userIDs []string) (map[int64][]string, error) {
	return a.repo.PassedProblemUsers(ctx, problemNumbers, userIDs)
}

type chatAdapter struct {
	repo persistence.ChatRepository
}

func newChatAdapter(repo persistence.ChatRepository) *chatAdapter {
	return &chatAdapter{repo: repo}
}

func (a *chatAdapter) AppendMessage(ctx context.Context, message application.ChatMessage) (application.ChatMessage, error) {
	stored, err := a.repo.AppendMessage(ctx, persistence.ChatMessage{
		StudyID:  message.StudyID,
		SenderID: message.SenderID,
		Content:  message.Content,
		SentAt:   message.SentAt,
	})
	if err != nil {
		return application.ChatMessage{}, err
	}
	result := toApplicationChatMessage(stored)
	result.Sender = message.Sender
	return result, nil
}

func (a *chatAdapter) ListBefore(ctx context.Context, studyID string, beforeID int64, limit int) ([]application.ChatMessage, bool, error) {
	models, hasMore, err := a.repo.ListBefore(ctx, studyID, beforeID, limit)
	if err != nil {
		return nil, false, err
	}
	if len(models) == 0 {
		return nil, hasMore, nil
	}
	messages := make([]application.ChatMessage, 0, len(models))
	for _, model := range models {
		messages = append(messages, toApplicationChatMessage(model))
	}
	return messages, hasMore, nil
}

func (a *chatAdapter) LatestMessage(ctx context.Context, studyID string) (application.ChatMessage, error) {
	stored, err := a.repo.LatestMessage(ctx, studyID)
	if err != nil {
		return application.ChatMessage{}, err
	}
	return toApplicationChatMessage(stored), nil
}

type sessionAdapter struct {
	repo persistence.SessionRepository
}

func newSessionAdapter(repo persistence.SessionRepository) *sessionAdapter {
	return &sessionAdapter{repo: repo}
}

func (a *sessionAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionAdapter) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		Username:    model.Username,
		DisplayName: model.DisplayName,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toApplicationStudy(model persistence.Study) application.Study {
	return application.Study{
		ID:               model.ID,
		Title:            model.Title,
		Info:             model.Info,
		InviteCode:       cloneString(model.InviteCode),
		InviteCodeExpiry: cloneTime(model.InviteCodeExpiry),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toPersistenceStudy(study application.Study) persistence.Study {
	return persistence.Study{
		ID:               study.ID,
		Title:            study.Title,
		Info:             study.Info,
		InviteCode:       cloneString(study.InviteCode),
		InviteCodeExpiry: cloneTime(study.InviteCodeExpiry),
		CreatedAt:        study.CreatedAt,
		UpdatedAt:        study.UpdatedAt,
	}
}

func toApplicationMembership(model persistence.Membership) application.Membership {
	return application.Membership{
		UserID:      model.UserID,
		StudyID:     model.StudyID,
		IsRoomMaker: model.IsRoomMaker,
		PinnedAt:    model.PinnedAt,
	}
}

func toApplicationMemberships(models []persistence.Membership) []application.Membership {
	if len(models) == 0 {
		return nil
	}
	memberships := make([]application.Membership, 0, len(models))
	for _, model := range models {
		memberships = append(memberships, toApplicationMembership(model))
	}
	return memberships
}

func toPersistenceMembership(membership application.Membership) persistence.Membership {
	return persistence.Membership{
		UserID:      membership.UserID,
		StudyID:     membership.StudyID,
		IsRoomMaker: membership.IsRoomMaker,
		PinnedAt:    membership.PinnedAt,
	}
}

func toApplicationSchedule(model persistence.Schedule) application.Schedule {
	return application.Schedule{
		ID:         model.ID,
		StudyID:    model.StudyID,
		StartedAt:  model.StartedAt,
		FinishedAt: model.FinishedAt,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

func toPersistenceSchedule(schedule application.Schedule) persistence.Schedule {
	return persistence.Schedule{
		ID:         schedule.ID,
		StudyID:    schedule.StudyID,
		StartedAt:  schedule.StartedAt,
		FinishedAt: schedule.FinishedAt,
		CreatedAt:  schedule.CreatedAt,
		UpdatedAt:  schedule.UpdatedAt,
	}
}

func toSolveProblems(scheduleID string, problemNumbers []int64) []persistence.ToSolveProblem {
	if len(problemNumbers) == 0 {
		return nil
	}
	problems := make([]persistence.ToSolveProblem, 0, len(problemNumbers))
	for _, number := range problemNumbers {
		problems = append(problems, persistence.ToSolveProblem{
			ScheduleID:    scheduleID,
			ProblemNumber: number,
		})
	}
	return problems
}

func toApplicationChatMessage(model persistence.ChatMessage) application.ChatMessage {
	return application.ChatMessage{
		ID:       model.ID,
		StudyID:  model.StudyID,
		SenderID: model.SenderID,
		Content:  model.Content,
		SentAt:   model.SentAt,
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		RevokedAt: cloneTime(session.RevokedAt),
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:        model.ID,
		UserID:    model.UserID,
		Token:     model.Token,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
		RevokedAt: cloneTime(model.RevokedAt),
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

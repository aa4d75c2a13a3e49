package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/study-scheduler/internal/application"
	"github.com/example/study-scheduler/internal/persistence"
)

var (
	userCounter       uint64
	studyCounter      uint64
	scheduleCounter   uint64
	sessionCounter    uint64
	chatCounter       uint64
	submissionCounter uint64
)

var referenceTime = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record that can be materialised
// for application or persistence tests.
type UserFixture struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:           id,
		Username:     fmt.Sprintf("member_%03d", idx),
		DisplayName:  fmt.Sprintf("Member %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUsername overrides the generated username.
func WithUsername(username string) UserOption {
	return func(f *UserFixture) {
		f.Username = username
	}
}

// WithUserDisplayName overrides the generated display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) {
		f.DisplayName = name
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// WithUserTimestamps sets both created and updated timestamps on the fixture.
func WithUserTimestamps(created, updated time.Time) UserOption {
	return func(f *UserFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:          f.ID,
		Username:    f.Username,
		DisplayName: f.DisplayName,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Credentials returns the fixture as application.UserCredentials.
func (f UserFixture) Credentials() application.UserCredentials {
	return application.UserCredentials{
		User:         f.Application(),
		PasswordHash: f.PasswordHash,
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Username: f.Username}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Username:     f.Username,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// ----------------------------- Study fixtures ----------------------------

// StudyFixture represents a deterministic study group record.
type StudyFixture struct {
	ID               string
	Title            string
	Info             string
	InviteCode       *string
	InviteCodeExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StudyOption configures the generated study fixture.
type StudyOption func(*StudyFixture)

// NewStudyFixture returns a deterministic study fixture with optional overrides.
func NewStudyFixture(opts ...StudyOption) StudyFixture {
	idx := atomic.AddUint64(&studyCounter, 1)
	id := fmt.Sprintf("study-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := StudyFixture{
		ID:        id,
		Title:     fmt.Sprintf("Study %03d", idx),
		Info:      "weekly practice",
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithStudyID overrides the generated study ID.
func WithStudyID(id string) StudyOption {
	return func(f *StudyFixture) {
		f.ID = id
	}
}

// WithStudyTitle overrides the generated title.
func WithStudyTitle(title string) StudyOption {
	return func(f *StudyFixture) {
		f.Title = title
	}
}

// WithStudyInfo sets the description text on the fixture.
func WithStudyInfo(info string) StudyOption {
	return func(f *StudyFixture) {
		f.Info = info
	}
}

// WithStudyInviteCode sets an active invite code and expiry on the fixture.
func WithStudyInviteCode(code string, expiry time.Time) StudyOption {
	return func(f *StudyFixture) {
		value := code
		deadline := expiry
		f.InviteCode = &value
		f.InviteCodeExpiry = &deadline
	}
}

// WithoutStudyInviteCode clears any invite code on the fixture.
func WithoutStudyInviteCode() StudyOption {
	return func(f *StudyFixture) {
		f.InviteCode = nil
		f.InviteCodeExpiry = nil
	}
}

// WithStudyTimestamps sets both created and updated timestamps.
func WithStudyTimestamps(created, updated time.Time) StudyOption {
	return func(f *StudyFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application returns the fixture as an application.Study value.
func (f StudyFixture) Application() application.Study {
	return application.Study{
		ID:               f.ID,
		Title:            f.Title,
		Info:             f.Info,
		InviteCode:       copyStringPtr(f.InviteCode),
		InviteCodeExpiry: copyTimePtr(f.InviteCodeExpiry),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.Study value.
func (f StudyFixture) Persistence() persistence.Study {
	return persistence.Study{
		ID:               f.ID,
		Title:            f.Title,
		Info:             f.Info,
		InviteCode:       copyStringPtr(f.InviteCode),
		InviteCodeExpiry: copyTimePtr(f.InviteCodeExpiry),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// Input returns the fixture as an application.StudyInput.
func (f StudyFixture) Input() application.StudyInput {
	return application.StudyInput{
		Title: f.Title,
		Info:  f.Info,
	}
}

// Membership returns a membership binding the given user to this study.
func (f StudyFixture) Membership(userID string, roomMaker bool) persistence.Membership {
	return persistence.Membership{
		UserID:      userID,
		StudyID:     f.ID,
		IsRoomMaker: roomMaker,
		PinnedAt:    f.CreatedAt,
	}
}

// --------------------------- Schedule fixtures ---------------------------

// ScheduleFixture represents a deterministic study session record.
type ScheduleFixture struct {
	ID             string
	StudyID        string
	StartedAt      time.Time
	FinishedAt     time.Time
	ProblemNumbers []int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduleOption configures the generated schedule fixture.
type ScheduleOption func(*ScheduleFixture)

// NewScheduleFixture returns a deterministic schedule fixture with optional
// overrides. Successive fixtures land on successive UTC days so they never
// collide with the one-schedule-per-day rule.
func NewScheduleFixture(opts ...ScheduleOption) ScheduleFixture {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	id := fmt.Sprintf("schedule-%03d", idx)
	start := referenceTime.AddDate(0, 0, int(idx))
	fixture := ScheduleFixture{
		ID:         id,
		StudyID:    fmt.Sprintf("study-%03d", idx),
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Hour),
		CreatedAt:  referenceTime,
		UpdatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithScheduleID overrides the schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.ID = id
	}
}

// WithScheduleStudyID sets the owning study ID.
func WithScheduleStudyID(id string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.StudyID = id
	}
}

// WithScheduleWindow sets the start and finish times.
func WithScheduleWindow(started, finished time.Time) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.StartedAt = started
		f.FinishedAt = finished
	}
}

// WithScheduleProblems sets the assigned problem numbers.
func WithScheduleProblems(numbers ...int64) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.ProblemNumbers = append([]int64(nil), numbers...)
	}
}

// WithScheduleTimestamps sets both created and updated timestamps.
func WithScheduleTimestamps(created, updated time.Time) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application returns the fixture as an application.Schedule value.
func (f ScheduleFixture) Application() application.Schedule {
	return application.Schedule{
		ID:         f.ID,
		StudyID:    f.StudyID,
		StartedAt:  f.StartedAt,
		FinishedAt: f.FinishedAt,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// Input returns the fixture as an application.ScheduleInput.
func (f ScheduleFixture) Input() application.ScheduleInput {
	return application.ScheduleInput{
		StartedAt:      f.StartedAt,
		FinishedAt:     f.FinishedAt,
		ProblemNumbers: append([]int64(nil), f.ProblemNumbers...),
	}
}

// Persistence returns the fixture as a persistence.Schedule value.
func (f ScheduleFixture) Persistence() persistence.Schedule {
	return persistence.Schedule{
		ID:         f.ID,
		StudyID:    f.StudyID,
		StartedAt:  f.StartedAt,
		FinishedAt: f.FinishedAt,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// Problems returns the assigned problems as persistence rows.
func (f ScheduleFixture) Problems() []persistence.ToSolveProblem {
	if len(f.ProblemNumbers) == 0 {
		return nil
	}
	problems := make([]persistence.ToSolveProblem, 0, len(f.ProblemNumbers))
	for _, number := range f.ProblemNumbers {
		problems = append(problems, persistence.ToSolveProblem{
			ScheduleID:    f.ID,
			ProblemNumber: number,
		})
	}
	return problems
}

// ----------------------------- Chat fixtures -----------------------------

// ChatMessageFixture represents a deterministic chat entry.
type ChatMessageFixture struct {
	StudyID  string
	SenderID string
	Content  string
	SentAt   time.Time
}

// ChatMessageOption configures the generated chat fixture.
type ChatMessageOption func(*ChatMessageFixture)

// NewChatMessageFixture returns a deterministic chat fixture with optional
// overrides. The store assigns the message ID on append, so none is generated.
func NewChatMessageFixture(opts ...ChatMessageOption) ChatMessageFixture {
	idx := atomic.AddUint64(&chatCounter, 1)
	fixture := ChatMessageFixture{
		StudyID:  fmt.Sprintf("study-%03d", idx),
		SenderID: fmt.Sprintf("user-%03d", idx),
		Content:  fmt.Sprintf("message %03d", idx),
		SentAt:   referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithChatStudyID sets the study the message belongs to.
func WithChatStudyID(id string) ChatMessageOption {
	return func(f *ChatMessageFixture) {
		f.StudyID = id
	}
}

// WithChatSenderID sets the sending user.
func WithChatSenderID(id string) ChatMessageOption {
	return func(f *ChatMessageFixture) {
		f.SenderID = id
	}
}

// WithChatContent overrides the message body.
func WithChatContent(content string) ChatMessageOption {
	return func(f *ChatMessageFixture) {
		f.Content = content
	}
}

// WithChatSentAt sets the send timestamp.
func WithChatSentAt(t time.Time) ChatMessageOption {
	return func(f *ChatMessageFixture) {
		f.SentAt = t
	}
}

// Persistence returns the fixture as a persistence.ChatMessage value.
func (f ChatMessageFixture) Persistence() persistence.ChatMessage {
	return persistence.ChatMessage{
		StudyID:  f.StudyID,
		SenderID: f.SenderID,
		Content:  f.Content,
		SentAt:   f.SentAt,
	}
}

// -------------------------- Submission fixtures --------------------------

// SubmissionFixture represents a deterministic judge submission record.
type SubmissionFixture struct {
	ID            string
	UserID        string
	ProblemNumber int64
	Passed        bool
	SubmittedAt   time.Time
}

// SubmissionOption configures the generated submission fixture.
type SubmissionOption func(*SubmissionFixture)

// NewSubmissionFixture returns a deterministic submission fixture with
// optional overrides.
func NewSubmissionFixture(opts ...SubmissionOption) SubmissionFixture {
	idx := atomic.AddUint64(&submissionCounter, 1)
	fixture := SubmissionFixture{
		ID:            fmt.Sprintf("submission-%03d", idx),
		UserID:        fmt.Sprintf("user-%03d", idx),
		ProblemNumber: int64(1000 + idx),
		Passed:        true,
		SubmittedAt:   referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSubmissionID overrides the submission ID.
func WithSubmissionID(id string) SubmissionOption {
	return func(f *SubmissionFixture) {
		f.ID = id
	}
}

// WithSubmissionUserID sets the submitting user.
func WithSubmissionUserID(id string) SubmissionOption {
	return func(f *SubmissionFixture) {
		f.UserID = id
	}
}

// WithSubmissionProblem sets the problem number.
func WithSubmissionProblem(number int64) SubmissionOption {
	return func(f *SubmissionFixture) {
		f.ProblemNumber = number
	}
}

// WithSubmissionPassed sets the judge verdict.
func WithSubmissionPassed(passed bool) SubmissionOption {
	return func(f *SubmissionFixture) {
		f.Passed = passed
	}
}

// WithSubmissionSubmittedAt sets the submission timestamp.
func WithSubmissionSubmittedAt(t time.Time) SubmissionOption {
	return func(f *SubmissionFixture) {
		f.SubmittedAt = t
	}
}

// Application returns the fixture as an application.Submission value.
func (f SubmissionFixture) Application() application.Submission {
	return application.Submission{
		ID:            f.ID,
		UserID:        f.UserID,
		ProblemNumber: f.ProblemNumber,
		Passed:        f.Passed,
		SubmittedAt:   f.SubmittedAt,
	}
}

// Persistence returns the fixture as a persistence.Submission value.
func (f SubmissionFixture) Persistence() persistence.Submission {
	return persistence.Submission{
		ID:            f.ID,
		UserID:        f.UserID,
		ProblemNumber: f.ProblemNumber,
		Passed:        f.Passed,
		SubmittedAt:   f.SubmittedAt,
	}
}

// ----------------------------- Session fixtures -------------------------

// SessionFixture represents a deterministic session record.
type SessionFixture struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic session fixture with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:        fmt.Sprintf("session-%03d", idx),
		UserID:    fmt.Sprintf("user-%03d", idx),
		Token:     fmt.Sprintf("token-%03d", idx),
		ExpiresAt: referenceTime.Add(24 * time.Hour),
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSessionUserID sets the user ID.
func WithSessionUserID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.UserID = id
	}
}

// WithSessionToken overrides the token value.
func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) {
		f.Token = token
	}
}

// WithSessionExpiresAt sets the expiration timestamp.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ExpiresAt = t
	}
}

// WithSessionRevokedAt sets the optional revoked timestamp.
func WithSessionRevokedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		revoked := t
		f.RevokedAt = &revoked
	}
}

// Application returns the fixture as an application.Session value.
func (f SessionFixture) Application() application.Session {
	return application.Session{
		ID:        f.ID,
		UserID:    f.UserID,
		Token:     f.Token,
		ExpiresAt: f.ExpiresAt,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
		RevokedAt: copyTimePtr(f.RevokedAt),
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:        f.ID,
		UserID:    f.UserID,
		Token:     f.Token,
		ExpiresAt: f.ExpiresAt,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
		RevokedAt: copyTimePtr(f.RevokedAt),
	}
}

// helper to deep copy optional strings.
func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

// helper to deep copy optional timestamps.
func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

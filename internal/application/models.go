package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID   string
	Username string
}

// User represents a platform account exposed by the application services.
type User struct {
	ID          string
	Username    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Study represents a study group. Invite-code fields are nil until a code has
// been issued.
type Study struct {
	ID               string
	Title            string
	Info             string
	InviteCode       *string
	InviteCodeExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Membership binds a user to a study, carrying room-maker and pin state.
type Membership struct {
	UserID      string
	StudyID     string
	IsRoomMaker bool
	PinnedAt    time.Time
}

// StudyMember augments a membership with directory attributes for display.
type StudyMember struct {
	UserID      string
	Username    string
	DisplayName string
	IsRoomMaker bool
}

// StudyDetail bundles a study with its member roster.
type StudyDetail struct {
	Study   Study
	Members []StudyMember
}

// StudyInput captures caller provided study fields.
type StudyInput struct {
	Title string
	Info  string
}

// CreateStudyParams wraps the data required to create a study.
type CreateStudyParams struct {
	Principal Principal
	Input     StudyInput
}

// UpdateStudyParams wraps the data required to update a study.
type UpdateStudyParams struct {
	Principal Principal
	StudyID   string
	Input     StudyInput
}

// ListStudiesParams wraps the paging inputs for a user's study list.
type ListStudiesParams struct {
	Principal Principal
	Page      int
	PageSize  int
}

// Schedule represents a persisted study session.
type Schedule struct {
	ID         string
	StudyID    string
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	ProblemNumbers []int64
}

// CreateScheduleParams wraps the data required to create a schedule.
type CreateScheduleParams struct {
	Principal Principal
	StudyID   string
	Input     ScheduleInput
}

// UpdateScheduleParams wraps the data required to update an existing schedule.
type UpdateScheduleParams struct {
	Principal  Principal
	StudyID    string
	ScheduleID string
	Input      ScheduleInput
}

// AssignedProblem is one problem number attached to a schedule, with its
// collective solved flag.
type AssignedProblem struct {
	ProblemNumber int64
	IsSolved      bool
}

// ProblemStatus reports one assigned problem together with the members who
// have a passing submission for it.
type ProblemStatus struct {
	ProblemNumber int64
	IsSolved      bool
	SolvedMembers []string
}

// ScheduleDetail bundles a schedule with its problem statuses.
type ScheduleDetail struct {
	Schedule Schedule
	Problems []ProblemStatus
}

// ListSchedulesParams selects a calendar view for a study. When Day is zero
// the result covers the six-week month grid; otherwise the Sunday-anchored
// week containing the day.
type ListSchedulesParams struct {
	Principal Principal
	StudyID   string
	Year      int
	Month     time.Month
	Day       int
}

// CalendarPage is a range of schedules covering a fixed calendar grid.
type CalendarPage struct {
	From      time.Time
	To        time.Time
	Schedules []Schedule
}

// ChatMessage is one entry of a study's append-only chat history.
type ChatMessage struct {
	ID       int64
	StudyID  string
	SenderID string
	Sender   string
	Content  string
	SentAt   time.Time
}

// ChatPage is a keyset-paginated slice of chat history, newest first.
type ChatPage struct {
	Messages []ChatMessage
	HasMore  bool
}

// Submission records a judge outcome for one user and problem.
type Submission struct {
	ID            string
	UserID        string
	ProblemNumber int64
	Passed        bool
	SubmittedAt   time.Time
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// RegisterUserParams captures the data required to create an account.
type RegisterUserParams struct {
	Username    string
	DisplayName string
	Password    string
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Username string
	Password string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}

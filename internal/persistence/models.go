package persistence

import "time"

// User represents a platform account referenced by memberships and chat.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Study represents a study group together with its invite-code state.
type Study struct {
	ID               string
	Title            string
	Info             string
	InviteCode       *string
	InviteCodeExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Membership binds a user to a study. At most one membership per study
// carries IsRoomMaker.
type Membership struct {
	UserID      string
	StudyID     string
	IsRoomMaker bool
	PinnedAt    time.Time
}

// Schedule represents a time-bounded study session. StartDay is the UTC
// calendar day of StartedAt and backs the one-schedule-per-day unique index.
type Schedule struct {
	ID         string
	StudyID    string
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ToSolveProblem assigns a problem to a schedule with per-assignment solved
// state.
type ToSolveProblem struct {
	ScheduleID    string
	ProblemNumber int64
	IsSolved      bool
}

// ChatMessage is an append-only study chat entry. IDs are assigned by the
// store and strictly increase per study history.
type ChatMessage struct {
	ID       int64
	StudyID  string
	SenderID string
	Content  string
	SentAt   time.Time
}

// Submission records the judge-side outcome of a user's attempt at a problem.
// Only passing submissions matter to the scheduling domain.
type Submission struct {
	ID            string
	UserID        string
	ProblemNumber int64
	Passed        bool
	SubmittedAt   time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

package persistence

import "context"
import "time"

// UserRepository exposes account lookup and lifecycle operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// StudyRepository stores study records. Creating a study also records the
// creator's room-maker membership in the same transaction; deleting a study
// cascades memberships, schedules, assigned problems, and chat history.
type StudyRepository interface {
	CreateStudy(ctx context.Context, study Study, creator Membership) error
	GetStudy(ctx context.Context, id string) (Study, error)
	UpdateStudy(ctx context.Context, study Study) error
	SetInviteCode(ctx context.Context, studyID, code string, expiry time.Time) error
	DeleteStudy(ctx context.Context, id string) error
}

// MembershipRepository stores the user-study relation, including room-maker
// state and pin ordering.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, membership Membership) error
	GetMembership(ctx context.Context, userID, studyID string) (Membership, error)
	ListStudyMembers(ctx context.Context, studyID string) ([]Membership, error)
	// ListUserMemberships returns a user's memberships ordered by PinnedAt
	// descending, paged by offset/limit. A limit of zero means no limit.
	ListUserMemberships(ctx context.Context, userID string, offset, limit int) ([]Membership, error)
	UpdatePinnedAt(ctx context.Context, userID, studyID string, pinnedAt time.Time) error
	DeleteMembership(ctx context.Context, userID, studyID string) error
	// TransferRoomMaker atomically clears the room-maker flag on fromUserID
	// and sets it on toUserID within a single transaction.
	TransferRoomMaker(ctx context.Context, studyID, fromUserID, toUserID string) error
}

// ScheduleRepository stores schedules and their assigned problems. Writes that
// touch both tables happen inside one transaction.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule, problems []ToSolveProblem) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	// ExistsOnDay reports whether the study already has a schedule whose
	// StartedAt falls on the same UTC calendar day as day. excludeID, when
	// non-empty, ignores that schedule (used by updates).
	ExistsOnDay(ctx context.Context, studyID string, day time.Time, excludeID string) (bool, error)
	// UpdateSchedule rewrites the schedule row and reconciles the problem set:
	// added rows are inserted, removed numbers are deleted, untouched rows
	// keep their solved state.
	UpdateSchedule(ctx context.Context, schedule Schedule, added []ToSolveProblem, removed []int64) error
	ListProblems(ctx context.Context, scheduleID string) ([]ToSolveProblem, error)
	SetProblemSolved(ctx context.Context, scheduleID string, problemNumber int64, solved bool) error
	ListSchedulesInRange(ctx context.Context, studyID string, from, to time.Time) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// ChatRepository stores the append-only chat history per study.
type ChatRepository interface {
	// AppendMessage stores the message and returns it with the assigned ID.
	AppendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
	// ListBefore returns up to limit messages with ID strictly less than
	// beforeID, ordered by ID descending, and whether older messages remain.
	ListBefore(ctx context.Context, studyID string, beforeID int64, limit int) ([]ChatMessage, bool, error)
	LatestMessage(ctx context.Context, studyID string) (ChatMessage, error)
}

// SubmissionRepository stores judge outcomes consumed by the scheduling
// domain to derive solved-member lists.
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, submission Submission) error
	// PassedProblemUsers returns, for each requested problem number, the IDs
	// among userIDs that have at least one passing submission for it.
	PassedProblemUsers(ctx context.Context, problemNumbers []int64, userIDs []string) (map[int64][]string, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

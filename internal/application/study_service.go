package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/study-scheduler/internal/persistence"
)

// StudyRepository captures the persistence interactions needed by the service.
type StudyRepository interface {
	CreateStudy(ctx context.Context, study Study, creator Membership) (Study, error)
	GetStudy(ctx context.Context, id string) (Study, error)
	UpdateStudy(ctx context.Context, study Study) (Study, error)
	SetInviteCode(ctx context.Context, studyID, code string, expiry time.Time) error
	DeleteStudy(ctx context.Context, id string) error
}

// UserDirectory exposes user lookup operations.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]User, error)
}

// StudyService orchestrates study lifecycle, membership, and invitation flows.
type StudyService struct {
	studies     StudyRepository
	memberships MembershipRepository
	users       UserDirectory
	guard       *MemberGuard
	idGenerator func() string
	now         func() time.Time
	inviteTTL   time.Duration
	logger      *slog.Logger
}

// NewStudyService constructs a study service with the provided dependencies.
func NewStudyService(studies StudyRepository, memberships MembershipRepository, users UserDirectory, idGenerator func() string, now func() time.Time, inviteTTL time.Duration) *StudyService {
	return NewStudyServiceWithLogger(studies, memberships, users, idGenerator, now, inviteTTL, nil)
}

// NewStudyServiceWithLogger constructs a study service with a specified logger.
func NewStudyServiceWithLogger(studies StudyRepository, memberships MembershipRepository, users UserDirectory, idGenerator func() string, now func() time.Time, inviteTTL time.Duration, logger *slog.Logger) *StudyService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if inviteTTL <= 0 {
		inviteTTL = 24 * time.Hour
	}
	return &StudyService{
		studies:     studies,
		memberships: memberships,
		users:       users,
		guard:       NewMemberGuard(memberships),
		idGenerator: idGenerator,
		now:         now,
		inviteTTL:   inviteTTL,
		logger:      defaultLogger(logger),
	}
}

func (s *StudyService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "StudyService", operation, attrs...)
}

// Guard exposes the membership checks for services that share this
// service's membership repository.
func (s *StudyService) Guard() *MemberGuard {
	if s == nil {
		return nil
	}
	return s.guard
}

// CreateStudy validates input and persists a new study. The creator becomes
// the study's room maker in the same transaction.
func (s *StudyService) CreateStudy(ctx context.Context, params CreateStudyParams) (study Study, err error) {
	if s == nil {
		err = fmt.Errorf("StudyService is nil")
		return
	}
	if s.studies == nil {
		err = fmt.Errorf("study repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateStudy", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create study", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("study_id", study.ID).InfoContext(ctx, "study created")
	}()

	vErr := validateStudyInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	study = Study{
		ID:        s.idGenerator(),
		Title:     strings.TrimSpace(params.Input.Title),
		Info:      strings.TrimSpace(params.Input.Info),
		CreatedAt: now,
		UpdatedAt: now,
	}
	creator := Membership{
		UserID:      params.Principal.UserID,
		StudyID:     study.ID,
		IsRoomMaker: true,
		PinnedAt:    now,
	}

	study, err = s.studies.CreateStudy(ctx, study, creator)
	if err != nil {
		err = mapStudyRepoError(err)
		return
	}
	return
}

// GetStudy returns a study together with its member roster. Only members may
// view a study.
func (s *StudyService) GetStudy(ctx context.Context, principal Principal, studyID string) (detail StudyDetail, err error) {
	if s == nil {
		err = fmt.Errorf("StudyService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetStudy",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to get study", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if _, err = s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		return
	}

	var study Study
	study, err = s.studies.GetStudy(ctx, studyID)
	if err != nil {
		err = mapStudyRepoError(err)
		return
	}

	var members []StudyMember
	members, err = s.studyMembers(ctx, studyID)
	if err != nil {
		return
	}

	detail = StudyDetail{Study: study, Members: members}
	return
}

// ListStudies returns the studies the principal belongs to, most recently
// pinned first.
func (s *StudyService) ListStudies(ctx context.Context, params ListStudiesParams) (studies []Study, err error) {
	if s == nil {
		err = fmt.Errorf("StudyService is nil")
		return
	}
	if s.memberships == nil || s.studies == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListStudies", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list studies", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(studies)).InfoContext(ctx, "studies listed")
	}()

	page := params.Page
	if page < 0 {
		page = 0
	}
	size := params.PageSize
	if size < 0 {
		size = 0
	}

	var memberships []Membership
	memberships, err = s.memberships.ListUserMemberships(ctx, params.Principal.UserID, page*size, size)
	if err != nil {
		err = mapMembershipRepoError(err)
		return
	}

	studies = make([]Study, 0, len(memberships))
	for _, membership := range memberships {
		study, getErr := s.studies.GetStudy(ctx, membership.StudyID)
		if getErr != nil {
			err = mapStudyRepoError(getErr)
			return
		}
		studies = append(studies, study)
	}
	return
}

// UpdateStudy changes a study's title and info. Restricted to the room maker.
func (s *StudyService) UpdateStudy(ctx context.Context, params UpdateStudyParams) (study Study, err error) {
	if s == nil {
		err = fmt.Errorf("StudyService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateStudy",
		"principal_id", params.Principal.UserID,
		"study_id", params.StudyID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update study", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "study updated")
	}()

	if _, err = s.guard.RequireRoomMaker(ctx, params.Principal.UserID, params.StudyID); err != nil {
		return
	}

	vErr := validateStudyInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var existing Study
	existing, err = s.studies.GetStudy(ctx, params.StudyID)
	if err != nil {
		err = mapStudyRepoError(err)
		return
	}

	updated := existing
	updated.Title = strings.TrimSpace(params.Input.Title)
	updated.Info = strings.TrimSpace(params.Input.Info)
	updated.UpdatedAt = s.now()

	study, err = s.studies.UpdateStudy(ctx, updated)
	if err != nil {
		err = mapStudyRepoError(err)
		return
	}
	return
}

// DeleteStudy removes a study and everything it owns: memberships, schedules
// with their problems, and chat history. Restricted to the room maker.
func (s *StudyService) DeleteStudy(ctx context.Context, principal Principal, studyID string) error {
	if s == nil {
		return fmt.Errorf("StudyService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteStudy",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)

	if _, err := s.guard.RequireRoomMaker(ctx, principal.UserID, studyID); err != nil {
		logger.ErrorContext(ctx, "failed to delete study", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.studies.DeleteStudy(ctx, studyID); err != nil {
		err = mapStudyRepoError(err)
		logger.ErrorContext(ctx, "failed to delete study", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "study deleted")
	return nil
}

// Pin moves a study to the front of the principal's study list.
func (s *StudyService) Pin(ctx context.Context, principal Principal, studyID string) error {
	if s == nil {
		return fmt.Errorf("StudyService is nil")
	}

	logger := s.loggerWith(ctx, "Pin",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)

	if _, err := s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		logger.ErrorContext(ctx, "failed to pin study", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.memberships.UpdatePinnedAt(ctx, principal.UserID, studyID, s.now()); err != nil {
		err = mapMembershipRepoError(err)
		logger.ErrorContext(ctx, "failed to pin study", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "study pinned")
	return nil
}

// GetOrCreateInviteCode returns the study's invite code, generating and
// persisting a fresh one when none exists or the stored code has expired.
// Calls within the validity window return the identical code.
func (s *StudyService) GetOrCreateInviteCode(ctx context.Context, principal Principal, studyID string) (code string, err error) {
	if s == nil {
		err = fmt.Errorf("StudyService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetOrCreateInviteCode",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to issue invite code", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "invite code issued")
	}()

	if _, err = s.guard.RequireMember(ctx, principal.UserID, studyID); err != nil {
		return
	}

	var study Study
	study, err = s.studies.GetStudy(ctx, studyID)
	if err != nil {
		err = mapStudyRepoError(err)
		return
	}

	now := s.now()
	if study.InviteCode != nil && study.InviteCodeExpiry != nil && study.InviteCodeExpiry.After(now) {
		code = *study.InviteCode
		return
	}

	code, err = newInviteCode()
	if err != nil {
		return
	}

	if err = s.studies.SetInviteCode(ctx, studyID, code, now.Add(s.inviteTTL)); err != nil {
		err = mapStudyRepoError(err)
		code = ""
		return
	}
	return
}

// JoinByCode enrolls the principal into a study when the supplied invite code
// matches the stored, unexpired one.
func (s *StudyService) JoinByCode(ctx context.Context, principal Principal, studyID, suppliedCode string) error {
	if s == nil {
		return fmt.Errorf("StudyService is nil")
	}

	logger := s.loggerWith(ctx, "JoinByCode",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)

	err := s.joinByCode(ctx, principal, studyID, suppliedCode)
	if err != nil {
		logger.ErrorContext(ctx, "failed to join study", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "joined study by invite code")
	return nil
}

func (s *StudyService) joinByCode(ctx context.Context, principal Principal, studyID, suppliedCode string) error {
	study, err := s.studies.GetStudy(ctx, studyID)
	if err != nil {
		return mapStudyRepoError(err)
	}

	if _, err := s.memberships.GetMembership(ctx, principal.UserID, studyID); err == nil {
		return ErrAlreadyMember
	} else if !errors.Is(err, persistence.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		return mapMembershipRepoError(err)
	}

	now := s.now()
	supplied := strings.TrimSpace(suppliedCode)
	if study.InviteCode == nil || study.InviteCodeExpiry == nil {
		return ErrInvalidInviteCode
	}
	if supplied == "" || supplied != *study.InviteCode || !study.InviteCodeExpiry.After(now) {
		return ErrInvalidInviteCode
	}

	membership := Membership{
		UserID:   principal.UserID,
		StudyID:  studyID,
		PinnedAt: now,
	}
	if err := s.memberships.CreateMembership(ctx, membership); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return ErrAlreadyMember
		}
		return mapMembershipRepoError(err)
	}
	return nil
}

// InviteUser directly enrolls the named user into the study. Restricted to
// the room maker.
func (s *StudyService) InviteUser(ctx context.Context, principal Principal, studyID, targetUsername string) error {
	if s == nil {
		return fmt.Errorf("StudyService is nil")
	}
	if s.users == nil {
		return fmt.Errorf("user directory not configured")
	}

	logger := s.loggerWith(ctx, "InviteUser",
		"principal_id", principal.UserID,
		"study_id", studyID,
		"target_username", targetUsername,
	)

	err := s.inviteUser(ctx, principal, studyID, targetUsername)
	if err != nil {
		logger.ErrorContext(ctx, "failed to invite user", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "user invited to study")
	return nil
}

func (s *StudyService) inviteUser(ctx context.Context, principal Principal, studyID, targetUsername string) error {
	if _, err := s.guard.RequireRoomMaker(ctx, principal.UserID, studyID); err != nil {
		return err
	}

	target, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(targetUsername))
	if err != nil {
		return mapUserRepoError(err)
	}

	if _, err := s.memberships.GetMembership(ctx, target.ID, studyID); err == nil {
		return ErrAlreadyMember
	} else if !errors.Is(err, persistence.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		return mapMembershipRepoError(err)
	}

	membership := Membership{
		UserID:   target.ID,
		StudyID:  studyID,
		PinnedAt: s.now(),
	}
	if err := s.memberships.CreateMembership(ctx, membership); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return ErrAlreadyMember
		}
		return mapMembershipRepoError(err)
	}
	return nil
}

// TransferRoomMaker hands the room-maker role to another member. The swap is
// a single transaction: a crash or concurrent call can never leave zero or
// two room makers behind.
func (s *StudyService) TransferRoomMaker(ctx context.Context, principal Principal, studyID, targetUserID string) error {
	if s == nil {
		return fmt.Errorf("StudyService is nil")
	}

	logger := s.loggerWith(ctx, "TransferRoomMaker",
		"principal_id", principal.UserID,
		"study_id", studyID,
		"target_user_id", targetUserID,
	)

	err := s.transferRoomMaker(ctx, principal, studyID, targetUserID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to transfer room maker", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "room maker transferred")
	return nil
}

func (s *StudyService) transferRoomMaker(ctx context.Context, principal Principal, studyID, targetUserID string) error {
	if _, err := s.guard.RequireRoomMaker(ctx, principal.UserID, studyID); err != nil {
		return err
	}
	if targetUserID == principal.UserID {
		return ErrNotAMember
	}
	if _, err := s.memberships.GetMembership(ctx, targetUserID, studyID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, ErrNotFound) {
			return ErrNotAMember
		}
		return mapMembershipRepoError(err)
	}

	if err := s.memberships.TransferRoomMaker(ctx, studyID, principal.UserID, targetUserID); err != nil {
		return mapMembershipRepoError(err)
	}
	return nil
}

// KickMember removes another member from the study. Restricted to the room
// maker, who must use Leave or TransferRoomMaker for themself.
func (s *StudyService) KickMember(ctx context.Context, principal Principal, studyID, targetUserID string) error {
	if s == nil {
		return fmt.Errorf("StudyService is nil")
	}

	logger := s.loggerWith(ctx, "KickMember",
		"principal_id", principal.UserID,
		"study_id", studyID,
		"target_user_id", targetUserID,
	)

	err := s.kickMember(ctx, principal, studyID, targetUserID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to kick member", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "member kicked")
	return nil
}

func (s *StudyService) kickMember(ctx context.Context, principal Principal, studyID, targetUserID string) error {
	if _, err := s.guard.RequireRoomMaker(ctx, principal.UserID, studyID); err != nil {
		return err
	}
	if targetUserID == principal.UserID {
		return ErrCannotKickSelf
	}
	if _, err := s.memberships.GetMembership(ctx, targetUserID, studyID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, ErrNotFound) {
			return ErrNotAMember
		}
		return mapMembershipRepoError(err)
	}

	if err := s.memberships.DeleteMembership(ctx, targetUserID, studyID); err != nil {
		return mapMembershipRepoError(err)
	}
	return nil
}

// Leave removes the principal's own membership. The room maker must transfer
// the role before leaving.
func (s *StudyService) Leave(ctx context.Context, principal Principal, studyID string) error {
	if s == nil {
		return fmt.Errorf("StudyService is nil")
	}

	logger := s.loggerWith(ctx, "Leave",
		"principal_id", principal.UserID,
		"study_id", studyID,
	)

	membership, err := s.guard.RequireMember(ctx, principal.UserID, studyID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to leave study", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if membership.IsRoomMaker {
		logger.ErrorContext(ctx, "failed to leave study", "error", ErrRoomMakerCannotLeave, "error_kind", ErrorKind(ErrRoomMakerCannotLeave))
		return ErrRoomMakerCannotLeave
	}

	if err := s.memberships.DeleteMembership(ctx, principal.UserID, studyID); err != nil {
		err = mapMembershipRepoError(err)
		logger.ErrorContext(ctx, "failed to leave study", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "left study")
	return nil
}

func (s *StudyService) studyMembers(ctx context.Context, studyID string) ([]StudyMember, error) {
	memberships, err := s.memberships.ListStudyMembers(ctx, studyID)
	if err != nil {
		return nil, mapMembershipRepoError(err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(memberships))
	for _, membership := range memberships {
		ids = append(ids, membership.UserID)
	}

	users, err := s.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, mapUserRepoError(err)
	}
	byID := make(map[string]User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}

	members := make([]StudyMember, 0, len(memberships))
	for _, membership := range memberships {
		user := byID[membership.UserID]
		members = append(members, StudyMember{
			UserID:      membership.UserID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			IsRoomMaker: membership.IsRoomMaker,
		})
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].IsRoomMaker != members[j].IsRoomMaker {
			return members[i].IsRoomMaker
		}
		return members[i].Username < members[j].Username
	})

	return members, nil
}

func validateStudyInput(input StudyInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	return vErr
}

func mapStudyRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	return err
}

func mapMembershipRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyMember
	}
	return err
}

func mapUserRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	return err
}

package application

import (
	"context"
	"time"
)

// MembershipRepository captures the persistence interactions for memberships.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, membership Membership) error
	GetMembership(ctx context.Context, userID, studyID string) (Membership, error)
	ListStudyMembers(ctx context.Context, studyID string) ([]Membership, error)
	ListUserMemberships(ctx context.Context, userID string, offset, limit int) ([]Membership, error)
	UpdatePinnedAt(ctx context.Context, userID, studyID string, pinnedAt time.Time) error
	DeleteMembership(ctx context.Context, userID, studyID string) error
	TransferRoomMaker(ctx context.Context, studyID, fromUserID, toUserID string) error
}

// MemberGuard performs the cross-cutting authorization checks shared by every
// mutating operation: membership and room-maker verification. The checks are
// pure reads with no side effects.
type MemberGuard struct {
	memberships MembershipRepository
}

// NewMemberGuard constructs a guard over the provided membership repository.
func NewMemberGuard(memberships MembershipRepository) *MemberGuard {
	return &MemberGuard{memberships: memberships}
}

// RequireMember returns the membership of userID in studyID, or
// ErrUnauthorized when none exists.
func (g *MemberGuard) RequireMember(ctx context.Context, userID, studyID string) (Membership, error) {
	if g == nil || g.memberships == nil {
		return Membership{}, ErrUnauthorized
	}
	membership, err := g.memberships.GetMembership(ctx, userID, studyID)
	if err != nil {
		return Membership{}, ErrUnauthorized
	}
	return membership, nil
}

// RequireRoomMaker returns the membership of userID in studyID when it
// carries the room-maker flag, or ErrUnauthorized otherwise.
func (g *MemberGuard) RequireRoomMaker(ctx context.Context, userID, studyID string) (Membership, error) {
	membership, err := g.RequireMember(ctx, userID, studyID)
	if err != nil {
		return Membership{}, err
	}
	if !membership.IsRoomMaker {
		return Membership{}, ErrUnauthorized
	}
	return membership, nil
}

package application

import (
	"context"
	"errors"
	"testing"
)

func TestMemberGuard(t *testing.T) {
	memberships := newMembershipRepoStub(
		Membership{UserID: "user-1", StudyID: "study-1", IsRoomMaker: true},
		Membership{UserID: "user-2", StudyID: "study-1"},
	)
	guard := NewMemberGuard(memberships)

	t.Run("RequireMember accepts members", func(t *testing.T) {
		membership, err := guard.RequireMember(context.Background(), "user-2", "study-1")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if membership.UserID != "user-2" {
			t.Fatalf("unexpected membership %+v", membership)
		}
	})

	t.Run("RequireMember rejects outsiders", func(t *testing.T) {
		_, err := guard.RequireMember(context.Background(), "stranger", "study-1")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("RequireRoomMaker accepts the room maker", func(t *testing.T) {
		membership, err := guard.RequireRoomMaker(context.Background(), "user-1", "study-1")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !membership.IsRoomMaker {
			t.Fatalf("expected room-maker membership, got %+v", membership)
		}
	})

	t.Run("RequireRoomMaker rejects plain members", func(t *testing.T) {
		_, err := guard.RequireRoomMaker(context.Background(), "user-2", "study-1")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("nil guard rejects everything", func(t *testing.T) {
		var guard *MemberGuard
		if _, err := guard.RequireMember(context.Background(), "user-1", "study-1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

type credentialStoreStub struct {
	creds map[string]UserCredentials
}

func newCredentialStoreStub(creds ...UserCredentials) *credentialStoreStub {
	stub := &credentialStoreStub{creds: make(map[string]UserCredentials)}
	for _, c := range creds {
		stub.creds[c.User.Username] = c
	}
	return stub
}

func (s *credentialStoreStub) GetUserCredentialsByUsername(ctx context.Context, username string) (UserCredentials, error) {
	creds, ok := s.creds[username]
	if !ok {
		return UserCredentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *credentialStoreStub) GetUser(ctx context.Context, id string) (User, error) {
	for _, creds := range s.creds {
		if creds.User.ID == id {
			return creds.User, nil
		}
	}
	return User{}, ErrNotFound
}

type sessionRepoStub struct {
	sessions map[string]Session
	created  Session
	revoked  string
	pruned   int
}

func newSessionRepoStub(sessions ...Session) *sessionRepoStub {
	stub := &sessionRepoStub{sessions: make(map[string]Session)}
	for _, session := range sessions {
		stub.sessions[session.Token] = session
	}
	return stub
}

func (s *sessionRepoStub) CreateSession(ctx context.Context, session Session) (Session, error) {
	s.created = session
	s.sessions[session.Token] = session
	return session, nil
}

func (s *sessionRepoStub) GetSession(ctx context.Context, token string) (Session, error) {
	session, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (s *sessionRepoStub) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error) {
	session, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	session.RevokedAt = &revokedAt
	s.sessions[token] = session
	s.revoked = token
	return session, nil
}

func (s *sessionRepoStub) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	s.pruned++
	return nil
}

func verifyStub(hashedPassword, password string) error {
	if hashedPassword != "hash:"+password {
		return ErrInvalidCredentials
	}
	return nil
}

func TestAuthService_Authenticate(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	creds := UserCredentials{
		User:         User{ID: "user-1", Username: "alice"},
		PasswordHash: "hash:secret12",
	}

	t.Run("issues a session for valid credentials", func(t *testing.T) {
		sessions := newSessionRepoStub()
		svc := NewAuthService(newCredentialStoreStub(creds), sessions, verifyStub, func() string { return "token-1" }, fixedClock(now), time.Hour)

		result, err := svc.Authenticate(context.Background(), AuthenticateParams{Username: "alice", Password: "secret12"})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if result.User.ID != "user-1" {
			t.Fatalf("unexpected user %+v", result.User)
		}
		if result.Session.Token == "" {
			t.Fatalf("expected a session token")
		}
		if !result.Session.ExpiresAt.Equal(now.Add(time.Hour)) {
			t.Fatalf("unexpected expiry %v", result.Session.ExpiresAt)
		}
		if sessions.pruned == 0 {
			t.Fatalf("expected expired sessions to be pruned on login")
		}
	})

	t.Run("rejects a wrong password", func(t *testing.T) {
		svc := NewAuthService(newCredentialStoreStub(creds), newSessionRepoStub(), verifyStub, nil, fixedClock(now), time.Hour)

		_, err := svc.Authenticate(context.Background(), AuthenticateParams{Username: "alice", Password: "nope"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("rejects an unknown username", func(t *testing.T) {
		svc := NewAuthService(newCredentialStoreStub(), newSessionRepoStub(), verifyStub, nil, fixedClock(now), time.Hour)

		_, err := svc.Authenticate(context.Background(), AuthenticateParams{Username: "ghost", Password: "secret12"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestAuthService_ValidateSession(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	creds := UserCredentials{User: User{ID: "user-1", Username: "alice"}, PasswordHash: "hash:secret12"}

	t.Run("resolves the principal for an active session", func(t *testing.T) {
		sessions := newSessionRepoStub(Session{ID: "sess-1", UserID: "user-1", Token: "tok", ExpiresAt: now.Add(time.Hour)})
		svc := NewAuthService(newCredentialStoreStub(creds), sessions, verifyStub, nil, fixedClock(now), time.Hour)

		principal, err := svc.ValidateSession(context.Background(), "tok")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if principal.UserID != "user-1" || principal.Username != "alice" {
			t.Fatalf("unexpected principal %+v", principal)
		}
	})

	t.Run("rejects an expired session", func(t *testing.T) {
		sessions := newSessionRepoStub(Session{ID: "sess-1", UserID: "user-1", Token: "tok", ExpiresAt: now.Add(-time.Minute)})
		svc := NewAuthService(newCredentialStoreStub(creds), sessions, verifyStub, nil, fixedClock(now), time.Hour)

		_, err := svc.ValidateSession(context.Background(), "tok")
		if !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	})

	t.Run("rejects a revoked session", func(t *testing.T) {
		revokedAt := now.Add(-time.Minute)
		sessions := newSessionRepoStub(Session{ID: "sess-1", UserID: "user-1", Token: "tok", ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt})
		svc := NewAuthService(newCredentialStoreStub(creds), sessions, verifyStub, nil, fixedClock(now), time.Hour)

		_, err := svc.ValidateSession(context.Background(), "tok")
		if !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("expected ErrSessionRevoked, got %v", err)
		}
	})

	t.Run("rejects an unknown token", func(t *testing.T) {
		svc := NewAuthService(newCredentialStoreStub(creds), newSessionRepoStub(), verifyStub, nil, fixedClock(now), time.Hour)

		_, err := svc.ValidateSession(context.Background(), "missing")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestAuthService_RevokeSession(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	creds := UserCredentials{User: User{ID: "user-1", Username: "alice"}, PasswordHash: "hash:secret12"}

	t.Run("revokes and prunes", func(t *testing.T) {
		sessions := newSessionRepoStub(Session{ID: "sess-1", UserID: "user-1", Token: "tok", ExpiresAt: now.Add(time.Hour)})
		svc := NewAuthService(newCredentialStoreStub(creds), sessions, verifyStub, nil, fixedClock(now), time.Hour)

		if err := svc.RevokeSession(context.Background(), "tok"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if sessions.revoked != "tok" {
			t.Fatalf("expected tok to be revoked, got %q", sessions.revoked)
		}
		if sessions.pruned == 0 {
			t.Fatalf("expected prune after revoke")
		}
	})

	t.Run("maps an unknown token to invalid credentials", func(t *testing.T) {
		svc := NewAuthService(newCredentialStoreStub(creds), newSessionRepoStub(), verifyStub, nil, fixedClock(now), time.Hour)

		err := svc.RevokeSession(context.Background(), "missing")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

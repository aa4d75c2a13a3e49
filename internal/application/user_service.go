package application

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/example/study-scheduler/internal/persistence"
)

// UserAccountRepository captures the persistence operations needed by the user service.
type UserAccountRepository interface {
	UserDirectory
	CreateUser(ctx context.Context, creds UserCredentials) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// PasswordHasher derives a stored hash from a plain password.
type PasswordHasher func(password string) (string, error)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// UserService orchestrates validation and persistence for accounts.
type UserService struct {
	users        UserAccountRepository
	hashPassword PasswordHasher
	idGenerator  func() string
	now          func() time.Time
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserAccountRepository, hashPassword PasswordHasher, idGenerator func() string, now func() time.Time) *UserService {
	if hashPassword == nil {
		hashPassword = func(password string) (string, error) {
			return CreatePasswordHash(password, DefaultArgon2idParams)
		}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, hashPassword: hashPassword, idGenerator: idGenerator, now: now}
}

// Register validates input and persists a new account.
func (s *UserService) Register(ctx context.Context, params RegisterUserParams) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	username := strings.TrimSpace(params.Username)
	displayName := strings.TrimSpace(params.DisplayName)

	vErr := &ValidationError{}
	if !usernamePattern.MatchString(username) {
		vErr.add("username", "username must be 3 to 32 letters, digits, or underscores")
	}
	if displayName == "" {
		vErr.add("displayName", "display name is required")
	}
	if len(params.Password) < 8 {
		vErr.add("password", "password must be at least 8 characters")
	}
	if vErr.HasErrors() {
		return User{}, vErr
	}

	hash, err := s.hashPassword(params.Password)
	if err != nil {
		return User{}, err
	}

	now := s.now()
	creds := UserCredentials{
		User: User{
			ID:          s.idGenerator(),
			Username:    username,
			DisplayName: displayName,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		PasswordHash: hash,
	}

	persisted, err := s.users.CreateUser(ctx, creds)
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicate) || errors.Is(err, ErrAlreadyExists) {
			return User{}, ErrAlreadyExists
		}
		return User{}, err
	}

	return persisted, nil
}

// GetProfile returns the acting user's own account.
func (s *UserService) GetProfile(ctx context.Context, principal Principal) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}
	return user, nil
}

// DeleteAccount removes the acting user's own account.
func (s *UserService) DeleteAccount(ctx context.Context, principal Principal) error {
	if s == nil {
		return fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return fmt.Errorf("user repository not configured")
	}

	if err := s.users.DeleteUser(ctx, principal.UserID); err != nil {
		// Room makers must hand their studies over before the account can go.
		if errors.Is(err, persistence.ErrForeignKeyViolation) {
			return ErrRoomMakerCannotLeave
		}
		return mapUserRepoError(err)
	}
	return nil
}

package application

import "errors"

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyMember is returned when a join or invite targets an existing member.
	ErrAlreadyMember = errors.New("application: already a member")
	// ErrNotAMember is returned when an operation targets a user without a membership.
	ErrNotAMember = errors.New("application: not a member")
	// ErrScheduleConflict is returned when a schedule would share a UTC calendar
	// day with an existing schedule of the same study.
	ErrScheduleConflict = errors.New("application: schedule date conflict")
	// ErrInvalidInviteCode is returned when a supplied invite code does not
	// match the stored one or the stored code has expired.
	ErrInvalidInviteCode = errors.New("application: invalid or expired invite code")
	// ErrRoomMakerCannotLeave is returned when the room maker tries to leave
	// without transferring the role first.
	ErrRoomMakerCannotLeave = errors.New("application: room maker cannot leave")
	// ErrCannotKickSelf is returned when the room maker tries to kick themself.
	ErrCannotKickSelf = errors.New("application: cannot kick self")
	// ErrInvalidCredentials is returned when authentication input does not match a stored account.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrSessionExpired is returned when the presented session token has passed its expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when the presented session token was revoked.
	ErrSessionRevoked = errors.New("application: session revoked")
	// ErrAlreadyExists is returned when an insert collides with an existing record.
	ErrAlreadyExists = errors.New("application: already exists")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

package application

import (
	"crypto/rand"
	"fmt"
)

const (
	inviteCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	inviteCodeLength   = 24
)

// newInviteCode returns a 24-character code drawn from digits and upper-case
// letters. It reads the process-wide CSPRNG directly; no per-call seeding.
func newInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	for i := range buf {
		buf[i] = inviteCodeAlphabet[int(buf[i])%len(inviteCodeAlphabet)]
	}
	return string(buf), nil
}

package utils

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InviteCodeLength is the fixed length of team invite codes.
const InviteCodeLength = 6

// InviteCodeMaxRetries bounds uniqueness retries when generating a code.
// Exceeding it is surfaced as a fatal condition, never looped forever.
const InviteCodeMaxRetries = 10

// NewInviteCode returns a random 6-char code drawn from [A-Z0-9].
func NewInviteCode() (string, error) {
	buf := make([]byte, InviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i := range buf {
		buf[i] = inviteCodeAlphabet[int(buf[i])%len(inviteCodeAlphabet)]
	}
	return string(buf), nil
}

// NewOTP returns a 6-digit one-time code for email verification.
func NewOTP() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	n := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}

// NewPaymentRef synthesizes a unique internal payment reference, e.g.
// "entry-2f1c...". Used for ledger rows that have no gateway id.
func NewPaymentRef(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OTPPurpose scopes a challenge to the operation it may authorize.
type OTPPurpose string

const (
	PurposeApproval   OTPPurpose = "APPROVAL"
	PurposeWhitelist  OTPPurpose = "WHITELIST_ADDRESS"
	PurposeWithdrawal OTPPurpose = "WITHDRAWAL"
	PurposeAdjustment OTPPurpose = "BALANCE_ADJUSTMENT"
)

// OTPChallenge is a single-use, expiring, attempt-limited code. Only the
// code's hash is stored; a consumed or expired challenge is terminal.
type OTPChallenge struct {
	ID               uuid.UUID  `json:"id"`
	Purpose          OTPPurpose `json:"purpose"`
	TargetIdentifier string     `json:"target_identifier"`
	CodeHash         string     `json:"-"`
	Attempts         int        `json:"attempts"`
	MaxAttempts      int        `json:"max_attempts"`
	Consumed         bool       `json:"consumed"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
}

// ExpiredAt reports whether the challenge is past its expiry at the given
// instant.
func (c *OTPChallenge) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

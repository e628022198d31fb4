package domain

import (
	"time"

	"github.com/google/uuid"
)

// AddressType classifies a withdrawal destination.
type AddressType string

const (
	AddressTypeWallet      AddressType = "WALLET"
	AddressTypeBankAccount AddressType = "BANK_ACCOUNT"
	AddressTypeMobileMoney AddressType = "MOBILE_MONEY"
)

// WhitelistStatus is the lifecycle state of a whitelist entry.
// REMOVED is terminal and only reachable through admin finalization.
type WhitelistStatus string

const (
	WhitelistStatusPending          WhitelistStatus = "PENDING"
	WhitelistStatusVerified         WhitelistStatus = "VERIFIED"
	WhitelistStatusRemovalRequested WhitelistStatus = "REMOVAL_REQUESTED"
	WhitelistStatusRemoved          WhitelistStatus = "REMOVED"
)

// WhitelistEntry is a withdrawal destination. After OTP verification the
// entry stays in a cooldown window (EligibleAt) before it may receive funds.
type WhitelistEntry struct {
	ID                 uuid.UUID       `json:"id"`
	WalletID           uuid.UUID       `json:"wallet_id"`
	DestinationAddress string          `json:"destination_address"`
	AddressType        AddressType     `json:"address_type"`
	Status             WhitelistStatus `json:"status"`
	VerifiedAt         *time.Time      `json:"verified_at,omitempty"`
	EligibleAt         *time.Time      `json:"eligible_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// EligibleForWithdrawal reports whether the entry can receive funds at the
// given instant. A pending removal request does not block eligibility; only
// finalized removal does.
func (e *WhitelistEntry) EligibleForWithdrawal(now time.Time) bool {
	if e.Status != WhitelistStatusVerified && e.Status != WhitelistStatusRemovalRequested {
		return false
	}
	return e.EligibleAt != nil && !now.Before(*e.EligibleAt)
}

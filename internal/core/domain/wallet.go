package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletType distinguishes ordinary user wallets from privileged ones.
type WalletType string

const (
	WalletTypeUser     WalletType = "USER"
	WalletTypeAdmin    WalletType = "ADMIN"
	WalletTypeTreasury WalletType = "TREASURY"
)

// WalletStatus is the lifecycle state of a wallet.
type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "ACTIVE"
	WalletStatusLocked    WalletStatus = "LOCKED"
	WalletStatusFrozen    WalletStatus = "FROZEN"
	WalletStatusSuspended WalletStatus = "SUSPENDED"
)

// Wallet holds a balance under optimistic concurrency control. Version is
// bumped on every balance or status write; stale writers lose.
type Wallet struct {
	ID         uuid.UUID       `json:"id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	OwnerEmail string          `json:"-"` // OTP delivery target, never exposed
	Type       WalletType      `json:"type"`
	Status     WalletStatus    `json:"status"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// IsActive reports whether the wallet accepts balance mutations.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

// IsTreasury reports whether mutations must flow through quorum approval.
func (w *Wallet) IsTreasury() bool {
	return w.Type == WalletTypeTreasury
}

// legalStatusTransitions is the admin lifecycle table. ACTIVE, LOCKED and
// FROZEN are mutually reachable; SUSPENDED is reachable from any of them but
// leaves only via explicit reinstatement to ACTIVE.
var legalStatusTransitions = map[WalletStatus][]WalletStatus{
	WalletStatusActive:    {WalletStatusLocked, WalletStatusFrozen, WalletStatusSuspended},
	WalletStatusLocked:    {WalletStatusActive, WalletStatusFrozen, WalletStatusSuspended},
	WalletStatusFrozen:    {WalletStatusActive, WalletStatusLocked, WalletStatusSuspended},
	WalletStatusSuspended: {WalletStatusActive},
}

// CanTransitionTo reports whether the status change is legal.
func (w *Wallet) CanTransitionTo(target WalletStatus) bool {
	for _, s := range legalStatusTransitions[w.Status] {
		if s == target {
			return true
		}
	}
	return false
}

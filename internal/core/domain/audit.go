package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names an audited state change.
type AuditAction string

const (
	AuditWalletCreated      AuditAction = "WALLET_CREATED"
	AuditWalletDebited      AuditAction = "WALLET_DEBITED"
	AuditWalletCredited     AuditAction = "WALLET_CREDITED"
	AuditWalletStatusSet    AuditAction = "WALLET_STATUS_SET"
	AuditBalanceAdjusted    AuditAction = "BALANCE_ADJUSTED"
	AuditQuorumReached      AuditAction = "APPROVAL_QUORUM_REACHED"
	AuditTreasuryExecuted   AuditAction = "TREASURY_EXECUTED"
	AuditApprovalInitiated  AuditAction = "APPROVAL_INITIATED"
	AuditApprovalGranted    AuditAction = "APPROVAL_GRANTED"
	AuditApprovalRejected   AuditAction = "APPROVAL_REJECTED"
	AuditApprovalExpired    AuditAction = "APPROVAL_EXPIRED"
	AuditWhitelistAdded     AuditAction = "WHITELIST_ADDED"
	AuditWhitelistVerified  AuditAction = "WHITELIST_VERIFIED"
	AuditWhitelistRemovalRq AuditAction = "WHITELIST_REMOVAL_REQUESTED"
	AuditWhitelistRemoved   AuditAction = "WHITELIST_REMOVED"
	AuditWithdrawalExecuted AuditAction = "WITHDRAWAL_EXECUTED"
)

// AuditEvent is one append-only record of a sensitive state change.
// Before/After are JSON snapshots of the touched entity.
type AuditEvent struct {
	ID          uuid.UUID   `json:"id"`
	ActorID     string      `json:"actor_id"`
	Action      AuditAction `json:"action"`
	EntityRef   string      `json:"entity_ref"` // "<entity_type>:<id>"
	BeforeState []byte      `json:"before_state,omitempty"`
	AfterState  []byte      `json:"after_state,omitempty"`
	SourceIP    string      `json:"source_ip,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// EntityRef builds the canonical entity reference string.
func EntityRef(entityType string, id uuid.UUID) string {
	return entityType + ":" + id.String()
}

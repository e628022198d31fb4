package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QuorumSize is the fixed number of distinct approvers a sensitive operation
// requires.
const QuorumSize = 3

// OperationType names the sensitive operation an approval request guards.
type OperationType string

const (
	OpTreasuryDebit  OperationType = "TREASURY_DEBIT"
	OpTreasuryCredit OperationType = "TREASURY_CREDIT"
)

// ApprovalStatus is the lifecycle state of an approval request.
// PENDING -> {APPROVED, REJECTED, EXPIRED}; the latter three are terminal.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
	ApprovalStatusExpired  ApprovalStatus = "EXPIRED"
)

// ApprovalRequest tracks quorum collection for one sensitive operation.
// CollectedApprovals is always a subset of RequiredApprovers.
type ApprovalRequest struct {
	ID                 uuid.UUID       `json:"id"`
	OperationType      OperationType   `json:"operation_type"`
	Payload            json.RawMessage `json:"payload"`
	RequiredApprovers  []string        `json:"required_approvers"`
	CollectedApprovals []string        `json:"collected_approvals"`
	Status             ApprovalStatus  `json:"status"`
	RejectedBy         *string         `json:"rejected_by,omitempty"`
	RejectionReason    *string         `json:"rejection_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	ExpiresAt          time.Time       `json:"expires_at"`
}

// IsTerminal reports whether no further transitions are possible.
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status != ApprovalStatusPending
}

// HasApprover reports whether the identifier is in the required set.
func (r *ApprovalRequest) HasApprover(identifier string) bool {
	for _, a := range r.RequiredApprovers {
		if a == identifier {
			return true
		}
	}
	return false
}

// HasApproval reports whether the identifier already approved.
func (r *ApprovalRequest) HasApproval(identifier string) bool {
	for _, a := range r.CollectedApprovals {
		if a == identifier {
			return true
		}
	}
	return false
}

// TreasuryMutationPayload is the operation payload interpreted by the ledger
// executor once a treasury request reaches quorum.
type TreasuryMutationPayload struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Amount   string    `json:"amount"` // decimal string
	Reason   string    `json:"reason"`
	AdminID  uuid.UUID `json:"admin_id"`
}

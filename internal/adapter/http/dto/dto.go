package dto

import (
	"time"

	"treasury-core/internal/core/domain"
)

// CreateWalletRequest is the request body for wallet provisioning.
type CreateWalletRequest struct {
	OwnerID    string `json:"owner_id" binding:"required,uuid"`
	OwnerEmail string `json:"owner_email" binding:"required,email"`
	Type       string `json:"type" binding:"required,oneof=USER ADMIN TREASURY"`
	Currency   string `json:"currency" binding:"required,len=3"`
}

// MutationRequest is the request body for a direct debit or credit.
type MutationRequest struct {
	Amount          string `json:"amount" binding:"required"`
	ExpectedVersion int64  `json:"expected_version" binding:"required,gt=0"`
	Reason          string `json:"reason" binding:"max=255"`
}

// WithdrawalRequest is the request body for a withdrawal to a whitelisted
// destination. Code is empty on the first call; the service answers with
// OTP_007 and the caller retries with the delivered code.
type WithdrawalRequest struct {
	EntryID string `json:"entry_id" binding:"required,uuid"`
	Amount  string `json:"amount" binding:"required"`
	Code    string `json:"code" binding:"omitempty,len=6,numeric"`
}

// WhitelistAddRequest is the request body for whitelisting a destination.
type WhitelistAddRequest struct {
	DestinationAddress string `json:"destination_address" binding:"required,min=1,max=128,safe_id"`
	AddressType        string `json:"address_type" binding:"required,oneof=WALLET BANK_ACCOUNT MOBILE_MONEY"`
}

// WhitelistVerifyRequest carries the owner's challenge code.
type WhitelistVerifyRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// InitiateApprovalRequest is the request body for opening an approval flow.
type InitiateApprovalRequest struct {
	OperationType string            `json:"operation_type" binding:"required,oneof=TREASURY_DEBIT TREASURY_CREDIT"`
	Payload       TreasuryOpPayload `json:"payload" binding:"required"`
	Approvers     []string          `json:"approvers" binding:"required,len=3,dive,required,max=100"`
}

// TreasuryOpPayload is the guarded treasury mutation, echoed into the
// approval request payload.
type TreasuryOpPayload struct {
	WalletID string `json:"wallet_id" binding:"required,uuid"`
	Amount   string `json:"amount" binding:"required"`
	Reason   string `json:"reason" binding:"max=255"`
}

// ApproveRequest is one approver's vote.
type ApproveRequest struct {
	Approver string `json:"approver" binding:"required,max=100"`
	Code     string `json:"code" binding:"required,len=6,numeric"`
}

// RejectRequest is an approver's veto.
type RejectRequest struct {
	Approver string `json:"approver" binding:"required,max=100"`
	Reason   string `json:"reason" binding:"required,max=255"`
}

// AdjustBalanceRequest is the admin balance correction body. Amount is a
// signed decimal string: negative debits, positive credits.
type AdjustBalanceRequest struct {
	Amount    string   `json:"amount" binding:"required"`
	Reason    string   `json:"reason" binding:"required,max=255"`
	Code      string   `json:"code" binding:"omitempty,len=6,numeric"`
	Approvers []string `json:"approvers" binding:"omitempty,len=3,dive,required,max=100"`
}

// WalletStatusRequest is the admin lifecycle transition body.
type WalletStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=ACTIVE LOCKED FROZEN SUSPENDED"`
	Reason string `json:"reason" binding:"required,max=255"`
}

// WalletResponse is the wallet representation returned to callers.
type WalletResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ApprovalResponse is the approval request representation.
type ApprovalResponse struct {
	ID                 string   `json:"id"`
	OperationType      string   `json:"operation_type"`
	RequiredApprovers  []string `json:"required_approvers"`
	CollectedApprovals []string `json:"collected_approvals"`
	Status             string   `json:"status"`
	RejectedBy         *string  `json:"rejected_by,omitempty"`
	RejectionReason    *string  `json:"rejection_reason,omitempty"`
	CreatedAt          string   `json:"created_at"`
	ExpiresAt          string   `json:"expires_at"`
}

// AdjustBalanceResponse carries the direct-path wallet or the treasury-path
// pending approval, never both.
type AdjustBalanceResponse struct {
	Wallet   *WalletResponse   `json:"wallet,omitempty"`
	Approval *ApprovalResponse `json:"approval,omitempty"`
}

// WhitelistEntryResponse is the whitelist entry representation.
type WhitelistEntryResponse struct {
	ID                 string  `json:"id"`
	WalletID           string  `json:"wallet_id"`
	DestinationAddress string  `json:"destination_address"`
	AddressType        string  `json:"address_type"`
	Status             string  `json:"status"`
	VerifiedAt         *string `json:"verified_at,omitempty"`
	EligibleAt         *string `json:"eligible_at,omitempty"`
	CreatedAt          string  `json:"created_at"`
}

// EligibilityResponse reports whether an entry can receive withdrawals now.
type EligibilityResponse struct {
	Entry    WhitelistEntryResponse `json:"entry"`
	Eligible bool                   `json:"eligible"`
}

// AuditEventResponse is one audit trail record.
type AuditEventResponse struct {
	ID          string `json:"id"`
	ActorID     string `json:"actor_id"`
	Action      string `json:"action"`
	EntityRef   string `json:"entity_ref"`
	BeforeState string `json:"before_state,omitempty"`
	AfterState  string `json:"after_state,omitempty"`
	SourceIP    string `json:"source_ip,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// AuditListResponse wraps a paginated audit query.
type AuditListResponse struct {
	Items      []AuditEventResponse `json:"items"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

// FromWallet maps a domain wallet to its response form.
func FromWallet(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID.String(),
		OwnerID:   w.OwnerID.String(),
		Type:      string(w.Type),
		Status:    string(w.Status),
		Balance:   w.Balance.String(),
		Currency:  w.Currency,
		Version:   w.Version,
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
		UpdatedAt: w.UpdatedAt.Format(time.RFC3339),
	}
}

// FromApproval maps a domain approval request to its response form.
func FromApproval(r *domain.ApprovalRequest) ApprovalResponse {
	return ApprovalResponse{
		ID:                 r.ID.String(),
		OperationType:      string(r.OperationType),
		RequiredApprovers:  r.RequiredApprovers,
		CollectedApprovals: r.CollectedApprovals,
		Status:             string(r.Status),
		RejectedBy:         r.RejectedBy,
		RejectionReason:    r.RejectionReason,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
		ExpiresAt:          r.ExpiresAt.Format(time.RFC3339),
	}
}

// FromWhitelistEntry maps a domain whitelist entry to its response form.
func FromWhitelistEntry(e *domain.WhitelistEntry) WhitelistEntryResponse {
	resp := WhitelistEntryResponse{
		ID:                 e.ID.String(),
		WalletID:           e.WalletID.String(),
		DestinationAddress: e.DestinationAddress,
		AddressType:        string(e.AddressType),
		Status:             string(e.Status),
		CreatedAt:          e.CreatedAt.Format(time.RFC3339),
	}
	if e.VerifiedAt != nil {
		s := e.VerifiedAt.Format(time.RFC3339)
		resp.VerifiedAt = &s
	}
	if e.EligibleAt != nil {
		s := e.EligibleAt.Format(time.RFC3339)
		resp.EligibleAt = &s
	}
	return resp
}

// FromAuditEvent maps a domain audit event to its response form.
func FromAuditEvent(e *domain.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:          e.ID.String(),
		ActorID:     e.ActorID,
		Action:      string(e.Action),
		EntityRef:   e.EntityRef,
		BeforeState: string(e.BeforeState),
		AfterState:  string(e.AfterState),
		SourceIP:    e.SourceIP,
		Timestamp:   e.Timestamp.Format(time.RFC3339),
	}
}

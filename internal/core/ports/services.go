package ports

import (
	"context"
	"encoding/json"
	"time"

	"treasury-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// HashService handles one-way hashing of OTP codes (Argon2id).
type HashService interface {
	Hash(code string) (string, error)
	Verify(code string, hash string) (bool, error)
}

// TokenService handles admin JWT token operations.
type TokenService interface {
	Generate(adminID uuid.UUID, email, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AdminID uuid.UUID
	Email   string
	Role    string
}

// CodeDeliverer hands a plaintext OTP code to the delivery collaborator.
// Delivery failure must never unwind challenge creation.
type CodeDeliverer interface {
	Deliver(ctx context.Context, identifier string, purpose domain.OTPPurpose, code string) error
}

// RateLimitStore enforces fixed-window request limits.
type RateLimitStore interface {
	// Allow records one hit against the key and reports whether the caller
	// is still inside the window's budget.
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// --- Service Ports (Business Logic) ---

// OTPService issues and verifies single-use challenge codes.
type OTPService interface {
	Issue(ctx context.Context, req IssueOTPRequest) (*domain.OTPChallenge, error)
	// Verify checks the code against the live challenge for the purpose and
	// target, consuming it on success. Attempt accounting survives failures.
	Verify(ctx context.Context, req VerifyOTPRequest) error
	// CleanupExpired removes dead challenges. Returns the number removed.
	CleanupExpired(ctx context.Context) (int64, error)
}

// IssueOTPRequest holds input for challenge issuance.
type IssueOTPRequest struct {
	Purpose          domain.OTPPurpose
	TargetIdentifier string
}

// VerifyOTPRequest holds input for challenge verification.
type VerifyOTPRequest struct {
	Purpose          domain.OTPPurpose
	TargetIdentifier string
	Code             string
}

// ApprovalExecutor runs the guarded operation once a request reaches quorum.
type ApprovalExecutor func(ctx context.Context, req *domain.ApprovalRequest) error

// ApprovalService coordinates quorum collection for sensitive operations.
type ApprovalService interface {
	Initiate(ctx context.Context, req InitiateApprovalRequest) (*domain.ApprovalRequest, error)
	Approve(ctx context.Context, req ApproveRequest) (*domain.ApprovalRequest, error)
	Reject(ctx context.Context, req RejectRequest) (*domain.ApprovalRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error)
	// RegisterExecutor binds the callback fired exactly once when a request
	// of the given operation type reaches quorum.
	RegisterExecutor(op domain.OperationType, fn ApprovalExecutor)
	// ExpireStale sweeps pending requests past expiry. Returns the count.
	ExpireStale(ctx context.Context) (int, error)
}

// InitiateApprovalRequest holds input for starting an approval flow.
type InitiateApprovalRequest struct {
	OperationType domain.OperationType
	Payload       json.RawMessage
	Approvers     []string
	InitiatorID   string
}

// ApproveRequest holds one approver's vote.
type ApproveRequest struct {
	RequestID uuid.UUID
	Approver  string
	Code      string
}

// RejectRequest holds an approver's veto.
type RejectRequest struct {
	RequestID uuid.UUID
	Approver  string
	Reason    string
}

// LedgerService owns wallet balances under optimistic concurrency.
type LedgerService interface {
	CreateWallet(ctx context.Context, req CreateWalletRequest) (*domain.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	// Debit and Credit apply one mutation iff the wallet still carries the
	// expected version. Treasury wallets reject both.
	Debit(ctx context.Context, req MutationRequest) (*domain.Wallet, error)
	Credit(ctx context.Context, req MutationRequest) (*domain.Wallet, error)
	// DebitWithRetry and CreditWithRetry re-read and retry version conflicts
	// a bounded number of times.
	DebitWithRetry(ctx context.Context, req MutationRequest) (*domain.Wallet, error)
	CreditWithRetry(ctx context.Context, req MutationRequest) (*domain.Wallet, error)
}

// CreateWalletRequest holds input for wallet provisioning.
type CreateWalletRequest struct {
	OwnerID    uuid.UUID
	OwnerEmail string
	Type       domain.WalletType
	Currency   string
}

// MutationRequest holds one balance mutation. ExpectedVersion is ignored by
// the retrying variants.
type MutationRequest struct {
	WalletID        uuid.UUID
	Amount          decimal.Decimal
	ExpectedVersion int64
	ActorID         string
	Reason          string
	SourceIP        string
}

// WhitelistService manages withdrawal destination whitelisting.
type WhitelistService interface {
	AddEntry(ctx context.Context, req AddEntryRequest) (*domain.WhitelistEntry, error)
	// VerifyEntry consumes the pending OTP and starts the cooldown window.
	VerifyEntry(ctx context.Context, entryID uuid.UUID, code string) (*domain.WhitelistEntry, error)
	IsEligible(ctx context.Context, entryID uuid.UUID) (*domain.WhitelistEntry, bool, error)
	RequestRemoval(ctx context.Context, entryID uuid.UUID, actorID string) (*domain.WhitelistEntry, error)
	FinalizeRemoval(ctx context.Context, entryID uuid.UUID, adminID string) (*domain.WhitelistEntry, error)
	List(ctx context.Context, walletID uuid.UUID) ([]domain.WhitelistEntry, error)
}

// AddEntryRequest holds input for whitelisting a destination.
type AddEntryRequest struct {
	WalletID           uuid.UUID
	DestinationAddress string
	AddressType        domain.AddressType
	ActorID            string
}

// AdminService performs privileged balance and lifecycle overrides.
type AdminService interface {
	// AdjustBalance applies a signed correction. Treasury wallets route
	// through quorum approval; large corrections demand a fresh OTP.
	AdjustBalance(ctx context.Context, req AdjustBalanceRequest) (*AdjustBalanceResult, error)
	SetWalletStatus(ctx context.Context, req SetWalletStatusRequest) (*domain.Wallet, error)
}

// AdjustBalanceRequest holds input for a balance correction.
// Amount is signed: negative debits, positive credits.
type AdjustBalanceRequest struct {
	WalletID  uuid.UUID
	Amount    decimal.Decimal
	Reason    string
	AdminID   uuid.UUID
	Code      string   // OTP code, required at or above the direct-adjust threshold
	Approvers []string // quorum roster, required for treasury wallets
	SourceIP  string
}

// AdjustBalanceResult carries either the mutated wallet (direct path) or the
// pending approval request (treasury path).
type AdjustBalanceResult struct {
	Wallet   *domain.Wallet
	Approval *domain.ApprovalRequest
}

// SetWalletStatusRequest holds input for a lifecycle transition.
type SetWalletStatusRequest struct {
	WalletID uuid.UUID
	Status   domain.WalletStatus
	AdminID  uuid.UUID
	Reason   string
	SourceIP string
}

// WithdrawalService moves funds out to whitelisted destinations.
type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Wallet, error)
}

// WithdrawalRequest holds input for a withdrawal to a whitelisted entry.
type WithdrawalRequest struct {
	WalletID uuid.UUID
	EntryID  uuid.UUID
	Amount   decimal.Decimal
	Code     string
	ActorID  string
	SourceIP string
}

// AuditService records and queries the append-only audit trail.
type AuditService interface {
	Record(ctx context.Context, event *domain.AuditEvent) error
	RecordTx(ctx context.Context, tx pgx.Tx, event *domain.AuditEvent) error
	Query(ctx context.Context, params AuditQueryParams) ([]domain.AuditEvent, int64, error)
}

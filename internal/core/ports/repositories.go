package ports

import (
	"context"
	"time"

	"treasury-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Balance and status writes are compare-and-swap on the stored version:
// implementations must report domain-level version conflict when the
// expected version no longer matches.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	// UpdateBalance writes the new balance iff the stored version equals
	// expectedVersion, bumping the version on success.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance string, expectedVersion int64) error
	// UpdateStatus writes the new status iff the stored version equals
	// expectedVersion, bumping the version on success.
	UpdateStatus(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, status domain.WalletStatus, expectedVersion int64) error
}

// OTPRepository defines persistence operations for OTP challenges.
// Attempt counting and consumption are atomic at the store level so that
// concurrent verifications cannot overshoot limits or double-consume.
type OTPRepository interface {
	Create(ctx context.Context, challenge *domain.OTPChallenge) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OTPChallenge, error)
	// GetActiveByTarget returns the newest unconsumed, unexpired challenge
	// for the purpose and target, or nil when none is live.
	GetActiveByTarget(ctx context.Context, purpose domain.OTPPurpose, target string) (*domain.OTPChallenge, error)
	// IncrementAttempts bumps the attempt counter iff it is still below the
	// challenge's maximum. Returns false when the budget is exhausted.
	IncrementAttempts(ctx context.Context, id uuid.UUID) (bool, error)
	// Consume marks the challenge consumed iff it was not already.
	// Returns false on a lost race.
	Consume(ctx context.Context, id uuid.UUID) (bool, error)
	// InvalidatePrior consumes every live challenge for the same purpose and
	// target, so only the newest issued code verifies.
	InvalidatePrior(ctx context.Context, purpose domain.OTPPurpose, target string) error
	// DeleteExpired removes challenges past their expiry. Returns the number
	// of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ApprovalRepository defines persistence operations for approval requests.
type ApprovalRepository interface {
	Create(ctx context.Context, req *domain.ApprovalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]domain.ApprovalRequest, error)
	// AddApproval appends the approver iff the request is still pending and
	// the approver has not already been recorded. Returns false otherwise.
	AddApproval(ctx context.Context, id uuid.UUID, approver string) (bool, error)
	// MarkApproved flips PENDING to APPROVED iff the collected set has
	// reached quorum. Exactly one caller wins the flip.
	MarkApproved(ctx context.Context, tx pgx.Tx, id uuid.UUID, quorum int) (bool, error)
	// MarkRejected flips PENDING to REJECTED with the rejector recorded.
	MarkRejected(ctx context.Context, id uuid.UUID, rejectedBy, reason string) (bool, error)
	// ExpireStale flips every PENDING request past its expiry to EXPIRED
	// and returns the affected request IDs.
	ExpireStale(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// WhitelistRepository defines persistence operations for withdrawal
// destination whitelist entries.
type WhitelistRepository interface {
	Create(ctx context.Context, entry *domain.WhitelistEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WhitelistEntry, error)
	GetByWalletAndAddress(ctx context.Context, walletID uuid.UUID, address string) (*domain.WhitelistEntry, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.WhitelistEntry, error)
	// MarkVerified flips PENDING to VERIFIED, stamping verification and
	// eligibility times. Returns false if the entry was not pending.
	MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt, eligibleAt time.Time) (bool, error)
	// UpdateStatus moves the entry between post-verification states.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.WhitelistStatus) (bool, error)
}

// AuditRepository defines append and query operations for the audit trail.
// AppendTx participates in the caller's transaction so the audit record
// commits or rolls back together with the mutation it describes.
type AuditRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	AppendTx(ctx context.Context, tx pgx.Tx, event *domain.AuditEvent) error
	Query(ctx context.Context, params AuditQueryParams) ([]domain.AuditEvent, int64, error)
}

// AuditQueryParams holds filter + pagination for querying audit events.
type AuditQueryParams struct {
	EntityRef *string
	ActorID   *string
	Action    *domain.AuditAction
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

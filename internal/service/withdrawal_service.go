package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WithdrawalFlowService implements ports.WithdrawalService. Funds leave a
// wallet only toward a whitelisted, verified, cooled-down destination, and
// only with a fresh challenge code from the owner.
type WithdrawalFlowService struct {
	ledger    *WalletLedgerService
	whitelist ports.WhitelistService
	otpSvc    ports.OTPService
	auditSvc  ports.AuditService
	log       zerolog.Logger
	nowFn     func() time.Time
}

// NewWithdrawalFlowService creates a new withdrawal flow service.
func NewWithdrawalFlowService(
	ledger *WalletLedgerService,
	whitelist ports.WhitelistService,
	otpSvc ports.OTPService,
	auditSvc ports.AuditService,
	log zerolog.Logger,
) *WithdrawalFlowService {
	return &WithdrawalFlowService{
		ledger:    ledger,
		whitelist: whitelist,
		otpSvc:    otpSvc,
		auditSvc:  auditSvc,
		log:       log,
		nowFn:     time.Now,
	}
}

// RequestWithdrawal debits the wallet toward the whitelisted destination.
// The committed ledger state plus audit record is the hand-off point to the
// downstream payment rail.
func (s *WithdrawalFlowService) RequestWithdrawal(ctx context.Context, req ports.WithdrawalRequest) (*domain.Wallet, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	entry, eligible, err := s.whitelist.IsEligible(ctx, req.EntryID)
	if err != nil {
		return nil, err
	}
	if entry.WalletID != req.WalletID {
		return nil, apperror.ErrAddressNotWhitelisted()
	}
	if !eligible {
		// Verified but still cooling down reads differently to the caller
		// than a destination that was never verified.
		switch entry.Status {
		case domain.WhitelistStatusVerified, domain.WhitelistStatusRemovalRequested:
			return nil, apperror.ErrNotYetEligible()
		default:
			return nil, apperror.ErrAddressNotWhitelisted()
		}
	}

	wallet, err := s.ledger.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}

	if req.Code == "" {
		if _, err := s.otpSvc.Issue(ctx, ports.IssueOTPRequest{
			Purpose:          domain.PurposeWithdrawal,
			TargetIdentifier: wallet.OwnerEmail,
		}); err != nil {
			return nil, err
		}
		return nil, apperror.ErrOTPRequired()
	}
	if err := s.otpSvc.Verify(ctx, ports.VerifyOTPRequest{
		Purpose:          domain.PurposeWithdrawal,
		TargetIdentifier: wallet.OwnerEmail,
		Code:             req.Code,
	}); err != nil {
		return nil, err
	}

	updated, err := s.ledger.DebitWithRetry(ctx, ports.MutationRequest{
		WalletID: req.WalletID,
		Amount:   req.Amount,
		ActorID:  req.ActorID,
		Reason:   fmt.Sprintf("withdrawal to %s", entry.DestinationAddress),
		SourceIP: req.SourceIP,
	})
	if err != nil {
		return nil, err
	}

	afterState, _ := json.Marshal(map[string]string{
		"amount":      req.Amount.String(),
		"destination": entry.DestinationAddress,
		"entry_id":    entry.ID.String(),
	})
	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    req.ActorID,
		Action:     domain.AuditWithdrawalExecuted,
		EntityRef:  domain.EntityRef("wallet", req.WalletID),
		AfterState: afterState,
		SourceIP:   req.SourceIP,
		Timestamp:  s.nowFn().UTC(),
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("wallet_id", req.WalletID.String()).
		Str("entry_id", entry.ID.String()).
		Str("amount", req.Amount.String()).
		Msg("withdrawal executed")

	return updated, nil
}

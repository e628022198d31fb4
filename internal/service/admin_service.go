package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"treasury-core/config"
	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AdminOverrideService implements ports.AdminService. Treasury wallets route
// every correction through quorum approval; ordinary wallets take the direct
// path, with large corrections gated behind a fresh challenge code.
type AdminOverrideService struct {
	ledger      *WalletLedgerService
	coordinator ports.ApprovalService
	otpSvc      ports.OTPService
	walletRepo  ports.WalletRepository
	auditSvc    ports.AuditService
	transactor  ports.DBTransactor
	threshold   decimal.Decimal
	log         zerolog.Logger
	nowFn       func() time.Time
}

// NewAdminOverrideService creates a new admin override service.
func NewAdminOverrideService(
	ledger *WalletLedgerService,
	coordinator ports.ApprovalService,
	otpSvc ports.OTPService,
	walletRepo ports.WalletRepository,
	auditSvc ports.AuditService,
	transactor ports.DBTransactor,
	cfg config.AdminConfig,
	log zerolog.Logger,
) (*AdminOverrideService, error) {
	threshold, err := decimal.NewFromString(cfg.DirectAdjustThreshold)
	if err != nil {
		return nil, fmt.Errorf("parsing direct adjust threshold: %w", err)
	}
	return &AdminOverrideService{
		ledger:      ledger,
		coordinator: coordinator,
		otpSvc:      otpSvc,
		walletRepo:  walletRepo,
		auditSvc:    auditSvc,
		transactor:  transactor,
		threshold:   threshold,
		log:         log,
		nowFn:       time.Now,
	}, nil
}

// AdjustBalance applies a signed correction. Negative amounts debit,
// positive amounts credit. For treasury wallets the correction becomes a
// pending approval request instead of an immediate write.
func (s *AdminOverrideService) AdjustBalance(ctx context.Context, req ports.AdjustBalanceRequest) (*ports.AdjustBalanceResult, error) {
	if req.Amount.IsZero() {
		return nil, apperror.ErrInvalidAmount()
	}

	wallet, err := s.ledger.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}

	if wallet.IsTreasury() {
		return s.routeThroughQuorum(ctx, req)
	}

	if req.Amount.Abs().GreaterThanOrEqual(s.threshold) {
		if req.Code == "" {
			// First call issues the challenge; the admin retries with the
			// delivered code.
			if _, err := s.otpSvc.Issue(ctx, ports.IssueOTPRequest{
				Purpose:          domain.PurposeAdjustment,
				TargetIdentifier: req.AdminID.String(),
			}); err != nil {
				return nil, err
			}
			return nil, apperror.ErrOTPRequired()
		}
		if err := s.otpSvc.Verify(ctx, ports.VerifyOTPRequest{
			Purpose:          domain.PurposeAdjustment,
			TargetIdentifier: req.AdminID.String(),
			Code:             req.Code,
		}); err != nil {
			return nil, err
		}
	}

	updated, err := s.ledger.AdjustBalance(ctx, ports.MutationRequest{
		WalletID: req.WalletID,
		Amount:   req.Amount.Abs(),
		ActorID:  req.AdminID.String(),
		Reason:   req.Reason,
		SourceIP: req.SourceIP,
	}, req.Amount)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("wallet_id", req.WalletID.String()).
		Str("admin_id", req.AdminID.String()).
		Str("amount", req.Amount.String()).
		Msg("balance adjusted by administrator")

	return &ports.AdjustBalanceResult{Wallet: updated}, nil
}

// routeThroughQuorum opens a treasury approval request for the correction.
func (s *AdminOverrideService) routeThroughQuorum(ctx context.Context, req ports.AdjustBalanceRequest) (*ports.AdjustBalanceResult, error) {
	op := domain.OpTreasuryCredit
	if req.Amount.IsNegative() {
		op = domain.OpTreasuryDebit
	}

	payload, err := json.Marshal(domain.TreasuryMutationPayload{
		WalletID: req.WalletID,
		Amount:   req.Amount.Abs().String(),
		Reason:   req.Reason,
		AdminID:  req.AdminID,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal treasury payload: %w", err))
	}

	approval, err := s.coordinator.Initiate(ctx, ports.InitiateApprovalRequest{
		OperationType: op,
		Payload:       payload,
		Approvers:     req.Approvers,
		InitiatorID:   req.AdminID.String(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("wallet_id", req.WalletID.String()).
		Str("request_id", approval.ID.String()).
		Str("operation", string(op)).
		Msg("treasury adjustment routed through quorum approval")

	return &ports.AdjustBalanceResult{Approval: approval}, nil
}

// SetWalletStatus applies a lifecycle transition under the legal-transition
// table. SUSPENDED leaves only via explicit reinstatement to ACTIVE.
func (s *AdminOverrideService) SetWalletStatus(ctx context.Context, req ports.SetWalletStatusRequest) (*domain.Wallet, error) {
	switch req.Status {
	case domain.WalletStatusActive, domain.WalletStatusLocked, domain.WalletStatusFrozen, domain.WalletStatusSuspended:
	default:
		return nil, apperror.Validation("unknown wallet status")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDTx(ctx, dbTx, req.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if !wallet.CanTransitionTo(req.Status) {
		return nil, apperror.ErrIllegalStateTransition(string(wallet.Status), string(req.Status))
	}

	if err := s.walletRepo.UpdateStatus(ctx, dbTx, wallet.ID, req.Status, wallet.Version); err != nil {
		return nil, err
	}

	beforeState, _ := json.Marshal(map[string]string{"status": string(wallet.Status)})
	afterState, _ := json.Marshal(map[string]string{"status": string(req.Status), "reason": req.Reason})
	if err := s.auditSvc.RecordTx(ctx, dbTx, &domain.AuditEvent{
		ID:          uuid.New(),
		ActorID:     req.AdminID.String(),
		Action:      domain.AuditWalletStatusSet,
		EntityRef:   domain.EntityRef("wallet", wallet.ID),
		BeforeState: beforeState,
		AfterState:  afterState,
		SourceIP:    req.SourceIP,
		Timestamp:   s.nowFn().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("from", string(wallet.Status)).
		Str("to", string(req.Status)).
		Str("admin_id", req.AdminID.String()).
		Msg("wallet status changed")

	wallet.Status = req.Status
	wallet.Version++
	wallet.UpdatedAt = s.nowFn().UTC()
	return wallet, nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/internal/metrics"
	"treasury-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// maxMutationRetries bounds re-reads after losing a version race.
const maxMutationRetries = 3

// WalletLedgerService implements ports.LedgerService. Every balance write is
// a compare-and-swap on the wallet version and commits together with its
// audit record.
type WalletLedgerService struct {
	walletRepo ports.WalletRepository
	auditSvc   ports.AuditService
	transactor ports.DBTransactor
	log        zerolog.Logger
	nowFn      func() time.Time
}

// NewWalletLedgerService creates a new wallet ledger.
func NewWalletLedgerService(
	walletRepo ports.WalletRepository,
	auditSvc ports.AuditService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *WalletLedgerService {
	return &WalletLedgerService{
		walletRepo: walletRepo,
		auditSvc:   auditSvc,
		transactor: transactor,
		log:        log,
		nowFn:      time.Now,
	}
}

// CreateWallet provisions a wallet with a zero balance.
func (s *WalletLedgerService) CreateWallet(ctx context.Context, req ports.CreateWalletRequest) (*domain.Wallet, error) {
	if req.OwnerEmail == "" {
		return nil, apperror.Validation("owner email is required")
	}
	if req.Currency == "" {
		return nil, apperror.Validation("currency is required")
	}
	switch req.Type {
	case domain.WalletTypeUser, domain.WalletTypeAdmin, domain.WalletTypeTreasury:
	default:
		return nil, apperror.Validation("unknown wallet type")
	}

	now := s.nowFn().UTC()
	wallet := &domain.Wallet{
		ID:         uuid.New(),
		OwnerID:    req.OwnerID,
		OwnerEmail: req.OwnerEmail,
		Type:       req.Type,
		Status:     domain.WalletStatusActive,
		Balance:    decimal.Zero,
		Currency:   req.Currency,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	afterState, _ := json.Marshal(wallet)
	if err := s.auditSvc.RecordTx(ctx, dbTx, &domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    req.OwnerID.String(),
		Action:     domain.AuditWalletCreated,
		EntityRef:  domain.EntityRef("wallet", wallet.ID),
		AfterState: afterState,
		Timestamp:  now,
	}); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("type", string(wallet.Type)).
		Str("currency", wallet.Currency).
		Msg("wallet created")

	return wallet, nil
}

// GetWallet fetches a wallet by ID.
func (s *WalletLedgerService) GetWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

// Debit removes funds. Treasury wallets reject the direct path.
func (s *WalletLedgerService) Debit(ctx context.Context, req ports.MutationRequest) (*domain.Wallet, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	return s.mutate(ctx, req, req.Amount.Neg(), domain.AuditWalletDebited, false)
}

// Credit adds funds. Treasury wallets reject the direct path.
func (s *WalletLedgerService) Credit(ctx context.Context, req ports.MutationRequest) (*domain.Wallet, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	return s.mutate(ctx, req, req.Amount, domain.AuditWalletCredited, false)
}

// DebitWithRetry re-reads and retries version conflicts a bounded number of
// times before giving up.
func (s *WalletLedgerService) DebitWithRetry(ctx context.Context, req ports.MutationRequest) (*domain.Wallet, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	return s.mutateWithRetry(ctx, req, req.Amount.Neg(), domain.AuditWalletDebited, false)
}

// CreditWithRetry is the retrying variant of Credit.
func (s *WalletLedgerService) CreditWithRetry(ctx context.Context, req ports.MutationRequest) (*domain.Wallet, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	return s.mutateWithRetry(ctx, req, req.Amount, domain.AuditWalletCredited, false)
}

// RegisterTreasuryExecutors binds treasury mutation execution to the quorum
// coordinator. This is the only path that moves treasury funds.
func (s *WalletLedgerService) RegisterTreasuryExecutors(coordinator ports.ApprovalService) {
	coordinator.RegisterExecutor(domain.OpTreasuryDebit, s.treasuryExecutor(true))
	coordinator.RegisterExecutor(domain.OpTreasuryCredit, s.treasuryExecutor(false))
}

func (s *WalletLedgerService) treasuryExecutor(debit bool) ports.ApprovalExecutor {
	return func(ctx context.Context, request *domain.ApprovalRequest) error {
		var payload domain.TreasuryMutationPayload
		if err := json.Unmarshal(request.Payload, &payload); err != nil {
			return apperror.Validation("malformed treasury mutation payload")
		}
		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil || !amount.IsPositive() {
			return apperror.ErrInvalidAmount()
		}

		delta := amount
		action := domain.AuditWalletCredited
		if debit {
			delta = amount.Neg()
			action = domain.AuditWalletDebited
		}

		req := ports.MutationRequest{
			WalletID: payload.WalletID,
			Amount:   amount,
			ActorID:  payload.AdminID.String(),
			Reason:   payload.Reason,
		}
		_, err = s.mutateWithRetry(ctx, req, delta, action, true)
		return err
	}
}

// AdjustBalance applies a signed correction on behalf of the override
// service. Negative deltas debit, positive deltas credit.
func (s *WalletLedgerService) AdjustBalance(ctx context.Context, req ports.MutationRequest, delta decimal.Decimal) (*domain.Wallet, error) {
	if delta.IsZero() {
		return nil, apperror.ErrInvalidAmount()
	}
	return s.mutateWithRetry(ctx, req, delta, domain.AuditBalanceAdjusted, false)
}

func (s *WalletLedgerService) mutateWithRetry(ctx context.Context, req ports.MutationRequest, delta decimal.Decimal, action domain.AuditAction, allowTreasury bool) (*domain.Wallet, error) {
	var lastErr error
	for attempt := 0; attempt < maxMutationRetries; attempt++ {
		wallet, err := s.walletRepo.GetByID(ctx, req.WalletID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("read wallet: %w", err))
		}
		if wallet == nil {
			return nil, apperror.ErrWalletNotFound()
		}

		attemptReq := req
		attemptReq.ExpectedVersion = wallet.Version
		updated, err := s.mutate(ctx, attemptReq, delta, action, allowTreasury)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, apperror.ErrVersionConflict()) {
			return nil, err
		}
		lastErr = err
		metrics.VersionConflicts.Inc()
		s.log.Debug().
			Str("wallet_id", req.WalletID.String()).
			Int("attempt", attempt+1).
			Msg("version conflict, retrying mutation")
	}
	return nil, lastErr
}

// mutate performs one guarded balance write plus its audit record in a
// single database transaction.
func (s *WalletLedgerService) mutate(ctx context.Context, req ports.MutationRequest, delta decimal.Decimal, action domain.AuditAction, allowTreasury bool) (*domain.Wallet, error) {
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
	if wallet.IsTreasury() && !allowTreasury {
		return nil, apperror.ErrTreasuryDirectMutation()
	}
	if !wallet.IsActive() {
		return nil, apperror.ErrWalletNotActive()
	}
	if wallet.Version != req.ExpectedVersion {
		return nil, apperror.ErrVersionConflict()
	}

	newBalance := wallet.Balance.Add(delta)
	if newBalance.IsNegative() {
		return nil, apperror.ErrInsufficientBalance()
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance.String(), req.ExpectedVersion); err != nil {
		return nil, err
	}

	beforeState, _ := json.Marshal(map[string]any{"balance": wallet.Balance.String(), "version": wallet.Version})
	afterState, _ := json.Marshal(map[string]any{"balance": newBalance.String(), "version": wallet.Version + 1, "reason": req.Reason})
	if err := s.auditSvc.RecordTx(ctx, dbTx, &domain.AuditEvent{
		ID:          uuid.New(),
		ActorID:     req.ActorID,
		Action:      action,
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

	metrics.LedgerMutations.WithLabelValues(string(action), "ok").Inc()

	wallet.Balance = newBalance
	wallet.Version++
	wallet.UpdatedAt = s.nowFn().UTC()

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("action", string(action)).
		Str("balance", newBalance.String()).
		Int64("version", wallet.Version).
		Msg("wallet balance mutated")

	return wallet, nil
}

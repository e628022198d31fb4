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
)

// WhitelistRegistryService implements ports.WhitelistService. A destination
// becomes usable only after OTP verification plus a cooldown window, so a
// compromised account cannot add-and-drain in one session.
type WhitelistRegistryService struct {
	repo       ports.WhitelistRepository
	walletRepo ports.WalletRepository
	otpSvc     ports.OTPService
	auditSvc   ports.AuditService
	cfg        config.WhitelistConfig
	log        zerolog.Logger
	nowFn      func() time.Time
}

// NewWhitelistRegistryService creates a new whitelist registry.
func NewWhitelistRegistryService(
	repo ports.WhitelistRepository,
	walletRepo ports.WalletRepository,
	otpSvc ports.OTPService,
	auditSvc ports.AuditService,
	cfg config.WhitelistConfig,
	log zerolog.Logger,
) *WhitelistRegistryService {
	return &WhitelistRegistryService{
		repo:       repo,
		walletRepo: walletRepo,
		otpSvc:     otpSvc,
		auditSvc:   auditSvc,
		cfg:        cfg,
		log:        log,
		nowFn:      time.Now,
	}
}

// AddEntry registers a destination as PENDING and sends a verification code
// to the wallet owner.
func (s *WhitelistRegistryService) AddEntry(ctx context.Context, req ports.AddEntryRequest) (*domain.WhitelistEntry, error) {
	if req.DestinationAddress == "" {
		return nil, apperror.Validation("destination address is required")
	}
	switch req.AddressType {
	case domain.AddressTypeWallet, domain.AddressTypeBankAccount, domain.AddressTypeMobileMoney:
	default:
		return nil, apperror.Validation("unknown address type")
	}

	wallet, err := s.walletRepo.GetByID(ctx, req.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	existing, err := s.repo.GetByWalletAndAddress(ctx, req.WalletID, req.DestinationAddress)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check duplicate entry: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateWhitelistEntry()
	}

	// Rate limiting and prior-code invalidation happen inside Issue; a
	// refused challenge refuses the whole add.
	if _, err := s.otpSvc.Issue(ctx, ports.IssueOTPRequest{
		Purpose:          domain.PurposeWhitelist,
		TargetIdentifier: wallet.OwnerEmail,
	}); err != nil {
		return nil, err
	}

	entry := &domain.WhitelistEntry{
		ID:                 uuid.New(),
		WalletID:           req.WalletID,
		DestinationAddress: req.DestinationAddress,
		AddressType:        req.AddressType,
		Status:             domain.WhitelistStatusPending,
		CreatedAt:          s.nowFn().UTC(),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create whitelist entry: %w", err))
	}

	afterState, _ := json.Marshal(entry)
	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    req.ActorID,
		Action:     domain.AuditWhitelistAdded,
		EntityRef:  domain.EntityRef("whitelist", entry.ID),
		AfterState: afterState,
		Timestamp:  entry.CreatedAt,
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("wallet_id", req.WalletID.String()).
		Str("address_type", string(req.AddressType)).
		Msg("whitelist entry added, verification pending")

	return entry, nil
}

// VerifyEntry consumes the owner's challenge code and starts the cooldown
// window. Until the window passes the entry stays ineligible.
func (s *WhitelistRegistryService) VerifyEntry(ctx context.Context, entryID uuid.UUID, code string) (*domain.WhitelistEntry, error) {
	entry, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != domain.WhitelistStatusPending {
		return nil, apperror.ErrWhitelistEntryNotPending()
	}

	wallet, err := s.walletRepo.GetByID(ctx, entry.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	if err := s.otpSvc.Verify(ctx, ports.VerifyOTPRequest{
		Purpose:          domain.PurposeWhitelist,
		TargetIdentifier: wallet.OwnerEmail,
		Code:             code,
	}); err != nil {
		return nil, err
	}

	verifiedAt := s.nowFn().UTC()
	eligibleAt := verifiedAt.Add(s.cfg.Cooldown)
	ok, err := s.repo.MarkVerified(ctx, entryID, verifiedAt, eligibleAt)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark entry verified: %w", err))
	}
	if !ok {
		return nil, apperror.ErrWhitelistEntryNotPending()
	}

	entry.Status = domain.WhitelistStatusVerified
	entry.VerifiedAt = &verifiedAt
	entry.EligibleAt = &eligibleAt

	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    wallet.OwnerID.String(),
		Action:     domain.AuditWhitelistVerified,
		EntityRef:  domain.EntityRef("whitelist", entryID),
		AfterState: []byte(fmt.Sprintf(`{"eligible_at":%q}`, eligibleAt.Format(time.RFC3339))),
		Timestamp:  verifiedAt,
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entry_id", entryID.String()).
		Time("eligible_at", eligibleAt).
		Msg("whitelist entry verified, cooldown started")

	return entry, nil
}

// IsEligible reports whether the entry can receive withdrawals now.
func (s *WhitelistRegistryService) IsEligible(ctx context.Context, entryID uuid.UUID) (*domain.WhitelistEntry, bool, error) {
	entry, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, false, err
	}
	return entry, entry.EligibleForWithdrawal(s.nowFn()), nil
}

// RequestRemoval flags the entry for removal. The entry keeps its current
// eligibility until an administrator finalizes the removal.
func (s *WhitelistRegistryService) RequestRemoval(ctx context.Context, entryID uuid.UUID, actorID string) (*domain.WhitelistEntry, error) {
	entry, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	switch entry.Status {
	case domain.WhitelistStatusPending, domain.WhitelistStatusVerified:
	case domain.WhitelistStatusRemovalRequested:
		return entry, nil
	default:
		return nil, apperror.ErrWhitelistEntryTerminal()
	}

	ok, err := s.repo.UpdateStatus(ctx, entryID, entry.Status, domain.WhitelistStatusRemovalRequested)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("request entry removal: %w", err))
	}
	if !ok {
		return nil, apperror.ErrWhitelistEntryTerminal()
	}
	entry.Status = domain.WhitelistStatusRemovalRequested

	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:        uuid.New(),
		ActorID:   actorID,
		Action:    domain.AuditWhitelistRemovalRq,
		EntityRef: domain.EntityRef("whitelist", entryID),
		Timestamp: s.nowFn().UTC(),
	}); err != nil {
		return nil, err
	}

	return entry, nil
}

// FinalizeRemoval moves a flagged entry to its terminal REMOVED state.
// Administrator-only; callers enforce the role gate.
func (s *WhitelistRegistryService) FinalizeRemoval(ctx context.Context, entryID uuid.UUID, adminID string) (*domain.WhitelistEntry, error) {
	entry, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == domain.WhitelistStatusRemoved {
		return nil, apperror.ErrWhitelistEntryTerminal()
	}
	if entry.Status != domain.WhitelistStatusRemovalRequested {
		return nil, apperror.ErrIllegalStateTransition(string(entry.Status), string(domain.WhitelistStatusRemoved))
	}

	ok, err := s.repo.UpdateStatus(ctx, entryID, domain.WhitelistStatusRemovalRequested, domain.WhitelistStatusRemoved)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("finalize entry removal: %w", err))
	}
	if !ok {
		return nil, apperror.ErrWhitelistEntryTerminal()
	}
	entry.Status = domain.WhitelistStatusRemoved

	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:        uuid.New(),
		ActorID:   adminID,
		Action:    domain.AuditWhitelistRemoved,
		EntityRef: domain.EntityRef("whitelist", entryID),
		Timestamp: s.nowFn().UTC(),
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entry_id", entryID.String()).
		Str("admin_id", adminID).
		Msg("whitelist entry removed")

	return entry, nil
}

// List returns all entries for a wallet.
func (s *WhitelistRegistryService) List(ctx context.Context, walletID uuid.UUID) ([]domain.WhitelistEntry, error) {
	entries, err := s.repo.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list whitelist entries: %w", err))
	}
	return entries, nil
}

func (s *WhitelistRegistryService) getEntry(ctx context.Context, entryID uuid.UUID) (*domain.WhitelistEntry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get whitelist entry: %w", err))
	}
	if entry == nil {
		return nil, apperror.ErrWhitelistNotFound()
	}
	return entry, nil
}

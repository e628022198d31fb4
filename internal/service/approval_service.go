package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"treasury-core/config"
	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/internal/metrics"
	"treasury-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ApprovalCoordinatorService implements ports.ApprovalService. The quorum
// completion flip is a SQL compare-and-set, so the registered executor fires
// exactly once however many approvers race on the final vote.
type ApprovalCoordinatorService struct {
	repo       ports.ApprovalRepository
	otpSvc     ports.OTPService
	auditSvc   ports.AuditService
	transactor ports.DBTransactor
	cfg        config.ApprovalConfig
	log        zerolog.Logger
	nowFn      func() time.Time

	mu        sync.RWMutex
	executors map[domain.OperationType]ports.ApprovalExecutor
}

// NewApprovalCoordinatorService creates a new approval coordinator.
func NewApprovalCoordinatorService(
	repo ports.ApprovalRepository,
	otpSvc ports.OTPService,
	auditSvc ports.AuditService,
	transactor ports.DBTransactor,
	cfg config.ApprovalConfig,
	log zerolog.Logger,
) *ApprovalCoordinatorService {
	return &ApprovalCoordinatorService{
		repo:       repo,
		otpSvc:     otpSvc,
		auditSvc:   auditSvc,
		transactor: transactor,
		cfg:        cfg,
		log:        log,
		nowFn:      time.Now,
		executors:  make(map[domain.OperationType]ports.ApprovalExecutor),
	}
}

// RegisterExecutor binds the callback fired when a request of the given
// operation type reaches quorum.
func (s *ApprovalCoordinatorService) RegisterExecutor(op domain.OperationType, fn ports.ApprovalExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[op] = fn
}

func (s *ApprovalCoordinatorService) executor(op domain.OperationType) (ports.ApprovalExecutor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.executors[op]
	return fn, ok
}

// Initiate opens a new approval request and issues challenge codes to every
// required approver.
func (s *ApprovalCoordinatorService) Initiate(ctx context.Context, req ports.InitiateApprovalRequest) (*domain.ApprovalRequest, error) {
	if err := validateApprovers(req.Approvers); err != nil {
		return nil, err
	}
	if _, ok := s.executor(req.OperationType); !ok {
		return nil, apperror.ErrNoExecutor(string(req.OperationType))
	}

	now := s.nowFn().UTC()
	request := &domain.ApprovalRequest{
		ID:                 uuid.New(),
		OperationType:      req.OperationType,
		Payload:            req.Payload,
		RequiredApprovers:  req.Approvers,
		CollectedApprovals: []string{},
		Status:             domain.ApprovalStatusPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.cfg.TTL),
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create approval request: %w", err))
	}

	afterState, _ := json.Marshal(request)
	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    req.InitiatorID,
		Action:     domain.AuditApprovalInitiated,
		EntityRef:  domain.EntityRef("approval", request.ID),
		AfterState: afterState,
		Timestamp:  now,
	}); err != nil {
		return nil, err
	}

	// Each approver gets their own challenge up front.
	for _, approver := range req.Approvers {
		if _, err := s.otpSvc.Issue(ctx, ports.IssueOTPRequest{
			Purpose:          domain.PurposeApproval,
			TargetIdentifier: approver,
		}); err != nil {
			s.log.Warn().Err(err).
				Str("request_id", request.ID.String()).
				Str("approver", approver).
				Msg("approver challenge issuance failed")
		}
	}

	metrics.ApprovalRequests.WithLabelValues("initiated").Inc()
	s.log.Info().
		Str("request_id", request.ID.String()).
		Str("operation", string(req.OperationType)).
		Time("expires_at", request.ExpiresAt).
		Msg("approval request initiated")

	return request, nil
}

// Approve records one approver's vote after their challenge code verifies.
// A repeated vote by the same approver is a no-op. The approver whose vote
// completes the quorum triggers the registered executor.
func (s *ApprovalCoordinatorService) Approve(ctx context.Context, req ports.ApproveRequest) (*domain.ApprovalRequest, error) {
	request, err := s.loadPending(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if !request.HasApprover(req.Approver) {
		return nil, apperror.ErrUnknownApprover()
	}
	if request.HasApproval(req.Approver) {
		// Idempotent re-approve.
		return request, nil
	}

	if err := s.otpSvc.Verify(ctx, ports.VerifyOTPRequest{
		Purpose:          domain.PurposeApproval,
		TargetIdentifier: req.Approver,
		Code:             req.Code,
	}); err != nil {
		return nil, err
	}

	added, err := s.repo.AddApproval(ctx, req.RequestID, req.Approver)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("add approval: %w", err))
	}
	if !added {
		// Lost a race: either a duplicate vote landed first or the request
		// went terminal. Re-read and report accordingly.
		return s.loadPending(ctx, req.RequestID)
	}

	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:        uuid.New(),
		ActorID:   req.Approver,
		Action:    domain.AuditApprovalGranted,
		EntityRef: domain.EntityRef("approval", req.RequestID),
		Timestamp: s.nowFn().UTC(),
	}); err != nil {
		return nil, err
	}

	request, err = s.repo.GetByID(ctx, req.RequestID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reload approval request: %w", err))
	}
	if request == nil {
		return nil, apperror.ErrApprovalNotFound()
	}

	if len(request.CollectedApprovals) >= domain.QuorumSize {
		if err := s.complete(ctx, request); err != nil {
			return nil, err
		}
		request, err = s.repo.GetByID(ctx, req.RequestID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("reload approval request: %w", err))
		}
	}

	return request, nil
}

// complete flips the request to APPROVED and fires the executor. The flip is
// guarded in SQL; the caller that loses the race simply returns.
func (s *ApprovalCoordinatorService) complete(ctx context.Context, request *domain.ApprovalRequest) error {
	fn, ok := s.executor(request.OperationType)
	if !ok {
		return apperror.ErrNoExecutor(string(request.OperationType))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	won, err := s.repo.MarkApproved(ctx, dbTx, request.ID, domain.QuorumSize)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("mark approved: %w", err))
	}
	if !won {
		return nil
	}

	afterState, _ := json.Marshal(request.CollectedApprovals)
	if err := s.auditSvc.RecordTx(ctx, dbTx, &domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    "system",
		Action:     domain.AuditQuorumReached,
		EntityRef:  domain.EntityRef("approval", request.ID),
		AfterState: afterState,
		Timestamp:  s.nowFn().UTC(),
	}); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	metrics.ApprovalRequests.WithLabelValues("approved").Inc()

	request.Status = domain.ApprovalStatusApproved
	if err := fn(ctx, request); err != nil {
		metrics.ExecutorInvocations.WithLabelValues(string(request.OperationType), "error").Inc()
		s.log.Error().Err(err).
			Str("request_id", request.ID.String()).
			Str("operation", string(request.OperationType)).
			Msg("approved operation execution failed")
		return err
	}
	metrics.ExecutorInvocations.WithLabelValues(string(request.OperationType), "ok").Inc()

	// The execution event is written only once the executor has run, so a
	// failed callback never leaves an executed record behind.
	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    "system",
		Action:     domain.AuditTreasuryExecuted,
		EntityRef:  domain.EntityRef("approval", request.ID),
		AfterState: afterState,
		Timestamp:  s.nowFn().UTC(),
	}); err != nil {
		s.log.Warn().Err(err).
			Str("request_id", request.ID.String()).
			Msg("execution audit record failed")
	}

	s.log.Info().
		Str("request_id", request.ID.String()).
		Str("operation", string(request.OperationType)).
		Msg("approval quorum reached, operation executed")
	return nil
}

// Reject vetoes a pending request. Any single required approver can veto.
func (s *ApprovalCoordinatorService) Reject(ctx context.Context, req ports.RejectRequest) (*domain.ApprovalRequest, error) {
	request, err := s.loadPending(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if !request.HasApprover(req.Approver) {
		return nil, apperror.ErrUnknownApprover()
	}

	ok, err := s.repo.MarkRejected(ctx, req.RequestID, req.Approver, req.Reason)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark rejected: %w", err))
	}
	if !ok {
		return nil, apperror.ErrAlreadyTerminal()
	}

	if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
		ID:         uuid.New(),
		ActorID:    req.Approver,
		Action:     domain.AuditApprovalRejected,
		EntityRef:  domain.EntityRef("approval", req.RequestID),
		AfterState: []byte(fmt.Sprintf("%q", req.Reason)),
		Timestamp:  s.nowFn().UTC(),
	}); err != nil {
		return nil, err
	}

	metrics.ApprovalRequests.WithLabelValues("rejected").Inc()
	s.log.Info().
		Str("request_id", req.RequestID.String()).
		Str("rejected_by", req.Approver).
		Msg("approval request rejected")

	return s.Get(ctx, req.RequestID)
}

// Get fetches an approval request.
func (s *ApprovalCoordinatorService) Get(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get approval request: %w", err))
	}
	if request == nil {
		return nil, apperror.ErrApprovalNotFound()
	}
	return request, nil
}

// ExpireStale flips pending requests past expiry to EXPIRED.
func (s *ApprovalCoordinatorService) ExpireStale(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireStale(ctx, s.nowFn())
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("expire stale requests: %w", err))
	}

	now := s.nowFn().UTC()
	for _, id := range ids {
		if err := s.auditSvc.Record(ctx, &domain.AuditEvent{
			ID:        uuid.New(),
			ActorID:   "system",
			Action:    domain.AuditApprovalExpired,
			EntityRef: domain.EntityRef("approval", id),
			Timestamp: now,
		}); err != nil {
			return 0, err
		}
		metrics.ApprovalRequests.WithLabelValues("expired").Inc()
	}
	if len(ids) > 0 {
		metrics.SweepTransitions.WithLabelValues("approval_expiry").Add(float64(len(ids)))
		s.log.Info().Int("expired", len(ids)).Msg("stale approval requests expired")
	}
	return len(ids), nil
}

// loadPending fetches the request and rejects terminal or expired ones.
// A pending request past its expiry is flipped before reporting, so a late
// vote also advances the lifecycle.
func (s *ApprovalCoordinatorService) loadPending(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get approval request: %w", err))
	}
	if request == nil {
		return nil, apperror.ErrApprovalNotFound()
	}
	switch request.Status {
	case domain.ApprovalStatusPending:
	case domain.ApprovalStatusApproved:
		return nil, apperror.ErrAlreadyApproved()
	case domain.ApprovalStatusExpired:
		return nil, apperror.ErrAlreadyExpired()
	default:
		return nil, apperror.ErrAlreadyTerminal()
	}

	if !s.nowFn().Before(request.ExpiresAt) {
		if _, err := s.ExpireStale(ctx); err != nil {
			return nil, err
		}
		return nil, apperror.ErrAlreadyExpired()
	}
	return request, nil
}

// validateApprovers demands exactly the quorum size of distinct identifiers.
func validateApprovers(approvers []string) error {
	if len(approvers) != domain.QuorumSize {
		return apperror.ErrInvalidQuorum()
	}
	seen := make(map[string]struct{}, len(approvers))
	for _, a := range approvers {
		if a == "" {
			return apperror.ErrInvalidQuorum()
		}
		if _, dup := seen[a]; dup {
			return apperror.ErrInvalidQuorum()
		}
		seen[a] = struct{}{}
	}
	return nil
}

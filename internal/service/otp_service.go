package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"treasury-core/config"
	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/internal/metrics"
	"treasury-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const otpCodeDigits = 1000000 // 6-digit codes

// OTPAuthorityService implements ports.OTPService. Only the Argon2id hash of
// a code is stored; issuing a new challenge invalidates prior live ones for
// the same purpose and target, so exactly one code verifies at a time.
type OTPAuthorityService struct {
	repo      ports.OTPRepository
	hashSvc   ports.HashService
	deliverer ports.CodeDeliverer
	limiter   ports.RateLimitStore
	cfg       config.OTPConfig
	log       zerolog.Logger
	nowFn     func() time.Time
}

// NewOTPAuthorityService creates a new OTP authority.
func NewOTPAuthorityService(
	repo ports.OTPRepository,
	hashSvc ports.HashService,
	deliverer ports.CodeDeliverer,
	limiter ports.RateLimitStore,
	cfg config.OTPConfig,
	log zerolog.Logger,
) *OTPAuthorityService {
	return &OTPAuthorityService{
		repo:      repo,
		hashSvc:   hashSvc,
		deliverer: deliverer,
		limiter:   limiter,
		cfg:       cfg,
		log:       log,
		nowFn:     time.Now,
	}
}

// Issue creates a fresh challenge for the purpose and target, hands the code
// to the deliverer, and returns the stored challenge (hash only).
func (s *OTPAuthorityService) Issue(ctx context.Context, req ports.IssueOTPRequest) (*domain.OTPChallenge, error) {
	if req.TargetIdentifier == "" {
		return nil, apperror.Validation("target identifier is required")
	}

	if s.limiter != nil {
		key := fmt.Sprintf("%s:otp_issue", req.TargetIdentifier)
		result, err := s.limiter.Allow(ctx, key, s.cfg.IssueLimit, s.cfg.IssueLimitWindow)
		if err != nil {
			s.log.Warn().Err(err).Msg("otp issue rate limit check failed, allowing request (degraded mode)")
		} else if !result.Allowed {
			return nil, apperror.ErrRateLimitExceeded()
		}
	}

	if err := s.repo.InvalidatePrior(ctx, req.Purpose, req.TargetIdentifier); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("invalidate prior challenges: %w", err))
	}

	code, err := generateCode()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate code: %w", err))
	}
	codeHash, err := s.hashSvc.Hash(code)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash code: %w", err))
	}

	now := s.nowFn().UTC()
	challenge := &domain.OTPChallenge{
		ID:               uuid.New(),
		Purpose:          req.Purpose,
		TargetIdentifier: req.TargetIdentifier,
		CodeHash:         codeHash,
		Attempts:         0,
		MaxAttempts:      s.cfg.MaxAttempts,
		Consumed:         false,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.TTL),
	}
	if err := s.repo.Create(ctx, challenge); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create challenge: %w", err))
	}

	metrics.OTPIssued.WithLabelValues(string(req.Purpose)).Inc()

	// Fire-and-forget: delivery failure never unwinds issuance.
	go func() {
		deliverCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.deliverer.Deliver(deliverCtx, req.TargetIdentifier, req.Purpose, code); err != nil {
			s.log.Error().Err(err).
				Str("challenge_id", challenge.ID.String()).
				Str("purpose", string(req.Purpose)).
				Msg("code delivery failed")
		}
	}()

	s.log.Info().
		Str("challenge_id", challenge.ID.String()).
		Str("purpose", string(req.Purpose)).
		Time("expires_at", challenge.ExpiresAt).
		Msg("otp challenge issued")

	return challenge, nil
}

// Verify checks the submitted code against the live challenge for the
// purpose and target, consuming the challenge on success. Every call spends
// one attempt; a correct code after the budget is gone no longer verifies.
func (s *OTPAuthorityService) Verify(ctx context.Context, req ports.VerifyOTPRequest) error {
	challenge, err := s.repo.GetActiveByTarget(ctx, req.Purpose, req.TargetIdentifier)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("load challenge: %w", err))
	}
	if challenge == nil {
		metrics.OTPValidations.WithLabelValues("not_found").Inc()
		return apperror.ErrOTPNotFound()
	}

	if challenge.ExpiredAt(s.nowFn()) {
		metrics.OTPValidations.WithLabelValues("expired").Inc()
		return apperror.ErrOTPExpired()
	}

	ok, err := s.repo.IncrementAttempts(ctx, challenge.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("increment attempts: %w", err))
	}
	if !ok {
		metrics.OTPValidations.WithLabelValues("exhausted").Inc()
		return apperror.ErrOTPAttemptsExceeded()
	}

	match, err := s.hashSvc.Verify(req.Code, challenge.CodeHash)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("verify code hash: %w", err))
	}
	if !match {
		metrics.OTPValidations.WithLabelValues("invalid").Inc()
		return apperror.ErrOTPInvalidCode()
	}

	consumed, err := s.repo.Consume(ctx, challenge.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("consume challenge: %w", err))
	}
	if !consumed {
		metrics.OTPValidations.WithLabelValues("consumed").Inc()
		return apperror.ErrOTPConsumed()
	}

	metrics.OTPValidations.WithLabelValues("ok").Inc()
	return nil
}

// CleanupExpired deletes challenges past expiry and consumed leftovers.
func (s *OTPAuthorityService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.nowFn())
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("delete expired challenges: %w", err))
	}
	if n > 0 {
		metrics.SweepTransitions.WithLabelValues("otp_cleanup").Add(float64(n))
		s.log.Info().Int64("removed", n).Msg("expired otp challenges removed")
	}
	return n, nil
}

// generateCode returns a uniformly random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpCodeDigits))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

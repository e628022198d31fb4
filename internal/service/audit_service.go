package service

import (
	"context"
	"fmt"

	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// AuditTrailService implements ports.AuditService. Writes are synchronous:
// a mutation whose audit record cannot be persisted does not commit.
type AuditTrailService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditTrailService creates a new audit trail service.
func NewAuditTrailService(repo ports.AuditRepository, log zerolog.Logger) *AuditTrailService {
	return &AuditTrailService{repo: repo, log: log}
}

// Record persists one audit event on its own connection.
func (s *AuditTrailService) Record(ctx context.Context, event *domain.AuditEvent) error {
	if err := s.repo.Append(ctx, event); err != nil {
		return apperror.InternalError(fmt.Errorf("append audit event: %w", err))
	}
	s.logEvent(event)
	return nil
}

// RecordTx persists one audit event inside the caller's transaction.
func (s *AuditTrailService) RecordTx(ctx context.Context, tx pgx.Tx, event *domain.AuditEvent) error {
	if err := s.repo.AppendTx(ctx, tx, event); err != nil {
		return apperror.InternalError(fmt.Errorf("append audit event in tx: %w", err))
	}
	s.logEvent(event)
	return nil
}

// Query returns audit events matching the filter, newest first.
func (s *AuditTrailService) Query(ctx context.Context, params ports.AuditQueryParams) ([]domain.AuditEvent, int64, error) {
	events, total, err := s.repo.Query(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("query audit events: %w", err))
	}
	return events, total, nil
}

func (s *AuditTrailService) logEvent(event *domain.AuditEvent) {
	s.log.Info().
		Str("action", string(event.Action)).
		Str("entity_ref", event.EntityRef).
		Str("actor_id", event.ActorID).
		Str("ip", event.SourceIP).
		Msg("audit")
}

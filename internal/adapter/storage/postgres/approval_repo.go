package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"treasury-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ApprovalRepo implements ports.ApprovalRepository. Vote insertion and the
// quorum completion flip are single guarded statements, so concurrent
// approvers cannot double-count and only one caller wins the completion.
type ApprovalRepo struct {
	pool Pool
}

// NewApprovalRepo creates a new ApprovalRepo.
func NewApprovalRepo(pool Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

const approvalColumns = `id, operation_type, payload, required_approvers, collected_approvals, status, rejected_by, rejection_reason, created_at, expires_at`

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	a := &domain.ApprovalRequest{}
	err := row.Scan(
		&a.ID, &a.OperationType, &a.Payload, &a.RequiredApprovers, &a.CollectedApprovals,
		&a.Status, &a.RejectedBy, &a.RejectionReason, &a.CreatedAt, &a.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new approval request.
func (r *ApprovalRepo) Create(ctx context.Context, req *domain.ApprovalRequest) error {
	query := `INSERT INTO approval_requests (id, operation_type, payload, required_approvers, collected_approvals, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.OperationType, req.Payload, req.RequiredApprovers,
		req.CollectedApprovals, req.Status, req.CreatedAt, req.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

// GetByID fetches an approval request by its UUID.
func (r *ApprovalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`

	a, err := scanApproval(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get approval request by id: %w", err)
	}
	return a, nil
}

// ListPending fetches all pending requests, oldest first.
func (r *ApprovalRepo) ListPending(ctx context.Context) ([]domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE status = 'PENDING' ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending approval requests: %w", err)
	}
	defer rows.Close()

	var reqs []domain.ApprovalRequest
	for rows.Next() {
		a := domain.ApprovalRequest{}
		err := rows.Scan(
			&a.ID, &a.OperationType, &a.Payload, &a.RequiredApprovers, &a.CollectedApprovals,
			&a.Status, &a.RejectedBy, &a.RejectionReason, &a.CreatedAt, &a.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan approval request row: %w", err)
		}
		reqs = append(reqs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval request rows: %w", err)
	}
	return reqs, nil
}

// AddApproval appends the approver to the collected set while the request is
// pending and the approver is not yet recorded. Returns false otherwise.
func (r *ApprovalRepo) AddApproval(ctx context.Context, id uuid.UUID, approver string) (bool, error) {
	query := `UPDATE approval_requests
		SET collected_approvals = array_append(collected_approvals, $2)
		WHERE id = $1 AND status = 'PENDING' AND NOT ($2 = ANY(collected_approvals))`

	tag, err := r.pool.Exec(ctx, query, id, approver)
	if err != nil {
		return false, fmt.Errorf("add approval: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkApproved flips PENDING to APPROVED when the collected set has reached
// quorum. The status guard makes the flip exactly-once under concurrency.
func (r *ApprovalRepo) MarkApproved(ctx context.Context, tx pgx.Tx, id uuid.UUID, quorum int) (bool, error) {
	query := `UPDATE approval_requests SET status = 'APPROVED'
		WHERE id = $1 AND status = 'PENDING' AND cardinality(collected_approvals) >= $2`

	tag, err := tx.Exec(ctx, query, id, quorum)
	if err != nil {
		return false, fmt.Errorf("mark approval approved: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRejected flips PENDING to REJECTED recording the vetoing approver.
func (r *ApprovalRepo) MarkRejected(ctx context.Context, id uuid.UUID, rejectedBy, reason string) (bool, error) {
	query := `UPDATE approval_requests SET status = 'REJECTED', rejected_by = $2, rejection_reason = $3
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, id, rejectedBy, reason)
	if err != nil {
		return false, fmt.Errorf("mark approval rejected: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireStale flips pending requests past expiry to EXPIRED and returns the
// affected IDs. Concurrent sweepers each claim a disjoint set.
func (r *ApprovalRepo) ExpireStale(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `UPDATE approval_requests SET status = 'EXPIRED'
		WHERE status = 'PENDING' AND expires_at <= $1 RETURNING id`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("expire stale approval requests: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired approval id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired approval ids: %w", err)
	}
	return ids, nil
}

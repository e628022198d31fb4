package postgres

import (
	"context"
	"fmt"
	"strings"

	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository. The table is append-only; no
// update or delete statement exists in this file on purpose.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

const auditInsert = `INSERT INTO audit_events (id, actor_id, action, entity_ref, before_state, after_state, source_ip, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Append writes one audit event on its own connection.
func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	_, err := r.pool.Exec(ctx, auditInsert,
		e.ID, e.ActorID, e.Action, e.EntityRef,
		e.BeforeState, e.AfterState, e.SourceIP, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// AppendTx writes one audit event inside the caller's transaction so the
// record commits or rolls back with the mutation it describes.
func (r *AuditRepo) AppendTx(ctx context.Context, tx pgx.Tx, e *domain.AuditEvent) error {
	_, err := tx.Exec(ctx, auditInsert,
		e.ID, e.ActorID, e.Action, e.EntityRef,
		e.BeforeState, e.AfterState, e.SourceIP, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event in tx: %w", err)
	}
	return nil
}

// Query fetches audit events matching the filter, newest first.
func (r *AuditRepo) Query(ctx context.Context, params ports.AuditQueryParams) ([]domain.AuditEvent, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.EntityRef != nil {
		conditions = append(conditions, fmt.Sprintf("entity_ref = $%d", argIdx))
		args = append(args, *params.EntityRef)
		argIdx++
	}
	if params.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argIdx))
		args = append(args, *params.ActorID)
		argIdx++
	}
	if params.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, *params.Action)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_events %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	dataQuery := fmt.Sprintf(`SELECT id, actor_id, action, entity_ref, before_state, after_state, source_ip, created_at
		FROM audit_events %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, pageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		e := domain.AuditEvent{}
		err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.EntityRef,
			&e.BeforeState, &e.AfterState, &e.SourceIP, &e.Timestamp,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit event rows: %w", err)
	}
	return events, total, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"treasury-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApproval() *domain.ApprovalRequest {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.ApprovalRequest{
		ID:                 uuid.New(),
		OperationType:      domain.OpTreasuryDebit,
		Payload:            json.RawMessage(`{"amount":"100"}`),
		RequiredApprovers:  []string{"a@corp.io", "b@corp.io", "c@corp.io"},
		CollectedApprovals: []string{},
		Status:             domain.ApprovalStatusPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(time.Hour),
	}
}

func TestApprovalRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApprovalRepo(mock)
	a := newTestApproval()

	mock.ExpectExec("INSERT INTO approval_requests").
		WithArgs(a.ID, a.OperationType, a.Payload, a.RequiredApprovers,
			a.CollectedApprovals, a.Status, a.CreatedAt, a.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApprovalRepo(mock)
	a := newTestApproval()

	cols := []string{"id", "operation_type", "payload", "required_approvers", "collected_approvals", "status", "rejected_by", "rejection_reason", "created_at", "expires_at"}
	mock.ExpectQuery("SELECT .+ FROM approval_requests WHERE id").
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			a.ID, a.OperationType, []byte(a.Payload), a.RequiredApprovers,
			a.CollectedApprovals, a.Status, nil, nil, a.CreatedAt, a.ExpiresAt,
		))

	result, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.RequiredApprovers, result.RequiredApprovers)
	assert.Equal(t, domain.ApprovalStatusPending, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepo_AddApproval(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApprovalRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE approval_requests").
		WithArgs(id, "a@corp.io").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.AddApproval(context.Background(), id, "a@corp.io")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepo_AddApproval_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApprovalRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE approval_requests").
		WithArgs(id, "a@corp.io").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.AddApproval(context.Background(), id, "a@corp.io")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepo_MarkApproved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApprovalRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE approval_requests SET status").
		WithArgs(id, domain.QuorumSize).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	ok, err := repo.MarkApproved(context.Background(), tx, id, domain.QuorumSize)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepo_MarkRejected_AlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApprovalRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE approval_requests SET status").
		WithArgs(id, "b@corp.io", "amount too large").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.MarkRejected(context.Background(), id, "b@corp.io", "amount too large")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepo_ExpireStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApprovalRepo(mock)
	now := time.Now()
	id1, id2 := uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE approval_requests SET status").
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id1).AddRow(id2))

	ids, err := repo.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{id1, id2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"errors"
	"testing"

	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminOverride_SmallAdjustmentIsDirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wallet := f.fund(t, f.createWallet(t, domain.WalletTypeUser, "owner@corp.io"), "500")
	adminID := uuid.New()

	// Below the threshold no challenge code is demanded.
	result, err := f.adminSvc.AdjustBalance(ctx, ports.AdjustBalanceRequest{
		WalletID: wallet.ID,
		Amount:   dec(t, "999.99"),
		Reason:   "reconciliation",
		AdminID:  adminID,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Wallet)
	assert.Nil(t, result.Approval)
	assert.True(t, result.Wallet.Balance.Equal(dec(t, "1499.99")))

	// Negative amounts debit.
	result, err = f.adminSvc.AdjustBalance(ctx, ports.AdjustBalanceRequest{
		WalletID: wallet.ID,
		Amount:   dec(t, "-499.99"),
		Reason:   "reconciliation",
		AdminID:  adminID,
	})
	require.NoError(t, err)
	assert.True(t, result.Wallet.Balance.Equal(dec(t, "1000")))

	assert.Equal(t, 2, f.audits.countByAction(domain.AuditBalanceAdjusted))
}

func TestAdminOverride_LargeAdjustmentDemandsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wallet := f.createWallet(t, domain.WalletTypeUser, "owner@corp.io")
	adminID := uuid.New()

	f.deliverer.reset(adminID.String())
	_, err := f.adminSvc.AdjustBalance(ctx, ports.AdjustBalanceRequest{
		WalletID: wallet.ID,
		Amount:   dec(t, "1000"),
		Reason:   "funding",
		AdminID:  adminID,
	})
	require.True(t, errors.Is(err, apperror.ErrOTPRequired()))

	// The first call issued a challenge; the retry carries the code.
	code := f.deliverer.code(t, adminID.String())
	result, err := f.adminSvc.AdjustBalance(ctx, ports.AdjustBalanceRequest{
		WalletID: wallet.ID,
		Amount:   dec(t, "1000"),
		Reason:   "funding",
		AdminID:  adminID,
		Code:     code,
	})
	require.NoError(t, err)
	assert.True(t, result.Wallet.Balance.Equal(dec(t, "1000")))
}

func TestAdminOverride_LargeAdjustmentWrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wallet := f.createWallet(t, domain.WalletTypeUser, "owner@corp.io")
	adminID := uuid.New()

	f.deliverer.reset(adminID.String())
	_, err := f.adminSvc.AdjustBalance(ctx, ports.AdjustBalanceRequest{
		WalletID: wallet.ID,
		Amount:   dec(t, "5000"),
		AdminID:  adminID,
	})
	require.True(t, errors.Is(err, apperror.ErrOTPRequired()))

	code := f.deliverer.code(t, adminID.String())
	_, err = f.adminSvc.AdjustBalance(ctx, ports.AdjustBalanceRequest{
		WalletID: wallet.ID,
		Amount:   dec(t, "5000"),
		AdminID:  adminID,
		Code:     wrongCode(code),
	})
	assert.True(t, errors.Is(err, apperror.ErrOTPInvalidCode()))

	current, err := f.ledgerSvc.GetWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.IsZero())
}

func TestAdminOverride_ZeroAmount(t *testing.T) {
	f := newFixture(t)
	wallet := f.createWallet(t, domain.WalletTypeUser, "owner@corp.io")

	_, err := f.adminSvc.AdjustBalance(context.Background(), ports.AdjustBalanceRequest{
		WalletID: wallet.ID,
		Amount:   dec(t, "0"),
		AdminID:  uuid.New(),
	})
	assert.True(t, errors.Is(err, apperror.ErrInvalidAmount()))
}

func TestAdminOverride_TreasuryRoutesThroughQuorum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	treasury := f.fund(t, f.createWallet(t, domain.WalletTypeTreasury, "treasury@corp.io"), "10000")
	adminID := uuid.New()

	result, err := f.adminSvc.AdjustBalance(ctx, ports.AdjustBalanceRequest{
		WalletID:  treasury.ID,
		Amount:    dec(t, "-2500"),
		Reason:    "quarterly disbursement",
		AdminID:   adminID,
		Approvers: testApprovers,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Wallet)
	require.NotNil(t, result.Approval)
	assert.Equal(t, domain.OpTreasuryDebit, result.Approval.OperationType)
	assert.Equal(t, domain.ApprovalStatusPending, result.Approval.Status)

	// Nothing moves until quorum.
	current, err := f.ledgerSvc.GetWallet(ctx, treasury.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(dec(t, "10000")))

	for _, approver := range testApprovers {
		_, err := approveWithDeliveredCode(t, f, result.Approval.ID, approver)
		require.NoError(t, err, "approver %s", approver)
	}

	current, err = f.ledgerSvc.GetWallet(ctx, treasury.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(dec(t, "7500")))
	assert.Equal(t, 1, f.audits.countByAction(domain.AuditTreasuryExecuted))
	assert.Equal(t, 1, f.audits.countByAction(domain.AuditWalletDebited))
}

func TestAdminOverride_TreasuryCreditThroughQuorum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	treasury := f.createWallet(t, domain.WalletTypeTreasury, "treasury@corp.io")

	result, err := f.adminSvc.AdjustBalance(ctx, ports.AdjustBalanceRequest{
		WalletID:  treasury.ID,
		Amount:    dec(t, "800"),
		Reason:    "capital injection",
		AdminID:   uuid.New(),
		Approvers: testApprovers,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Approval)
	assert.Equal(t, domain.OpTreasuryCredit, result.Approval.OperationType)

	for _, approver := range testApprovers {
		_, err := approveWithDeliveredCode(t, f, result.Approval.ID, approver)
		require.NoError(t, err)
	}

	current, err := f.ledgerSvc.GetWallet(ctx, treasury.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(dec(t, "800")))
}

func TestAdminOverride_TreasuryWithoutApprovers(t *testing.T) {
	f := newFixture(t)
	treasury := f.createWallet(t, domain.WalletTypeTreasury, "treasury@corp.io")

	_, err := f.adminSvc.AdjustBalance(context.Background(), ports.AdjustBalanceRequest{
		WalletID: treasury.ID,
		Amount:   dec(t, "100"),
		AdminID:  uuid.New(),
	})
	assert.True(t, errors.Is(err, apperror.ErrInvalidQuorum()))
}

func TestAdminOverride_SetWalletStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wallet := f.createWallet(t, domain.WalletTypeUser, "owner@corp.io")
	adminID := uuid.New()

	locked, err := f.adminSvc.SetWalletStatus(ctx, ports.SetWalletStatusRequest{
		WalletID: wallet.ID,
		Status:   domain.WalletStatusLocked,
		AdminID:  adminID,
		Reason:   "fraud review",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStatusLocked, locked.Status)
	assert.EqualValues(t, wallet.Version+1, locked.Version)

	suspended, err := f.adminSvc.SetWalletStatus(ctx, ports.SetWalletStatusRequest{
		WalletID: wallet.ID,
		Status:   domain.WalletStatusSuspended,
		AdminID:  adminID,
		Reason:   "fraud confirmed",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStatusSuspended, suspended.Status)

	// SUSPENDED only leaves via reinstatement to ACTIVE.
	_, err = f.adminSvc.SetWalletStatus(ctx, ports.SetWalletStatusRequest{
		WalletID: wallet.ID,
		Status:   domain.WalletStatusFrozen,
		AdminID:  adminID,
	})
	assert.True(t, errors.Is(err, apperror.ErrIllegalStateTransition("SUSPENDED", "FROZEN")))

	active, err := f.adminSvc.SetWalletStatus(ctx, ports.SetWalletStatusRequest{
		WalletID: wallet.ID,
		Status:   domain.WalletStatusActive,
		AdminID:  adminID,
		Reason:   "cleared",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStatusActive, active.Status)

	assert.Equal(t, 3, f.audits.countByAction(domain.AuditWalletStatusSet))
}

func TestAdminOverride_SetWalletStatusValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.adminSvc.SetWalletStatus(ctx, ports.SetWalletStatusRequest{
		WalletID: uuid.New(),
		Status:   domain.WalletStatus("DORMANT"),
		AdminID:  uuid.New(),
	})
	assert.Error(t, err, "unknown status")

	_, err = f.adminSvc.SetWalletStatus(ctx, ports.SetWalletStatusRequest{
		WalletID: uuid.New(),
		Status:   domain.WalletStatusLocked,
		AdminID:  uuid.New(),
	})
	assert.True(t, errors.Is(err, apperror.ErrWalletNotFound()))
}

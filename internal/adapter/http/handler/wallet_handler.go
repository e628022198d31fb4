package handler

import (
	"context"

	"treasury-core/internal/adapter/http/dto"
	"treasury-core/internal/adapter/http/middleware"
	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/pkg/apperror"
	"treasury-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletHandler handles wallet provisioning, reads, mutations and
// withdrawals.
type WalletHandler struct {
	ledgerSvc     ports.LedgerService
	withdrawalSvc ports.WithdrawalService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService, withdrawalSvc ports.WithdrawalService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc, withdrawalSvc: withdrawalSvc}
}

// CreateWallet handles POST /api/v1/wallets.
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		response.Error(c, apperror.Validation("owner_id must be a UUID"))
		return
	}

	wallet, err := h.ledgerSvc.CreateWallet(c.Request.Context(), ports.CreateWalletRequest{
		OwnerID:    ownerID,
		OwnerEmail: req.OwnerEmail,
		Type:       domain.WalletType(req.Type),
		Currency:   req.Currency,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromWallet(wallet))
}

// GetWallet handles GET /api/v1/wallets/:id.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	wallet, err := h.ledgerSvc.GetWallet(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWallet(wallet))
}

// Debit handles POST /api/v1/wallets/:id/debit.
func (h *WalletHandler) Debit(c *gin.Context) {
	h.mutate(c, h.ledgerSvc.Debit)
}

// Credit handles POST /api/v1/wallets/:id/credit.
func (h *WalletHandler) Credit(c *gin.Context) {
	h.mutate(c, h.ledgerSvc.Credit)
}

// Withdraw handles POST /api/v1/wallets/:id/withdrawals. An empty code means
// the caller is asking for a challenge; the service answers OTP_007 and the
// caller retries with the delivered code.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	var req dto.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entryID, err := uuid.Parse(req.EntryID)
	if err != nil {
		response.Error(c, apperror.Validation("entry_id must be a UUID"))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount must be a decimal string"))
		return
	}

	wallet, err := h.withdrawalSvc.RequestWithdrawal(c.Request.Context(), ports.WithdrawalRequest{
		WalletID: walletID,
		EntryID:  entryID,
		Amount:   amount,
		Code:     req.Code,
		ActorID:  actorID(c),
		SourceIP: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWallet(wallet))
}

func (h *WalletHandler) mutate(c *gin.Context, op func(context.Context, ports.MutationRequest) (*domain.Wallet, error)) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	var req dto.MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount must be a decimal string"))
		return
	}

	wallet, err := op(c.Request.Context(), ports.MutationRequest{
		WalletID:        walletID,
		Amount:          amount,
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         actorID(c),
		Reason:          req.Reason,
		SourceIP:        c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWallet(wallet))
}

// actorID resolves the authenticated admin identity for audit attribution.
func actorID(c *gin.Context) string {
	if v, ok := c.Get(middleware.CtxAdminID); ok {
		if id, okCast := v.(uuid.UUID); okCast {
			return id.String()
		}
	}
	return "unknown"
}

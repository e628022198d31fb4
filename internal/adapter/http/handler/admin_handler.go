package handler

import (
	"strconv"
	"time"

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

// AdminHandler handles privileged override and audit endpoints.
type AdminHandler struct {
	adminSvc     ports.AdminService
	whitelistSvc ports.WhitelistService
	auditSvc     ports.AuditService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminSvc ports.AdminService, whitelistSvc ports.WhitelistService, auditSvc ports.AuditService) *AdminHandler {
	return &AdminHandler{adminSvc: adminSvc, whitelistSvc: whitelistSvc, auditSvc: auditSvc}
}

// AdjustBalance handles POST /api/v1/admin/wallets/:id/adjust. Treasury
// wallets come back with a pending approval instead of a mutated wallet.
func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	var req dto.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount must be a signed decimal string"))
		return
	}

	result, err := h.adminSvc.AdjustBalance(c.Request.Context(), ports.AdjustBalanceRequest{
		WalletID:  walletID,
		Amount:    amount,
		Reason:    req.Reason,
		AdminID:   adminUUID(c),
		Code:      req.Code,
		Approvers: req.Approvers,
		SourceIP:  c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.AdjustBalanceResponse{}
	if result.Wallet != nil {
		w := dto.FromWallet(result.Wallet)
		resp.Wallet = &w
	}
	if result.Approval != nil {
		a := dto.FromApproval(result.Approval)
		resp.Approval = &a
	}

	if result.Approval != nil {
		response.Created(c, resp)
		return
	}
	response.OK(c, resp)
}

// SetWalletStatus handles PUT /api/v1/admin/wallets/:id/status.
func (h *AdminHandler) SetWalletStatus(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	var req dto.WalletStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	wallet, err := h.adminSvc.SetWalletStatus(c.Request.Context(), ports.SetWalletStatusRequest{
		WalletID: walletID,
		Status:   domain.WalletStatus(req.Status),
		AdminID:  adminUUID(c),
		Reason:   req.Reason,
		SourceIP: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWallet(wallet))
}

// FinalizeRemoval handles POST /api/v1/admin/whitelist/:id/finalize-removal.
func (h *AdminHandler) FinalizeRemoval(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("entry id must be a UUID"))
		return
	}

	entry, err := h.whitelistSvc.FinalizeRemoval(c.Request.Context(), entryID, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWhitelistEntry(entry))
}

// QueryAudit handles GET /api/v1/admin/audit with optional filters
// entity_ref, actor_id, action, from, to plus page and page_size.
func (h *AdminHandler) QueryAudit(c *gin.Context) {
	params := ports.AuditQueryParams{
		Page:     intQuery(c, "page", 1),
		PageSize: intQuery(c, "page_size", 50),
	}

	if v := c.Query("entity_ref"); v != "" {
		params.EntityRef = &v
	}
	if v := c.Query("actor_id"); v != "" {
		params.ActorID = &v
	}
	if v := c.Query("action"); v != "" {
		action := domain.AuditAction(v)
		params.Action = &action
	}
	if v := c.Query("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, apperror.Validation("from must be RFC3339"))
			return
		}
		params.From = &ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.Error(c, apperror.Validation("to must be RFC3339"))
			return
		}
		params.To = &ts
	}

	events, total, err := h.auditSvc.Query(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AuditEventResponse, 0, len(events))
	for i := range events {
		items = append(items, dto.FromAuditEvent(&events[i]))
	}

	totalPages := int(total) / params.PageSize
	if int(total)%params.PageSize != 0 {
		totalPages++
	}

	response.OK(c, dto.AuditListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	})
}

// adminUUID resolves the authenticated admin identity from the context.
func adminUUID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(middleware.CtxAdminID); ok {
		if id, okCast := v.(uuid.UUID); okCast {
			return id
		}
	}
	return uuid.Nil
}

func intQuery(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

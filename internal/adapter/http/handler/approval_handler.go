package handler

import (
	"encoding/json"

	"treasury-core/internal/adapter/http/dto"
	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/pkg/apperror"
	"treasury-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalHandler handles the multi-party approval endpoints.
type ApprovalHandler struct {
	approvalSvc ports.ApprovalService
}

// NewApprovalHandler creates a new ApprovalHandler.
func NewApprovalHandler(approvalSvc ports.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalSvc: approvalSvc}
}

// Initiate handles POST /api/v1/approvals.
func (h *ApprovalHandler) Initiate(c *gin.Context) {
	var req dto.InitiateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	walletID, err := uuid.Parse(req.Payload.WalletID)
	if err != nil {
		response.Error(c, apperror.Validation("payload.wallet_id must be a UUID"))
		return
	}
	if _, err := decimal.NewFromString(req.Payload.Amount); err != nil {
		response.Error(c, apperror.Validation("payload.amount must be a decimal string"))
		return
	}

	adminID := adminUUID(c)
	payload, err := json.Marshal(domain.TreasuryMutationPayload{
		WalletID: walletID,
		Amount:   req.Payload.Amount,
		Reason:   req.Payload.Reason,
		AdminID:  adminID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	approval, err := h.approvalSvc.Initiate(c.Request.Context(), ports.InitiateApprovalRequest{
		OperationType: domain.OperationType(req.OperationType),
		Payload:       payload,
		Approvers:     req.Approvers,
		InitiatorID:   adminID.String(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromApproval(approval))
}

// Approve handles POST /api/v1/approvals/:id/approve.
func (h *ApprovalHandler) Approve(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("approval id must be a UUID"))
		return
	}

	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	approval, err := h.approvalSvc.Approve(c.Request.Context(), ports.ApproveRequest{
		RequestID: requestID,
		Approver:  req.Approver,
		Code:      req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromApproval(approval))
}

// Reject handles POST /api/v1/approvals/:id/reject.
func (h *ApprovalHandler) Reject(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("approval id must be a UUID"))
		return
	}

	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	approval, err := h.approvalSvc.Reject(c.Request.Context(), ports.RejectRequest{
		RequestID: requestID,
		Approver:  req.Approver,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromApproval(approval))
}

// Get handles GET /api/v1/approvals/:id.
func (h *ApprovalHandler) Get(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("approval id must be a UUID"))
		return
	}

	approval, err := h.approvalSvc.Get(c.Request.Context(), requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromApproval(approval))
}

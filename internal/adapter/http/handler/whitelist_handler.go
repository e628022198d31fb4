package handler

import (
	"treasury-core/internal/adapter/http/dto"
	"treasury-core/internal/core/domain"
	"treasury-core/internal/core/ports"
	"treasury-core/pkg/apperror"
	"treasury-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WhitelistHandler handles withdrawal destination whitelisting endpoints.
type WhitelistHandler struct {
	whitelistSvc ports.WhitelistService
}

// NewWhitelistHandler creates a new WhitelistHandler.
func NewWhitelistHandler(whitelistSvc ports.WhitelistService) *WhitelistHandler {
	return &WhitelistHandler{whitelistSvc: whitelistSvc}
}

// Add handles POST /api/v1/wallets/:id/whitelist.
func (h *WhitelistHandler) Add(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	var req dto.WhitelistAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	entry, err := h.whitelistSvc.AddEntry(c.Request.Context(), ports.AddEntryRequest{
		WalletID:           walletID,
		DestinationAddress: req.DestinationAddress,
		AddressType:        domain.AddressType(req.AddressType),
		ActorID:            actorID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromWhitelistEntry(entry))
}

// Verify handles POST /api/v1/whitelist/:id/verify.
func (h *WhitelistHandler) Verify(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("entry id must be a UUID"))
		return
	}

	var req dto.WhitelistVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entry, err := h.whitelistSvc.VerifyEntry(c.Request.Context(), entryID, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWhitelistEntry(entry))
}

// Eligibility handles GET /api/v1/whitelist/:id/eligibility.
func (h *WhitelistHandler) Eligibility(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("entry id must be a UUID"))
		return
	}

	entry, eligible, err := h.whitelistSvc.IsEligible(c.Request.Context(), entryID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.EligibilityResponse{
		Entry:    dto.FromWhitelistEntry(entry),
		Eligible: eligible,
	})
}

// RequestRemoval handles POST /api/v1/whitelist/:id/removal-request.
func (h *WhitelistHandler) RequestRemoval(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("entry id must be a UUID"))
		return
	}

	entry, err := h.whitelistSvc.RequestRemoval(c.Request.Context(), entryID, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWhitelistEntry(entry))
}

// List handles GET /api/v1/wallets/:id/whitelist.
func (h *WhitelistHandler) List(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	entries, err := h.whitelistSvc.List(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.WhitelistEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, dto.FromWhitelistEntry(&entries[i]))
	}
	response.OK(c, out)
}

package handler

import (
	"errors"
	"net/http"

	"pix-gateway/internal/adapter/http/dto"
	"pix-gateway/internal/adapter/http/middleware"
	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"
	"pix-gateway/pkg/apperror"
	"pix-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChargeHandler serves charge and deposit endpoints.
type ChargeHandler struct {
	chargeSvc ports.ChargeService
}

// NewChargeHandler creates a new ChargeHandler.
func NewChargeHandler(chargeSvc ports.ChargeService) *ChargeHandler {
	return &ChargeHandler{chargeSvc: chargeSvc}
}

// CreateCharge handles POST /api/v1/charges.
func (h *ChargeHandler) CreateCharge(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateChargeRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.CustomerDocument != nil {
		doc := dto.DigitsOnly(*req.CustomerDocument)
		req.CustomerDocument = &doc
	}

	txn, err := h.chargeSvc.CreateCharge(c.Request.Context(), ports.ChargeInput{
		MerchantID:        merchantID,
		Amount:            req.Amount,
		Direction:         domain.Direction(req.Direction),
		Description:       req.Description,
		CustomerName:      req.CustomerName,
		CustomerDocument:  req.CustomerDocument,
		ExternalReference: req.ExternalReference,
		ReferenceID:       req.ReferenceID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewChargeResponse(txn))
}

// GetCharge handles GET /api/v1/charges/:id.
func (h *ChargeHandler) GetCharge(c *gin.Context) {
	merchantID, id, ok := h.scope(c, "charge")
	if !ok {
		return
	}

	txn, err := h.chargeSvc.GetCharge(c.Request.Context(), merchantID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewChargeResponse(txn))
}

// CreateDeposit handles POST /api/v1/deposits.
func (h *ChargeHandler) CreateDeposit(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateDepositRequest
	if !bindJSON(c, &req) {
		return
	}

	dep, err := h.chargeSvc.CreateDeposit(c.Request.Context(), ports.ChargeInput{
		MerchantID:        merchantID,
		Amount:            req.Amount,
		Direction:         domain.DirectionCashIn,
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
		ReferenceID:       req.ReferenceID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewDepositResponse(dep))
}

// GetDeposit handles GET /api/v1/deposits/:id.
func (h *ChargeHandler) GetDeposit(c *gin.Context) {
	merchantID, id, ok := h.scope(c, "deposit")
	if !ok {
		return
	}

	dep, err := h.chargeSvc.GetDeposit(c.Request.Context(), merchantID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewDepositResponse(dep))
}

// CancelDeposit handles POST /api/v1/deposits/:id/cancel.
func (h *ChargeHandler) CancelDeposit(c *gin.Context) {
	merchantID, id, ok := h.scope(c, "deposit")
	if !ok {
		return
	}

	dep, err := h.chargeSvc.CancelDeposit(c.Request.Context(), merchantID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewDepositResponse(dep))
}

// scope reads the authenticated merchant and the :id path parameter.
func (h *ChargeHandler) scope(c *gin.Context, entity string) (uuid.UUID, uuid.UUID, bool) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound(entity))
		return uuid.Nil, uuid.Nil, false
	}
	return merchantID, id, true
}

// bindJSON decodes and sanitises the body into req, answering the request on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, err)
			return false
		}
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

package handler

import (
	"time"

	"aura-device-cloud/internal/adapter/http/dto"
	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/pkg/apperror"
	"aura-device-cloud/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler handles asynchronous gateway callback endpoints. The
// callbacks are public; authentication is the gateway signature itself.
type PaymentHandler struct {
	callbackSvc ports.PaymentCallbackService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(callbackSvc ports.PaymentCallbackService) *PaymentHandler {
	return &PaymentHandler{callbackSvc: callbackSvc}
}

// RevpayCallback handles POST /api/v1/payments/revpay/callback.
func (h *PaymentHandler) RevpayCallback(c *gin.Context) {
	var form dto.RevpayCallbackForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payment, err := h.callbackSvc.HandleRevpayCallback(c.Request.Context(), ports.GatewayCallback{
		TransactionID: form.TransactionID,
		ResponseCode:  form.ResponseCode,
		ReferenceNo:   form.ReferenceNo,
		Amount:        form.Amount,
		Currency:      form.Currency,
		Signature:     form.Signature,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentResponse(payment))
}

// SenangpayCallback handles POST /api/v1/payments/senangpay/callback.
func (h *PaymentHandler) SenangpayCallback(c *gin.Context) {
	var form dto.SenangpayCallbackForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payment, err := h.callbackSvc.HandleSenangpayCallback(c.Request.Context(), ports.GatewayCallback{
		TransactionID: form.TransactionID,
		ResponseCode:  form.StatusID,
		ReferenceNo:   form.OrderID,
		Amount:        form.Amount,
		Currency:      form.Currency,
		Signature:     form.Hash,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentResponse(payment))
}

func toPaymentResponse(p *domain.Payment) dto.PaymentResponse {
	resp := dto.PaymentResponse{
		ReferenceNo:   p.ReferenceNo,
		TransactionID: p.TransactionID,
		Status:        string(p.Status),
	}
	if p.ProcessedAt != nil {
		processedAt := p.ProcessedAt.UTC().Format(time.RFC3339)
		resp.ProcessedAt = &processedAt
	}
	return resp
}

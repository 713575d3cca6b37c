package handler

import (
	"time"

	"aura-device-cloud/internal/adapter/http/dto"
	"aura-device-cloud/internal/adapter/http/middleware"
	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/pkg/apperror"
	"aura-device-cloud/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubscriptionHandler handles plan and checkout endpoints.
type SubscriptionHandler struct {
	subSvc ports.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subSvc ports.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subSvc: subSvc}
}

// ListPlans handles GET /api/v1/plans.
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	plans, err := h.subSvc.ListPlans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PlanResponse, 0, len(plans))
	for _, p := range plans {
		items = append(items, dto.PlanResponse{
			Code:         p.Code,
			Name:         p.Name,
			PriceCents:   p.PriceCents,
			Currency:     p.Currency,
			MaxMachines:  p.MaxMachines,
			DurationDays: p.DurationDays,
		})
	}
	response.OK(c, items)
}

// ListSubscriptions handles GET /api/v1/subscriptions.
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	subs, err := h.subSvc.ListUserSubscriptions(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		items = append(items, toSubscriptionResponse(&subs[i]))
	}
	response.OK(c, items)
}

// Checkout handles POST /api/v1/subscriptions/checkout.
func (h *SubscriptionHandler) Checkout(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.subSvc.CreateCheckout(c.Request.Context(), ports.CheckoutRequest{
		UserID:   userID.(uuid.UUID),
		PlanCode: req.PlanCode,
		Gateway:  domain.Gateway(req.Gateway),
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CheckoutResponse{
		ReferenceNo:   result.Payment.ReferenceNo,
		Gateway:       string(result.Payment.Gateway),
		AmountCents:   result.Payment.AmountCents,
		Currency:      result.Payment.Currency,
		Status:        string(result.Payment.Status),
		GatewayFields: result.GatewayFields,
	})
}

func toSubscriptionResponse(s *domain.UserSubscription) dto.SubscriptionResponse {
	resp := dto.SubscriptionResponse{
		ID:          s.ID.String(),
		PlanID:      s.PlanID.String(),
		Status:      string(s.Status),
		MaxMachines: s.MaxMachines,
	}
	if s.StartsAt != nil {
		startsAt := s.StartsAt.UTC().Format(time.RFC3339)
		resp.StartsAt = &startsAt
	}
	if s.EndsAt != nil {
		endsAt := s.EndsAt.UTC().Format(time.RFC3339)
		resp.EndsAt = &endsAt
	}
	return resp
}

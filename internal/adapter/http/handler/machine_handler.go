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

// MachineHandler handles machine binding endpoints.
type MachineHandler struct {
	bindingSvc ports.BindingService
}

// NewMachineHandler creates a new MachineHandler.
func NewMachineHandler(bindingSvc ports.BindingService) *MachineHandler {
	return &MachineHandler{bindingSvc: bindingSvc}
}

// Bind handles POST /api/v1/machines/bind.
func (h *MachineHandler) Bind(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	machine, err := h.bindingSvc.Bind(c.Request.Context(), ports.BindRequest{
		UserID:       userID.(uuid.UUID),
		DeviceUUID:   req.DeviceUUID,
		SerialNumber: req.SerialNumber,
		ClientIP:     c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	// The mobile apps match on this message text.
	response.OKMessage(c, "Machine bound successfully.", toMachineResponse(machine))
}

// Unbind handles POST /api/v1/machines/unbind.
func (h *MachineHandler) Unbind(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.UnbindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	machine, err := h.bindingSvc.Unbind(c.Request.Context(), ports.UnbindRequest{
		UserID:       userID.(uuid.UUID),
		SerialNumber: req.SerialNumber,
		ClientIP:     c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OKMessage(c, "Machine unbound successfully.", toMachineResponse(machine))
}

// List handles GET /api/v1/machines.
func (h *MachineHandler) List(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	machines, err := h.bindingSvc.ListMachines(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.MachineResponse, 0, len(machines))
	for i := range machines {
		items = append(items, toMachineResponse(&machines[i]))
	}
	response.OK(c, items)
}

func toMachineResponse(m *domain.Machine) dto.MachineResponse {
	resp := dto.MachineResponse{
		ID:           m.ID.String(),
		SerialNumber: m.SerialNumber,
		Model:        m.Model,
	}
	if m.BoundAt != nil {
		boundAt := m.BoundAt.UTC().Format(time.RFC3339)
		resp.BoundAt = &boundAt
	}
	return resp
}

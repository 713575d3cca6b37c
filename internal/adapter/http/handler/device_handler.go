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

// DeviceHandler handles mobile device registration endpoints.
type DeviceHandler struct {
	deviceSvc ports.DeviceService
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(deviceSvc ports.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceSvc: deviceSvc}
}

// Register handles POST /api/v1/devices/register.
func (h *DeviceHandler) Register(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DeviceRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	device, err := h.deviceSvc.Register(c.Request.Context(), ports.DeviceRegisterRequest{
		UserID:     userID.(uuid.UUID),
		DeviceUUID: req.DeviceUUID,
		Platform:   domain.DevicePlatform(req.Platform),
		PushToken:  req.PushToken,
		AppVersion: req.AppVersion,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.DeviceResponse{
		ID:               device.ID.String(),
		DeviceUUID:       device.DeviceUUID,
		Platform:         string(device.Platform),
		AppVersion:       device.AppVersion,
		LastRegisteredAt: device.LastRegisteredAt.UTC().Format(time.RFC3339),
	})
}

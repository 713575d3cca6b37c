package service

import (
	"context"
	"fmt"
	"time"

	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/pkg/apperror"

	"github.com/google/uuid"
)

// DeviceServiceImpl implements ports.DeviceService.
type DeviceServiceImpl struct {
	deviceRepo ports.DeviceRepository
	encSvc     ports.EncryptionService
}

// NewDeviceService creates a new DeviceServiceImpl.
func NewDeviceService(deviceRepo ports.DeviceRepository, encSvc ports.EncryptionService) *DeviceServiceImpl {
	return &DeviceServiceImpl{deviceRepo: deviceRepo, encSvc: encSvc}
}

// Register upserts the mobile device for the user. Repeated registrations
// with the same device UUID refresh the push token and app version rather
// than creating duplicates. Push tokens are encrypted before they reach
// storage.
func (s *DeviceServiceImpl) Register(ctx context.Context, req ports.DeviceRegisterRequest) (*domain.Device, error) {
	now := time.Now().UTC()

	device := &domain.Device{
		ID:               uuid.New(),
		UserID:           req.UserID,
		DeviceUUID:       req.DeviceUUID,
		Platform:         req.Platform,
		AppVersion:       req.AppVersion,
		LastRegisteredAt: now,
		CreatedAt:        now,
	}

	if req.PushToken != nil && *req.PushToken != "" {
		enc, err := s.encSvc.Encrypt(*req.PushToken)
		if err != nil {
			return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt push token: %w", err))
		}
		device.PushTokenEnc = &enc
	}

	if err := s.deviceRepo.Upsert(ctx, device); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("upsert device: %w", err))
	}

	return device, nil
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DevicePlatform is the mobile OS a device runs.
type DevicePlatform string

const (
	DevicePlatformIOS     DevicePlatform = "ios"
	DevicePlatformAndroid DevicePlatform = "android"
)

// Device represents a mobile/tablet install of the companion app,
// identified by the UUID the app generates on first launch. The push token
// is stored AES-encrypted and never leaves the system.
type Device struct {
	ID                uuid.UUID      `json:"id"`
	UserID            uuid.UUID      `json:"user_id"`
	DeviceUUID        string         `json:"device_uuid"`
	Platform          DevicePlatform `json:"platform"`
	PushTokenEnc      *string        `json:"-"`
	AppVersion        string         `json:"app_version,omitempty"`
	LastRegisteredAt  time.Time      `json:"last_registered_at"`
	CreatedAt         time.Time      `json:"created_at"`
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"aura-device-cloud/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// DeviceRepo implements ports.DeviceRepository.
type DeviceRepo struct {
	pool Pool
}

// NewDeviceRepo creates a new DeviceRepo.
func NewDeviceRepo(pool Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

// Upsert inserts the device or, if the device UUID is already registered,
// refreshes its owner, push token and app version.
func (r *DeviceRepo) Upsert(ctx context.Context, d *domain.Device) error {
	query := `INSERT INTO devices (id, user_id, device_uuid, platform, push_token_enc, app_version, last_registered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_uuid) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			push_token_enc = EXCLUDED.push_token_enc,
			app_version = EXCLUDED.app_version,
			last_registered_at = EXCLUDED.last_registered_at`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.UserID, d.DeviceUUID, d.Platform,
		d.PushTokenEnc, d.AppVersion, d.LastRegisteredAt, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// GetByUUID fetches a device by the app-generated UUID.
func (r *DeviceRepo) GetByUUID(ctx context.Context, deviceUUID string) (*domain.Device, error) {
	query := `SELECT id, user_id, device_uuid, platform, push_token_enc, app_version, last_registered_at, created_at
		FROM devices WHERE device_uuid = $1`

	d := &domain.Device{}
	err := r.pool.QueryRow(ctx, query, deviceUUID).Scan(
		&d.ID, &d.UserID, &d.DeviceUUID, &d.Platform,
		&d.PushTokenEnc, &d.AppVersion, &d.LastRegisteredAt, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get device by uuid: %w", err)
	}
	return d, nil
}

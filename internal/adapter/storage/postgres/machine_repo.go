package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aura-device-cloud/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MachineRepo implements ports.MachineRepository.
type MachineRepo struct {
	pool Pool
}

// NewMachineRepo creates a new MachineRepo.
func NewMachineRepo(pool Pool) *MachineRepo {
	return &MachineRepo{pool: pool}
}

const machineColumns = `id, serial_number, model, user_id, device_id, bound_at, created_at, updated_at`

func scanMachine(row pgx.Row) (*domain.Machine, error) {
	m := &domain.Machine{}
	err := row.Scan(
		&m.ID, &m.SerialNumber, &m.Model, &m.UserID, &m.DeviceID,
		&m.BoundAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create inserts a newly provisioned (unbound) machine.
func (r *MachineRepo) Create(ctx context.Context, m *domain.Machine) error {
	query := `INSERT INTO machines (id, serial_number, model, user_id, device_id, bound_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.SerialNumber, m.Model, m.UserID, m.DeviceID,
		m.BoundAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert machine: %w", err)
	}
	return nil
}

// GetBySerial fetches a machine by serial number (without locking).
func (r *MachineRepo) GetBySerial(ctx context.Context, serial string) (*domain.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE serial_number = $1`

	m, err := scanMachine(r.pool.QueryRow(ctx, query, serial))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get machine by serial: %w", err)
	}
	return m, nil
}

// GetBySerialForUpdate fetches a machine by serial with pessimistic locking.
// This MUST be called within a transaction.
func (r *MachineRepo) GetBySerialForUpdate(ctx context.Context, tx pgx.Tx, serial string) (*domain.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE serial_number = $1 FOR UPDATE`

	m, err := scanMachine(tx.QueryRow(ctx, query, serial))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get machine for update: %w", err)
	}
	return m, nil
}

// CountBoundToUser counts the machines currently bound to the user. Runs
// inside the bind transaction so the count is consistent with the lock.
func (r *MachineRepo) CountBoundToUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM machines WHERE user_id = $1`

	var count int
	if err := tx.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count bound machines: %w", err)
	}
	return count, nil
}

// ListBoundToUser returns the machines bound to the user, newest bind first.
func (r *MachineRepo) ListBoundToUser(ctx context.Context, userID uuid.UUID) ([]domain.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE user_id = $1 ORDER BY bound_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list bound machines: %w", err)
	}
	defer rows.Close()

	var machines []domain.Machine
	for rows.Next() {
		m := domain.Machine{}
		if err := rows.Scan(
			&m.ID, &m.SerialNumber, &m.Model, &m.UserID, &m.DeviceID,
			&m.BoundAt, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// Bind associates the machine with the user and binding device.
func (r *MachineRepo) Bind(ctx context.Context, tx pgx.Tx, machineID, userID, deviceID uuid.UUID, boundAt time.Time) error {
	query := `UPDATE machines SET user_id = $1, device_id = $2, bound_at = $3, updated_at = NOW()
		WHERE id = $4 AND user_id IS NULL`

	tag, err := tx.Exec(ctx, query, userID, deviceID, boundAt, machineID)
	if err != nil {
		return fmt.Errorf("bind machine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("machine not bindable: %s", machineID)
	}
	return nil
}

// Unbind releases the machine.
func (r *MachineRepo) Unbind(ctx context.Context, tx pgx.Tx, machineID uuid.UUID) error {
	query := `UPDATE machines SET user_id = NULL, device_id = NULL, bound_at = NULL, updated_at = NOW()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, machineID)
	if err != nil {
		return fmt.Errorf("unbind machine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("machine not found: %s", machineID)
	}
	return nil
}

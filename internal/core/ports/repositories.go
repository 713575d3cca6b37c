package ports

import (
	"context"
	"time"

	"aura-device-cloud/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines persistence operations for users.
// GetByIDForUpdate takes a row-level lock and is the serialization point
// for the user's bind quota check (must run inside a transaction).
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)
}

// DeviceRepository defines persistence operations for mobile devices.
type DeviceRepository interface {
	Upsert(ctx context.Context, device *domain.Device) error
	GetByUUID(ctx context.Context, deviceUUID string) (*domain.Device, error)
}

// MachineRepository defines persistence operations for machines.
// Methods accepting pgx.Tx are used inside transaction blocks so the
// quota check and the bind write stay consistent under concurrency.
type MachineRepository interface {
	Create(ctx context.Context, machine *domain.Machine) error
	GetBySerial(ctx context.Context, serial string) (*domain.Machine, error)
	GetBySerialForUpdate(ctx context.Context, tx pgx.Tx, serial string) (*domain.Machine, error)
	CountBoundToUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int, error)
	ListBoundToUser(ctx context.Context, userID uuid.UUID) ([]domain.Machine, error)
	Bind(ctx context.Context, tx pgx.Tx, machineID, userID, deviceID uuid.UUID, boundAt time.Time) error
	Unbind(ctx context.Context, tx pgx.Tx, machineID uuid.UUID) error
}

// SubscriptionRepository defines persistence for plans and user subscriptions.
type SubscriptionRepository interface {
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	GetPlanByCode(ctx context.Context, code string) (*domain.Plan, error)
	GetPlanByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
	Create(ctx context.Context, tx pgx.Tx, sub *domain.UserSubscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSubscription, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.UserSubscription, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.UserSubscription, error)
	// ActiveForUser returns subscriptions active at the given instant.
	// The pgx.Tx variant reads inside the bind transaction.
	ActiveForUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID, at time.Time) ([]domain.UserSubscription, error)
	Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID, startsAt, endsAt time.Time) error
}

// PaymentRepository defines persistence operations for gateway payments.
type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByReference(ctx context.Context, referenceNo string) (*domain.Payment, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, referenceNo string) (*domain.Payment, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, transactionID string, processedAt time.Time) error
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

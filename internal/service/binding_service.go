package service

import (
	"context"
	"fmt"
	"time"

	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// BindingServiceImpl implements ports.BindingService.
//
// The quota rule (count of bound machines never exceeds the sum of active
// subscription quotas) is enforced under a row-level lock on the user:
// every bind for a user serializes on that lock, so two concurrent binds
// can never both pass the check.
type BindingServiceImpl struct {
	userRepo    ports.UserRepository
	deviceRepo  ports.DeviceRepository
	machineRepo ports.MachineRepository
	subRepo     ports.SubscriptionRepository
	transactor  ports.DBTransactor
	auditSvc    ports.AuditService
	serialFmt   domain.SerialFormat
	now         func() time.Time
	log         zerolog.Logger
}

// NewBindingService creates a new BindingServiceImpl. now is the clock used
// for subscription-window checks; pass time.Now outside tests.
func NewBindingService(
	userRepo ports.UserRepository,
	deviceRepo ports.DeviceRepository,
	machineRepo ports.MachineRepository,
	subRepo ports.SubscriptionRepository,
	transactor ports.DBTransactor,
	auditSvc ports.AuditService,
	serialFmt domain.SerialFormat,
	now func() time.Time,
	log zerolog.Logger,
) *BindingServiceImpl {
	if now == nil {
		now = time.Now
	}
	return &BindingServiceImpl{
		userRepo:    userRepo,
		deviceRepo:  deviceRepo,
		machineRepo: machineRepo,
		subRepo:     subRepo,
		transactor:  transactor,
		auditSvc:    auditSvc,
		serialFmt:   serialFmt,
		now:         now,
		log:         log,
	}
}

// Bind binds the machine with the given serial to the user, enforcing the
// subscription device quota atomically.
func (s *BindingServiceImpl) Bind(ctx context.Context, req ports.BindRequest) (*domain.Machine, error) {
	if !s.serialFmt.Matches(req.SerialNumber) {
		return nil, apperror.Validation(fmt.Sprintf("serial_number must match format %s", s.serialFmt))
	}

	device, err := s.deviceRepo.GetByUUID(ctx, req.DeviceUUID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup device: %w", err))
	}
	if device == nil {
		return nil, apperror.ErrNotFound("Device")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Serialization point: all binds for this user queue on the user row.
	user, err := s.userRepo.GetByIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("User")
	}

	now := s.now()

	allowedMax, err := s.quotaAt(ctx, dbTx, req.UserID, now)
	if err != nil {
		return nil, err
	}
	if allowedMax == 0 {
		s.auditDenied(req, "no active subscription")
		return nil, apperror.ErrNoActiveSubscription()
	}

	boundCount, err := s.machineRepo.CountBoundToUser(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count bound machines: %w", err))
	}
	if boundCount >= allowedMax {
		s.auditDenied(req, "quota exhausted")
		return nil, apperror.ErrMachineLimitReached()
	}

	machine, err := s.machineRepo.GetBySerialForUpdate(ctx, dbTx, req.SerialNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock machine: %w", err))
	}
	if machine == nil {
		return nil, apperror.ErrMachineNotFound()
	}
	if machine.IsBound() {
		if machine.IsBoundTo(req.UserID) {
			// Re-binding the caller's own machine is a no-op.
			return machine, nil
		}
		s.auditDenied(req, "bound to another user")
		return nil, apperror.ErrMachineAlreadyBound()
	}

	if err := s.machineRepo.Bind(ctx, dbTx, machine.ID, req.UserID, device.ID, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("bind machine: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	machine.UserID = &req.UserID
	machine.DeviceID = &device.ID
	machine.BoundAt = &now

	s.audit(domain.AuditActionBind, req.UserID, req.SerialNumber, "", req.ClientIP)
	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("serial", req.SerialNumber).
		Int("bound_count", boundCount+1).
		Int("allowed_max", allowedMax).
		Msg("machine bound")

	return machine, nil
}

// Unbind releases the machine with the given serial if the user owns it.
func (s *BindingServiceImpl) Unbind(ctx context.Context, req ports.UnbindRequest) (*domain.Machine, error) {
	if !s.serialFmt.Matches(req.SerialNumber) {
		return nil, apperror.Validation(fmt.Sprintf("serial_number must match format %s", s.serialFmt))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	machine, err := s.machineRepo.GetBySerialForUpdate(ctx, dbTx, req.SerialNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock machine: %w", err))
	}
	if machine == nil {
		return nil, apperror.ErrMachineNotFound()
	}
	if !machine.IsBoundTo(req.UserID) {
		return nil, apperror.ErrMachineNotOwned()
	}

	if err := s.machineRepo.Unbind(ctx, dbTx, machine.ID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unbind machine: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	machine.UserID = nil
	machine.DeviceID = nil
	machine.BoundAt = nil

	s.audit(domain.AuditActionUnbind, req.UserID, req.SerialNumber, "", req.ClientIP)
	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("serial", req.SerialNumber).
		Msg("machine unbound")

	return machine, nil
}

// ListMachines returns the machines currently bound to the user.
func (s *BindingServiceImpl) ListMachines(ctx context.Context, userID uuid.UUID) ([]domain.Machine, error) {
	machines, err := s.machineRepo.ListBoundToUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list machines: %w", err))
	}
	return machines, nil
}

// quotaAt sums the device quota of all subscriptions active at the instant.
func (s *BindingServiceImpl) quotaAt(ctx context.Context, tx pgx.Tx, userID uuid.UUID, at time.Time) (int, error) {
	subs, err := s.subRepo.ActiveForUser(ctx, tx, userID, at)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("active subscriptions: %w", err))
	}
	quota := 0
	for _, sub := range subs {
		quota += sub.MaxMachines
	}
	return quota, nil
}

func (s *BindingServiceImpl) audit(action domain.AuditAction, userID uuid.UUID, serial, details, ip string) {
	if s.auditSvc == nil {
		return
	}
	uid := userID
	s.auditSvc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &uid,
		Action:       action,
		ResourceType: "machine",
		ResourceID:   serial,
		Details:      details,
		IPAddress:    ip,
		CreatedAt:    s.now().UTC(),
	})
}

func (s *BindingServiceImpl) auditDenied(req ports.BindRequest, reason string) {
	s.audit(domain.AuditActionBindDenied, req.UserID, req.SerialNumber, fmt.Sprintf(`{"reason":%q}`, reason), req.ClientIP)
}

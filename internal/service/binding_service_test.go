package service

import (
	"context"
	"testing"
	"time"

	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/internal/core/ports/mocks"
	"aura-device-cloud/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type bindingTestDeps struct {
	svc         *BindingServiceImpl
	userRepo    *mocks.MockUserRepository
	deviceRepo  *mocks.MockDeviceRepository
	machineRepo *mocks.MockMachineRepository
	subRepo     *mocks.MockSubscriptionRepository
	transactor  *mocks.MockDBTransactor
	ctrl        *gomock.Controller
	now         time.Time
}

func setupBindingService(t *testing.T) *bindingTestDeps {
	ctrl := gomock.NewController(t)
	serialFmt, err := domain.NewSerialFormat("AUR-", 4)
	require.NoError(t, err)

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	d := &bindingTestDeps{
		userRepo:    mocks.NewMockUserRepository(ctrl),
		deviceRepo:  mocks.NewMockDeviceRepository(ctrl),
		machineRepo: mocks.NewMockMachineRepository(ctrl),
		subRepo:     mocks.NewMockSubscriptionRepository(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		ctrl:        ctrl,
		now:         now,
	}
	d.svc = NewBindingService(
		d.userRepo, d.deviceRepo, d.machineRepo, d.subRepo,
		d.transactor, nil, serialFmt,
		func() time.Time { return now }, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func activeSub(userID uuid.UUID, maxMachines int, now time.Time) domain.UserSubscription {
	starts := now.Add(-24 * time.Hour)
	ends := now.Add(30 * 24 * time.Hour)
	return domain.UserSubscription{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      domain.SubscriptionStatusActive,
		MaxMachines: maxMachines,
		StartsAt:    &starts,
		EndsAt:      &ends,
	}
}

func TestBindingService_Bind_Success(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	deviceID := uuid.New()
	machineID := uuid.New()
	tx := &mockTx{}

	req := ports.BindRequest{
		UserID:       userID,
		DeviceUUID:   "device-uuid-1",
		SerialNumber: "AUR-0042",
		ClientIP:     "10.0.0.1",
	}

	d.deviceRepo.EXPECT().GetByUUID(ctx, "device-uuid-1").Return(&domain.Device{ID: deviceID, UserID: userID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID, Status: domain.UserStatusActive}, nil)
	d.subRepo.EXPECT().ActiveForUser(ctx, tx, userID, d.now).Return([]domain.UserSubscription{activeSub(userID, 2, d.now)}, nil)
	d.machineRepo.EXPECT().CountBoundToUser(ctx, tx, userID).Return(0, nil)
	d.machineRepo.EXPECT().GetBySerialForUpdate(ctx, tx, "AUR-0042").Return(&domain.Machine{ID: machineID, SerialNumber: "AUR-0042"}, nil)
	d.machineRepo.EXPECT().Bind(ctx, tx, machineID, userID, deviceID, d.now).Return(nil)

	machine, err := d.svc.Bind(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, machine)
	assert.Equal(t, machineID, machine.ID)
	require.NotNil(t, machine.UserID)
	assert.Equal(t, userID, *machine.UserID)
	require.NotNil(t, machine.BoundAt)
	assert.Equal(t, d.now, *machine.BoundAt)
}

func TestBindingService_Bind_InvalidSerialFormat(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	for _, serial := range []string{"", "AUR-42", "AUR-00421", "XYZ-0042", "aur-0042", "AUR-00AB"} {
		_, err := d.svc.Bind(context.Background(), ports.BindRequest{
			UserID:       uuid.New(),
			DeviceUUID:   "device-uuid-1",
			SerialNumber: serial,
		})
		require.Error(t, err, "serial %q should be rejected", serial)

		appErr, ok := err.(*apperror.AppError)
		require.True(t, ok)
		assert.Equal(t, "VAL_001", appErr.Code)
	}
}

func TestBindingService_Bind_NoActiveSubscription(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.deviceRepo.EXPECT().GetByUUID(ctx, "device-uuid-1").Return(&domain.Device{ID: uuid.New(), UserID: userID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID, Status: domain.UserStatusActive}, nil)
	d.subRepo.EXPECT().ActiveForUser(ctx, tx, userID, d.now).Return(nil, nil)

	_, err := d.svc.Bind(ctx, ports.BindRequest{
		UserID:       userID,
		DeviceUUID:   "device-uuid-1",
		SerialNumber: "AUR-0042",
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "SUB_001", appErr.Code)
	assert.Equal(t, 403, appErr.HTTPStatus)
	assert.Contains(t, appErr.Message, "subscribe to a plan")
}

func TestBindingService_Bind_MachineLimitReached(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.deviceRepo.EXPECT().GetByUUID(ctx, "device-uuid-1").Return(&domain.Device{ID: uuid.New(), UserID: userID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID, Status: domain.UserStatusActive}, nil)
	d.subRepo.EXPECT().ActiveForUser(ctx, tx, userID, d.now).Return([]domain.UserSubscription{activeSub(userID, 1, d.now)}, nil)
	d.machineRepo.EXPECT().CountBoundToUser(ctx, tx, userID).Return(1, nil)

	_, err := d.svc.Bind(ctx, ports.BindRequest{
		UserID:       userID,
		DeviceUUID:   "device-uuid-1",
		SerialNumber: "AUR-0042",
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "SUB_002", appErr.Code)
	assert.Equal(t, 403, appErr.HTTPStatus)
	assert.Contains(t, appErr.Message, "Machine limit reached")
}

// Two active subscriptions stack: quota is the sum of their machine limits.
func TestBindingService_Bind_QuotaSumsAcrossSubscriptions(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	deviceID := uuid.New()
	machineID := uuid.New()
	tx := &mockTx{}

	subs := []domain.UserSubscription{
		activeSub(userID, 1, d.now),
		activeSub(userID, 2, d.now),
	}

	d.deviceRepo.EXPECT().GetByUUID(ctx, "device-uuid-1").Return(&domain.Device{ID: deviceID, UserID: userID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID, Status: domain.UserStatusActive}, nil)
	d.subRepo.EXPECT().ActiveForUser(ctx, tx, userID, d.now).Return(subs, nil)
	// 2 already bound, quota 3: one slot left
	d.machineRepo.EXPECT().CountBoundToUser(ctx, tx, userID).Return(2, nil)
	d.machineRepo.EXPECT().GetBySerialForUpdate(ctx, tx, "AUR-0099").Return(&domain.Machine{ID: machineID, SerialNumber: "AUR-0099"}, nil)
	d.machineRepo.EXPECT().Bind(ctx, tx, machineID, userID, deviceID, d.now).Return(nil)

	_, err := d.svc.Bind(ctx, ports.BindRequest{
		UserID:       userID,
		DeviceUUID:   "device-uuid-1",
		SerialNumber: "AUR-0099",
	})
	require.NoError(t, err)
}

func TestBindingService_Bind_SerialNotFound(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.deviceRepo.EXPECT().GetByUUID(ctx, "device-uuid-1").Return(&domain.Device{ID: uuid.New(), UserID: userID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID, Status: domain.UserStatusActive}, nil)
	d.subRepo.EXPECT().ActiveForUser(ctx, tx, userID, d.now).Return([]domain.UserSubscription{activeSub(userID, 1, d.now)}, nil)
	d.machineRepo.EXPECT().CountBoundToUser(ctx, tx, userID).Return(0, nil)
	d.machineRepo.EXPECT().GetBySerialForUpdate(ctx, tx, "AUR-9999").Return(nil, nil)

	_, err := d.svc.Bind(ctx, ports.BindRequest{
		UserID:       userID,
		DeviceUUID:   "device-uuid-1",
		SerialNumber: "AUR-9999",
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "BIND_001", appErr.Code)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestBindingService_Bind_AlreadyBoundToAnotherUser(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	otherUserID := uuid.New()
	tx := &mockTx{}

	d.deviceRepo.EXPECT().GetByUUID(ctx, "device-uuid-1").Return(&domain.Device{ID: uuid.New(), UserID: userID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID, Status: domain.UserStatusActive}, nil)
	d.subRepo.EXPECT().ActiveForUser(ctx, tx, userID, d.now).Return([]domain.UserSubscription{activeSub(userID, 1, d.now)}, nil)
	d.machineRepo.EXPECT().CountBoundToUser(ctx, tx, userID).Return(0, nil)
	d.machineRepo.EXPECT().GetBySerialForUpdate(ctx, tx, "AUR-0042").Return(&domain.Machine{
		ID:           uuid.New(),
		SerialNumber: "AUR-0042",
		UserID:       &otherUserID,
	}, nil)

	_, err := d.svc.Bind(ctx, ports.BindRequest{
		UserID:       userID,
		DeviceUUID:   "device-uuid-1",
		SerialNumber: "AUR-0042",
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "BIND_002", appErr.Code)
	assert.Equal(t, 409, appErr.HTTPStatus)
}

// Re-binding a machine the user already owns is a no-op, not an error.
func TestBindingService_Bind_OwnMachineIsIdempotent(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	machineID := uuid.New()
	tx := &mockTx{}

	d.deviceRepo.EXPECT().GetByUUID(ctx, "device-uuid-1").Return(&domain.Device{ID: uuid.New(), UserID: userID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID, Status: domain.UserStatusActive}, nil)
	d.subRepo.EXPECT().ActiveForUser(ctx, tx, userID, d.now).Return([]domain.UserSubscription{activeSub(userID, 1, d.now)}, nil)
	d.machineRepo.EXPECT().CountBoundToUser(ctx, tx, userID).Return(1, nil)

	// Quota 1 with 1 bound: the limit check fires before the ownership
	// check can short-circuit.
	_, err := d.svc.Bind(ctx, ports.BindRequest{
		UserID:       userID,
		DeviceUUID:   "device-uuid-1",
		SerialNumber: "AUR-0042",
	})
	require.Error(t, err) // limit reached with quota 1 and 1 bound

	// With quota 2 the ownership short-circuit is reachable.
	d.deviceRepo.EXPECT().GetByUUID(ctx, "device-uuid-1").Return(&domain.Device{ID: uuid.New(), UserID: userID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID, Status: domain.UserStatusActive}, nil)
	d.subRepo.EXPECT().ActiveForUser(ctx, tx, userID, d.now).Return([]domain.UserSubscription{activeSub(userID, 2, d.now)}, nil)
	d.machineRepo.EXPECT().CountBoundToUser(ctx, tx, userID).Return(1, nil)
	d.machineRepo.EXPECT().GetBySerialForUpdate(ctx, tx, "AUR-0042").Return(&domain.Machine{
		ID:           machineID,
		SerialNumber: "AUR-0042",
		UserID:       &userID,
	}, nil)

	machine, err := d.svc.Bind(ctx, ports.BindRequest{
		UserID:       userID,
		DeviceUUID:   "device-uuid-1",
		SerialNumber: "AUR-0042",
	})
	require.NoError(t, err)
	assert.Equal(t, machineID, machine.ID)
}

func TestBindingService_Bind_DeviceUnknown(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()

	d.deviceRepo.EXPECT().GetByUUID(ctx, "ghost-device").Return(nil, nil)

	_, err := d.svc.Bind(ctx, ports.BindRequest{
		UserID:       uuid.New(),
		DeviceUUID:   "ghost-device",
		SerialNumber: "AUR-0042",
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestBindingService_Unbind_Success(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	machineID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.machineRepo.EXPECT().GetBySerialForUpdate(ctx, tx, "AUR-0042").Return(&domain.Machine{
		ID:           machineID,
		SerialNumber: "AUR-0042",
		UserID:       &userID,
	}, nil)
	d.machineRepo.EXPECT().Unbind(ctx, tx, machineID).Return(nil)

	machine, err := d.svc.Unbind(ctx, ports.UnbindRequest{
		UserID:       userID,
		SerialNumber: "AUR-0042",
	})
	require.NoError(t, err)
	assert.Nil(t, machine.UserID)
	assert.Nil(t, machine.BoundAt)
}

func TestBindingService_Unbind_NotOwned(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	otherUserID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.machineRepo.EXPECT().GetBySerialForUpdate(ctx, tx, "AUR-0042").Return(&domain.Machine{
		ID:           uuid.New(),
		SerialNumber: "AUR-0042",
		UserID:       &otherUserID,
	}, nil)

	_, err := d.svc.Unbind(ctx, ports.UnbindRequest{
		UserID:       uuid.New(),
		SerialNumber: "AUR-0042",
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "BIND_003", appErr.Code)
}

func TestBindingService_ListMachines(t *testing.T) {
	d := setupBindingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.machineRepo.EXPECT().ListBoundToUser(ctx, userID).Return([]domain.Machine{
		{ID: uuid.New(), SerialNumber: "AUR-0001", UserID: &userID},
		{ID: uuid.New(), SerialNumber: "AUR-0002", UserID: &userID},
	}, nil)

	machines, err := d.svc.ListMachines(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, machines, 2)
}

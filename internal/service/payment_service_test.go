package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"aura-device-cloud/config"
	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/internal/core/ports/mocks"
	"aura-device-cloud/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testGateways = config.GatewayConfig{
	Revpay:    config.GatewayCredentials{MerchantID: "RP-MERCHANT", SecretKey: "rp-secret"},
	Senangpay: config.GatewayCredentials{MerchantID: "SP-MERCHANT", SecretKey: "sp-secret"},
}

type callbackTestDeps struct {
	svc         *PaymentServiceImpl
	paymentRepo *mocks.MockPaymentRepository
	subRepo     *mocks.MockSubscriptionRepository
	transactor  *mocks.MockDBTransactor
	replayGuard *mocks.MockReplayGuard
	revpay      *RevpaySignatureService
	senangpay   *SenangpaySignatureService
	ctrl        *gomock.Controller
	now         time.Time
}

func setupCallbackService(t *testing.T) *callbackTestDeps {
	ctrl := gomock.NewController(t)
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	d := &callbackTestDeps{
		paymentRepo: mocks.NewMockPaymentRepository(ctrl),
		subRepo:     mocks.NewMockSubscriptionRepository(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		replayGuard: mocks.NewMockReplayGuard(ctrl),
		revpay:      NewRevpaySignatureService(),
		senangpay:   NewSenangpaySignatureService(),
		ctrl:        ctrl,
		now:         now,
	}
	d.svc = NewPaymentService(
		d.paymentRepo, d.subRepo, d.transactor,
		d.revpay, d.senangpay, d.replayGuard,
		testGateways, nil,
		func() time.Time { return now }, zerolog.Nop(),
	)
	return d
}

func pendingPayment(gateway domain.Gateway, referenceNo string, amountCents int64) *domain.Payment {
	return &domain.Payment{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		SubscriptionID: uuid.New(),
		Gateway:        gateway,
		ReferenceNo:    referenceNo,
		AmountCents:    amountCents,
		Currency:       "MYR",
		Status:         domain.PaymentStatusPending,
	}
}

func TestPaymentService_RevpayCallback_Success(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := pendingPayment(domain.GatewayRevpay, "ORDER-001", 9990)
	planID := uuid.New()
	sub := &domain.UserSubscription{
		ID:     payment.SubscriptionID,
		PlanID: planID,
		Status: domain.SubscriptionStatusPending,
	}

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", "TXN-555", "1", "ORDER-001", 99.90, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-555",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-001",
		Amount:        99.90,
		Currency:      "MYR",
		Signature:     sig,
	}

	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-555").Return(false, nil)
	d.replayGuard.EXPECT().Remember(ctx, "revpay", "TXN-555", gomock.Any()).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-001").Return(payment, nil)
	d.paymentRepo.EXPECT().MarkProcessed(ctx, tx, payment.ID, domain.PaymentStatusPaid, "TXN-555", d.now).Return(nil)
	d.subRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.SubscriptionID).Return(sub, nil)
	d.subRepo.EXPECT().GetPlanByID(ctx, planID).Return(&domain.Plan{ID: planID, DurationDays: 30}, nil)
	d.subRepo.EXPECT().Activate(ctx, tx, sub.ID, d.now, d.now.AddDate(0, 0, 30)).Return(nil)

	result, err := d.svc.HandleRevpayCallback(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
	require.NotNil(t, result.TransactionID)
	assert.Equal(t, "TXN-555", *result.TransactionID)
}

// Revpay echoes signatures in uppercase; verification must still accept them.
func TestPaymentService_RevpayCallback_UppercaseSignatureAccepted(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := pendingPayment(domain.GatewayRevpay, "ORDER-002", 10000)
	planID := uuid.New()
	sub := &domain.UserSubscription{ID: payment.SubscriptionID, PlanID: planID, Status: domain.SubscriptionStatusPending}

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", "TXN-556", "1", "ORDER-002", 100.00, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-556",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-002",
		Amount:        100.00,
		Currency:      "MYR",
		Signature:     strings.ToUpper(sig),
	}

	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-556").Return(false, nil)
	d.replayGuard.EXPECT().Remember(ctx, "revpay", "TXN-556", gomock.Any()).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-002").Return(payment, nil)
	d.paymentRepo.EXPECT().MarkProcessed(ctx, tx, payment.ID, domain.PaymentStatusPaid, "TXN-556", d.now).Return(nil)
	d.subRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.SubscriptionID).Return(sub, nil)
	d.subRepo.EXPECT().GetPlanByID(ctx, planID).Return(&domain.Plan{ID: planID, DurationDays: 365}, nil)
	d.subRepo.EXPECT().Activate(ctx, tx, sub.ID, d.now, d.now.AddDate(0, 0, 365)).Return(nil)

	_, err := d.svc.HandleRevpayCallback(ctx, req)
	require.NoError(t, err)
}

func TestPaymentService_RevpayCallback_InvalidSignature(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	req := ports.GatewayCallback{
		TransactionID: "TXN-555",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-001",
		Amount:        99.90,
		Currency:      "MYR",
		Signature:     "forged",
	}

	_, err := d.svc.HandleRevpayCallback(context.Background(), req)
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "SEC_001", appErr.Code)
	assert.Equal(t, 401, appErr.HTTPStatus)
}

// Senangpay rejects signatures whose casing was altered.
func TestPaymentService_SenangpayCallback_UppercaseSignatureRejected(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	sig := d.senangpay.ResponseSignature("sp-secret", "SP-MERCHANT", "TXN-7", "1", "ORDER-010", 49.90, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-7",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-010",
		Amount:        49.90,
		Currency:      "MYR",
		Signature:     strings.ToUpper(sig),
	}

	_, err := d.svc.HandleSenangpayCallback(context.Background(), req)
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "SEC_001", appErr.Code)
}

func TestPaymentService_SenangpayCallback_Success(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := pendingPayment(domain.GatewaySenangpay, "ORDER-010", 4990)
	planID := uuid.New()
	sub := &domain.UserSubscription{ID: payment.SubscriptionID, PlanID: planID, Status: domain.SubscriptionStatusPending}

	sig := d.senangpay.ResponseSignature("sp-secret", "SP-MERCHANT", "TXN-7", "1", "ORDER-010", 49.90, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-7",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-010",
		Amount:        49.90,
		Currency:      "MYR",
		Signature:     sig,
	}

	d.replayGuard.EXPECT().Seen(ctx, "senangpay", "TXN-7").Return(false, nil)
	d.replayGuard.EXPECT().Remember(ctx, "senangpay", "TXN-7", gomock.Any()).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-010").Return(payment, nil)
	d.paymentRepo.EXPECT().MarkProcessed(ctx, tx, payment.ID, domain.PaymentStatusPaid, "TXN-7", d.now).Return(nil)
	d.subRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.SubscriptionID).Return(sub, nil)
	d.subRepo.EXPECT().GetPlanByID(ctx, planID).Return(&domain.Plan{ID: planID, DurationDays: 30}, nil)
	d.subRepo.EXPECT().Activate(ctx, tx, sub.ID, d.now, d.now.AddDate(0, 0, 30)).Return(nil)

	result, err := d.svc.HandleSenangpayCallback(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
}

// A failure response code settles the payment as FAILED without touching
// the subscription.
func TestPaymentService_Callback_FailureResponseCode(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := pendingPayment(domain.GatewayRevpay, "ORDER-003", 9990)

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", "TXN-557", "0", "ORDER-003", 99.90, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-557",
		ResponseCode:  "0",
		ReferenceNo:   "ORDER-003",
		Amount:        99.90,
		Currency:      "MYR",
		Signature:     sig,
	}

	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-557").Return(false, nil)
	d.replayGuard.EXPECT().Remember(ctx, "revpay", "TXN-557", gomock.Any()).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-003").Return(payment, nil)
	d.paymentRepo.EXPECT().MarkProcessed(ctx, tx, payment.ID, domain.PaymentStatusFailed, "TXN-557", d.now).Return(nil)

	result, err := d.svc.HandleRevpayCallback(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, result.Status)
}

// The stored amount is authoritative: a correctly signed callback carrying
// a different amount than checkout recorded is rejected.
func TestPaymentService_Callback_AmountMismatch(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := pendingPayment(domain.GatewayRevpay, "ORDER-004", 9990) // stored: 99.90

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", "TXN-558", "1", "ORDER-004", 1.00, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-558",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-004",
		Amount:        1.00,
		Currency:      "MYR",
		Signature:     sig,
	}

	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-558").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-004").Return(payment, nil)

	_, err := d.svc.HandleRevpayCallback(ctx, req)
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_001", appErr.Code)
}

// A replayed transaction ID answers from the stored record without
// re-running the state transition.
func TestPaymentService_Callback_Replayed(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	txnID := "TXN-559"
	paid := pendingPayment(domain.GatewayRevpay, "ORDER-005", 9990)
	paid.Status = domain.PaymentStatusPaid
	paid.TransactionID = &txnID

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", txnID, "1", "ORDER-005", 99.90, "MYR")
	req := ports.GatewayCallback{
		TransactionID: txnID,
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-005",
		Amount:        99.90,
		Currency:      "MYR",
		Signature:     sig,
	}

	d.replayGuard.EXPECT().Seen(ctx, "revpay", txnID).Return(true, nil)
	d.paymentRepo.EXPECT().GetByReference(ctx, "ORDER-005").Return(paid, nil)

	result, err := d.svc.HandleRevpayCallback(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
}

func TestPaymentService_Callback_UnknownReference(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", "TXN-560", "1", "ORDER-404", 10.00, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-560",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-404",
		Amount:        10.00,
		Currency:      "MYR",
		Signature:     sig,
	}

	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-560").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-404").Return(nil, nil)

	_, err := d.svc.HandleRevpayCallback(ctx, req)
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_002", appErr.Code)
}

// A terminal payment reached through a fresh transaction ID is returned
// as-is instead of being transitioned twice.
func TestPaymentService_Callback_TerminalPaymentIdempotent(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	paid := pendingPayment(domain.GatewayRevpay, "ORDER-006", 9990)
	paid.Status = domain.PaymentStatusPaid

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", "TXN-561", "1", "ORDER-006", 99.90, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-561",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-006",
		Amount:        99.90,
		Currency:      "MYR",
		Signature:     sig,
	}

	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-561").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-006").Return(paid, nil)

	result, err := d.svc.HandleRevpayCallback(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
}

// A delivery that fails before commit must leave no trace in the replay
// guard, so the gateway's retry runs the full pipeline and the payment is
// still settled and the subscription activated.
func TestPaymentService_Callback_RetryAfterFailedDeliverySettles(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := pendingPayment(domain.GatewayRevpay, "ORDER-007", 9990)
	planID := uuid.New()
	sub := &domain.UserSubscription{ID: payment.SubscriptionID, PlanID: planID, Status: domain.SubscriptionStatusPending}

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", "TXN-562", "1", "ORDER-007", 99.90, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-562",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-007",
		Amount:        99.90,
		Currency:      "MYR",
		Signature:     sig,
	}

	// First delivery dies opening the transaction. Remember must not be
	// called, or the retry would be misread as a replay.
	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-562").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(nil, assert.AnError)

	_, err := d.svc.HandleRevpayCallback(ctx, req)
	require.Error(t, err)

	// The gateway retries the identical callback; this time it goes through.
	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-562").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-007").Return(payment, nil)
	d.paymentRepo.EXPECT().MarkProcessed(ctx, tx, payment.ID, domain.PaymentStatusPaid, "TXN-562", d.now).Return(nil)
	d.subRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.SubscriptionID).Return(sub, nil)
	d.subRepo.EXPECT().GetPlanByID(ctx, planID).Return(&domain.Plan{ID: planID, DurationDays: 30}, nil)
	d.subRepo.EXPECT().Activate(ctx, tx, sub.ID, d.now, d.now.AddDate(0, 0, 30)).Return(nil)
	d.replayGuard.EXPECT().Remember(ctx, "revpay", "TXN-562", gomock.Any()).Return(nil)

	result, err := d.svc.HandleRevpayCallback(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
}

// The replay guard is a fast path, not the source of truth: failing to
// record the ID after commit must not fail the callback.
func TestPaymentService_Callback_RememberFailureIsNonFatal(t *testing.T) {
	d := setupCallbackService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := pendingPayment(domain.GatewayRevpay, "ORDER-008", 9990)
	planID := uuid.New()
	sub := &domain.UserSubscription{ID: payment.SubscriptionID, PlanID: planID, Status: domain.SubscriptionStatusPending}

	sig := d.revpay.ResponseSignature("rp-secret", "RP-MERCHANT", "TXN-563", "1", "ORDER-008", 99.90, "MYR")
	req := ports.GatewayCallback{
		TransactionID: "TXN-563",
		ResponseCode:  "1",
		ReferenceNo:   "ORDER-008",
		Amount:        99.90,
		Currency:      "MYR",
		Signature:     sig,
	}

	d.replayGuard.EXPECT().Seen(ctx, "revpay", "TXN-563").Return(false, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.paymentRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "ORDER-008").Return(payment, nil)
	d.paymentRepo.EXPECT().MarkProcessed(ctx, tx, payment.ID, domain.PaymentStatusPaid, "TXN-563", d.now).Return(nil)
	d.subRepo.EXPECT().GetByIDForUpdate(ctx, tx, payment.SubscriptionID).Return(sub, nil)
	d.subRepo.EXPECT().GetPlanByID(ctx, planID).Return(&domain.Plan{ID: planID, DurationDays: 30}, nil)
	d.subRepo.EXPECT().Activate(ctx, tx, sub.ID, d.now, d.now.AddDate(0, 0, 30)).Return(nil)
	d.replayGuard.EXPECT().Remember(ctx, "revpay", "TXN-563", gomock.Any()).Return(assert.AnError)

	result, err := d.svc.HandleRevpayCallback(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
}

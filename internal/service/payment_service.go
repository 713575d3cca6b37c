package service

import (
	"context"
	"fmt"
	"time"

	"aura-device-cloud/config"
	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/pkg/apperror"
	"aura-device-cloud/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// replayTTL is how long a processed gateway transaction ID is remembered.
// Gateways retry callbacks for at most a day or two; a week is generous.
const replayTTL = 7 * 24 * time.Hour

// successResponseCode is what both gateways send for an approved payment.
const successResponseCode = "1"

// PaymentServiceImpl implements ports.PaymentCallbackService.
//
// Callback processing is the trust boundary of the whole payment flow:
// the request comes from the open internet claiming to be the gateway, so
// everything hinges on the signature check and on the stored amount, never
// on the posted one.
type PaymentServiceImpl struct {
	paymentRepo ports.PaymentRepository
	subRepo     ports.SubscriptionRepository
	transactor  ports.DBTransactor
	revpay      ports.RevpaySigner
	senangpay   ports.SenangpaySigner
	replayGuard ports.ReplayGuard
	gateways    config.GatewayConfig
	auditSvc    ports.AuditService
	now         func() time.Time
	log         zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	subRepo ports.SubscriptionRepository,
	transactor ports.DBTransactor,
	revpay ports.RevpaySigner,
	senangpay ports.SenangpaySigner,
	replayGuard ports.ReplayGuard,
	gateways config.GatewayConfig,
	auditSvc ports.AuditService,
	now func() time.Time,
	log zerolog.Logger,
) *PaymentServiceImpl {
	if now == nil {
		now = time.Now
	}
	return &PaymentServiceImpl{
		paymentRepo: paymentRepo,
		subRepo:     subRepo,
		transactor:  transactor,
		revpay:      revpay,
		senangpay:   senangpay,
		replayGuard: replayGuard,
		gateways:    gateways,
		auditSvc:    auditSvc,
		now:         now,
		log:         log,
	}
}

// HandleRevpayCallback verifies and applies a Revpay payment callback.
func (s *PaymentServiceImpl) HandleRevpayCallback(ctx context.Context, req ports.GatewayCallback) (*domain.Payment, error) {
	creds := s.gateways.Revpay
	expected := s.revpay.ResponseSignature(creds.SecretKey, creds.MerchantID, req.TransactionID, req.ResponseCode, req.ReferenceNo, req.Amount, req.Currency)
	if !s.revpay.VerifySignature(expected, req.Signature) {
		s.rejectCallback(domain.GatewayRevpay, req, "signature mismatch")
		return nil, apperror.ErrInvalidSignature()
	}
	return s.applyCallback(ctx, domain.GatewayRevpay, req)
}

// HandleSenangpayCallback verifies and applies a Senangpay payment callback.
func (s *PaymentServiceImpl) HandleSenangpayCallback(ctx context.Context, req ports.GatewayCallback) (*domain.Payment, error) {
	creds := s.gateways.Senangpay
	expected := s.senangpay.ResponseSignature(creds.SecretKey, creds.MerchantID, req.TransactionID, req.ResponseCode, req.ReferenceNo, req.Amount, req.Currency)
	if !s.senangpay.VerifySignature(expected, req.Signature) {
		s.rejectCallback(domain.GatewaySenangpay, req, "signature mismatch")
		return nil, apperror.ErrInvalidSignature()
	}
	return s.applyCallback(ctx, domain.GatewaySenangpay, req)
}

// applyCallback runs the post-verification pipeline shared by both gateways:
// replay check, payment lookup under lock, amount consistency against the
// stored record, then the status transition and subscription activation.
// The transaction ID is recorded in the replay guard only after commit, so
// a delivery that fails mid-flight is retried in full by the gateway.
func (s *PaymentServiceImpl) applyCallback(ctx context.Context, gateway domain.Gateway, req ports.GatewayCallback) (*domain.Payment, error) {
	seen, err := s.replayGuard.Seen(ctx, string(gateway), req.TransactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("replay check: %w", err))
	}
	if seen {
		// Replayed callback: answer idempotently from the stored record.
		payment, err := s.paymentRepo.GetByReference(ctx, req.ReferenceNo)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lookup payment: %w", err))
		}
		if payment == nil {
			return nil, apperror.ErrPaymentNotFound()
		}
		s.log.Info().
			Str("gateway", string(gateway)).
			Str("transaction_id", req.TransactionID).
			Str("reference_no", req.ReferenceNo).
			Msg("replayed callback, returning stored state")
		return payment, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	payment, err := s.paymentRepo.GetByReferenceForUpdate(ctx, dbTx, req.ReferenceNo)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		s.rejectCallback(gateway, req, "unknown reference")
		return nil, apperror.ErrPaymentNotFound()
	}
	if payment.Gateway != gateway {
		s.rejectCallback(gateway, req, "gateway mismatch")
		return nil, apperror.ErrPaymentNotFound()
	}
	if payment.IsTerminal() {
		// A second, differently-keyed notification for a settled payment.
		return payment, nil
	}

	// The posted amount must agree with what the checkout stored, compared
	// at cent precision so serialization differences can't slip through.
	if money.Cents(req.Amount) != payment.AmountCents || req.Currency != payment.Currency {
		s.rejectCallback(gateway, req, "amount mismatch")
		return nil, apperror.ErrAmountMismatch()
	}

	now := s.now().UTC()
	status := domain.PaymentStatusFailed
	if req.ResponseCode == successResponseCode {
		status = domain.PaymentStatusPaid
	}

	if err := s.paymentRepo.MarkProcessed(ctx, dbTx, payment.ID, status, req.TransactionID, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark payment: %w", err))
	}

	if status == domain.PaymentStatusPaid {
		if err := s.activateSubscription(ctx, dbTx, payment.SubscriptionID, now); err != nil {
			return nil, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Record the transaction ID only now that the state change is durable.
	// If processing failed anywhere above, the ID stays unrecorded and the
	// gateway's retry runs the full pipeline again instead of being
	// answered from a record that was never updated. A failure here is
	// harmless: the retry reaches the terminal-status check and is still
	// answered idempotently, just without the Redis fast path.
	if err := s.replayGuard.Remember(ctx, string(gateway), req.TransactionID, replayTTL); err != nil {
		s.log.Warn().Err(err).
			Str("gateway", string(gateway)).
			Str("transaction_id", req.TransactionID).
			Msg("failed to record processed transaction ID")
	}

	payment.Status = status
	txnID := req.TransactionID
	payment.TransactionID = &txnID
	payment.ProcessedAt = &now

	s.acceptCallback(gateway, req, payment)
	return payment, nil
}

// activateSubscription flips the pending subscription to active with a
// validity window derived from the plan duration.
func (s *PaymentServiceImpl) activateSubscription(ctx context.Context, tx pgx.Tx, subID uuid.UUID, now time.Time) error {
	sub, err := s.subRepo.GetByIDForUpdate(ctx, tx, subID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock subscription: %w", err))
	}
	if sub == nil {
		return apperror.InternalError(fmt.Errorf("payment references missing subscription %s", subID))
	}
	if sub.Status == domain.SubscriptionStatusActive {
		return nil
	}

	plan, err := s.subRepo.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lookup plan: %w", err))
	}
	if plan == nil {
		return apperror.InternalError(fmt.Errorf("subscription references missing plan %s", sub.PlanID))
	}

	endsAt := now.AddDate(0, 0, plan.DurationDays)
	if err := s.subRepo.Activate(ctx, tx, sub.ID, now, endsAt); err != nil {
		return apperror.InternalError(fmt.Errorf("activate subscription: %w", err))
	}
	return nil
}

func (s *PaymentServiceImpl) acceptCallback(gateway domain.Gateway, req ports.GatewayCallback, payment *domain.Payment) {
	if s.auditSvc != nil {
		uid := payment.UserID
		s.auditSvc.Log(context.Background(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       &uid,
			Action:       domain.AuditActionCallbackAccepted,
			ResourceType: "payment",
			ResourceID:   req.ReferenceNo,
			Details:      fmt.Sprintf(`{"gateway":%q,"transaction_id":%q,"status":%q}`, gateway, req.TransactionID, payment.Status),
			IPAddress:    req.ClientIP,
			CreatedAt:    s.now().UTC(),
		})
	}
	s.log.Info().
		Str("gateway", string(gateway)).
		Str("reference_no", req.ReferenceNo).
		Str("transaction_id", req.TransactionID).
		Str("status", string(payment.Status)).
		Msg("gateway callback applied")
}

func (s *PaymentServiceImpl) rejectCallback(gateway domain.Gateway, req ports.GatewayCallback, reason string) {
	if s.auditSvc != nil {
		s.auditSvc.Log(context.Background(), &domain.AuditLog{
			ID:           uuid.New(),
			Action:       domain.AuditActionCallbackRejected,
			ResourceType: "payment",
			ResourceID:   req.ReferenceNo,
			Details:      fmt.Sprintf(`{"gateway":%q,"reason":%q}`, gateway, reason),
			IPAddress:    req.ClientIP,
			CreatedAt:    s.now().UTC(),
		})
	}
	s.log.Warn().
		Str("gateway", string(gateway)).
		Str("reference_no", req.ReferenceNo).
		Str("transaction_id", req.TransactionID).
		Str("reason", reason).
		Msg("gateway callback rejected")
}

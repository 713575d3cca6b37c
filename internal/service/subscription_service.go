package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aura-device-cloud/config"
	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/pkg/apperror"
	"aura-device-cloud/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubscriptionServiceImpl implements ports.SubscriptionService.
type SubscriptionServiceImpl struct {
	subRepo     ports.SubscriptionRepository
	paymentRepo ports.PaymentRepository
	transactor  ports.DBTransactor
	revpay      ports.RevpaySigner
	senangpay   ports.SenangpaySigner
	gateways    config.GatewayConfig
	auditSvc    ports.AuditService
	now         func() time.Time
	log         zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionServiceImpl.
func NewSubscriptionService(
	subRepo ports.SubscriptionRepository,
	paymentRepo ports.PaymentRepository,
	transactor ports.DBTransactor,
	revpay ports.RevpaySigner,
	senangpay ports.SenangpaySigner,
	gateways config.GatewayConfig,
	auditSvc ports.AuditService,
	now func() time.Time,
	log zerolog.Logger,
) *SubscriptionServiceImpl {
	if now == nil {
		now = time.Now
	}
	return &SubscriptionServiceImpl{
		subRepo:     subRepo,
		paymentRepo: paymentRepo,
		transactor:  transactor,
		revpay:      revpay,
		senangpay:   senangpay,
		gateways:    gateways,
		auditSvc:    auditSvc,
		now:         now,
		log:         log,
	}
}

// ListPlans returns all purchasable plans.
func (s *SubscriptionServiceImpl) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	plans, err := s.subRepo.ListPlans(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list plans: %w", err))
	}
	return plans, nil
}

// ListUserSubscriptions returns the user's subscriptions, newest first.
func (s *SubscriptionServiceImpl) ListUserSubscriptions(ctx context.Context, userID uuid.UUID) ([]domain.UserSubscription, error) {
	subs, err := s.subRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list subscriptions: %w", err))
	}
	return subs, nil
}

// CreateCheckout creates a pending subscription + payment pair and returns
// the signed form fields the client posts to the chosen gateway. The
// subscription stays pending until the gateway callback confirms payment.
func (s *SubscriptionServiceImpl) CreateCheckout(ctx context.Context, req ports.CheckoutRequest) (*ports.CheckoutResponse, error) {
	plan, err := s.subRepo.GetPlanByCode(ctx, req.PlanCode)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup plan: %w", err))
	}
	if plan == nil {
		return nil, apperror.ErrNotFound("Plan")
	}

	referenceNo, err := generateReferenceNo()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := s.now().UTC()
	sub := &domain.UserSubscription{
		ID:          uuid.New(),
		UserID:      req.UserID,
		PlanID:      plan.ID,
		Status:      domain.SubscriptionStatusPending,
		MaxMachines: plan.MaxMachines,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.subRepo.Create(ctx, dbTx, sub); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create subscription: %w", err))
	}

	payment := &domain.Payment{
		ID:             uuid.New(),
		UserID:         req.UserID,
		SubscriptionID: sub.ID,
		Gateway:        req.Gateway,
		ReferenceNo:    referenceNo,
		AmountCents:    plan.PriceCents,
		Currency:       plan.Currency,
		Status:         domain.PaymentStatusPending,
		CreatedAt:      now,
	}
	if err := s.paymentRepo.Create(ctx, dbTx, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	fields, err := s.gatewayFields(req.Gateway, payment)
	if err != nil {
		return nil, err
	}

	if s.auditSvc != nil {
		uid := req.UserID
		s.auditSvc.Log(context.Background(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       &uid,
			Action:       domain.AuditActionCheckout,
			ResourceType: "payment",
			ResourceID:   referenceNo,
			Details:      fmt.Sprintf(`{"plan":%q,"gateway":%q}`, plan.Code, req.Gateway),
			IPAddress:    req.ClientIP,
			CreatedAt:    now,
		})
	}

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("plan", plan.Code).
		Str("gateway", string(req.Gateway)).
		Str("reference_no", referenceNo).
		Msg("checkout created")

	return &ports.CheckoutResponse{Payment: payment, GatewayFields: fields}, nil
}

// gatewayFields builds the signed request fields for the gateway redirect.
// Each gateway gets amounts in its own canonical serialization.
func (s *SubscriptionServiceImpl) gatewayFields(gateway domain.Gateway, p *domain.Payment) (map[string]string, error) {
	amount := money.FromCents(p.AmountCents)

	switch gateway {
	case domain.GatewayRevpay:
		creds := s.gateways.Revpay
		return map[string]string{
			"merchant_id":  creds.MerchantID,
			"reference_no": p.ReferenceNo,
			"amount":       s.revpay.FormatAmount(amount),
			"currency":     p.Currency,
			"signature":    s.revpay.PaymentSignature(creds.SecretKey, creds.MerchantID, p.ReferenceNo, amount, p.Currency),
		}, nil
	case domain.GatewaySenangpay:
		creds := s.gateways.Senangpay
		return map[string]string{
			"merchant_id":  creds.MerchantID,
			"reference_no": p.ReferenceNo,
			"amount":       strconv.FormatInt(s.senangpay.FormatAmount(amount), 10),
			"currency":     p.Currency,
			"signature":    s.senangpay.PaymentSignature(creds.SecretKey, creds.MerchantID, p.ReferenceNo, amount, p.Currency),
		}, nil
	default:
		return nil, apperror.Validation(fmt.Sprintf("unsupported gateway: %s", gateway))
	}
}

// generateReferenceNo produces a unique merchant-side order reference.
func generateReferenceNo() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "AUR" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

package ports

import (
	"context"
	"time"

	"aura-device-cloud/internal/core/domain"

	"github.com/google/uuid"
)

// --- Gateway signers ---

// RevpaySigner computes Revpay request/response signatures.
// Revpay concatenates fields with the secret first, hashes with SHA-512
// and serializes amounts as fixed two-decimal strings. Verification is
// case-insensitive (the gateway returns uppercase digests).
type RevpaySigner interface {
	PaymentSignature(secret, merchantID, referenceNo string, amount float64, currency string) string
	ResponseSignature(secret, merchantID, transactionID, responseCode, referenceNo string, amount float64, currency string) string
	RefundSignature(secret, merchantID, referenceNo string, refundAmount float64, originalReferenceNo string) string
	VerifySignature(a, b string) bool
	FormatAmount(amount float64) string
}

// SenangpaySigner computes Senangpay request/response signatures.
// Senangpay concatenates fields with the secret last, hashes with SHA-256
// and serializes amounts as integer cents. Verification is case-sensitive.
type SenangpaySigner interface {
	PaymentSignature(secret, merchantID, referenceNo string, amount float64, currency string) string
	ResponseSignature(secret, merchantID, transactionID, responseCode, referenceNo string, amount float64, currency string) string
	RefundSignature(secret, merchantID, referenceNo string, refundAmount float64, originalReferenceNo string) string
	QueryOrderSignature(secret, merchantID, referenceNo string) string
	QueryTransactionSignature(secret, merchantID, transactionID string) string
	QueryListSignature(secret, merchantID string, startAt, endAt int64) string
	VerifySignature(a, b string) bool
	FormatAmount(amount float64) int64
	AmountFromCents(cents int64) float64
}

// --- Infrastructure service ports ---

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
}

// ReplayGuard remembers gateway transaction IDs so a replayed callback can
// be answered from stored state without touching the database. Seen reports
// whether the ID was already recorded; Remember records it. Callers record
// an ID only after its effects are durable, so a crash mid-callback leaves
// the ID unrecorded and the gateway's retry is processed normally.
type ReplayGuard interface {
	Seen(ctx context.Context, gateway string, transactionID string) (bool, error)
	Remember(ctx context.Context, gateway string, transactionID string, ttl time.Duration) error
}

// AuditService records audit entries (fire-and-forget).
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// BindingService enforces the subscription device quota and performs
// machine bind/unbind atomically.
type BindingService interface {
	Bind(ctx context.Context, req BindRequest) (*domain.Machine, error)
	Unbind(ctx context.Context, req UnbindRequest) (*domain.Machine, error)
	ListMachines(ctx context.Context, userID uuid.UUID) ([]domain.Machine, error)
}

// BindRequest holds validated input for a machine bind.
type BindRequest struct {
	UserID       uuid.UUID
	DeviceUUID   string
	SerialNumber string
	ClientIP     string
}

// UnbindRequest holds validated input for a machine unbind.
type UnbindRequest struct {
	UserID       uuid.UUID
	SerialNumber string
	ClientIP     string
}

// SubscriptionService exposes plans and creates gateway checkouts.
type SubscriptionService interface {
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	ListUserSubscriptions(ctx context.Context, userID uuid.UUID) ([]domain.UserSubscription, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
}

// CheckoutRequest holds validated input for a subscription checkout.
type CheckoutRequest struct {
	UserID   uuid.UUID
	PlanCode string
	Gateway  domain.Gateway
	ClientIP string
}

// CheckoutResponse carries the pending payment plus the signed form fields
// the client posts to the gateway.
type CheckoutResponse struct {
	Payment       *domain.Payment
	GatewayFields map[string]string
}

// PaymentCallbackService verifies and applies asynchronous gateway
// callbacks. A signature mismatch is a rejected callback, not a panic.
type PaymentCallbackService interface {
	HandleRevpayCallback(ctx context.Context, req GatewayCallback) (*domain.Payment, error)
	HandleSenangpayCallback(ctx context.Context, req GatewayCallback) (*domain.Payment, error)
}

// GatewayCallback holds the fields both gateways post back.
type GatewayCallback struct {
	TransactionID string
	ResponseCode  string
	ReferenceNo   string
	Amount        float64
	Currency      string
	Signature     string
	ClientIP      string
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for user registration.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// DeviceService registers mobile devices for an authenticated user.
type DeviceService interface {
	Register(ctx context.Context, req DeviceRegisterRequest) (*domain.Device, error)
}

// DeviceRegisterRequest holds input for device registration.
type DeviceRegisterRequest struct {
	UserID     uuid.UUID
	DeviceUUID string
	Platform   domain.DevicePlatform
	PushToken  *string
	AppVersion string
}

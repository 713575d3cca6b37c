package domain

import (
	"time"

	"github.com/google/uuid"
)

// Gateway identifies which payment gateway a payment goes through.
type Gateway string

const (
	GatewayRevpay    Gateway = "revpay"
	GatewaySenangpay Gateway = "senangpay"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Payment records one checkout attempt against a gateway. ReferenceNo is
// the merchant-side order reference included in the signed gateway request;
// TransactionID is assigned by the gateway and arrives with the callback.
type Payment struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"user_id"`
	SubscriptionID uuid.UUID     `json:"subscription_id"`
	Gateway        Gateway       `json:"gateway"`
	ReferenceNo    string        `json:"reference_no"`
	TransactionID  *string       `json:"transaction_id,omitempty"`
	AmountCents    int64         `json:"amount_cents"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	ProcessedAt    *time.Time    `json:"processed_at,omitempty"`
}

// IsTerminal returns true once the payment reached a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusPaid || p.Status == PaymentStatusFailed
}

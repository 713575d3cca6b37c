package dto

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Name     string `json:"name" binding:"required,min=1,max=100"`
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// DeviceRegisterRequest is the request body for mobile device registration.
// The device UUID is generated by the companion app on first launch.
type DeviceRegisterRequest struct {
	DeviceUUID string  `json:"device_uuid" binding:"required,safe_id,max=64"`
	Platform   string  `json:"platform" binding:"required,oneof=ios android"`
	PushToken  *string `json:"push_token,omitempty" binding:"omitempty,max=512"`
	AppVersion string  `json:"app_version" binding:"omitempty,max=32"`
}

// DeviceResponse is the response body for device registration.
// The push token is never echoed back.
type DeviceResponse struct {
	ID               string `json:"id"`
	DeviceUUID       string `json:"device_uuid"`
	Platform         string `json:"platform"`
	AppVersion       string `json:"app_version,omitempty"`
	LastRegisteredAt string `json:"last_registered_at"`
}

// BindRequest is the request body for binding a machine to the account.
type BindRequest struct {
	DeviceUUID   string `json:"device_uuid" binding:"required,safe_id,max=64"`
	SerialNumber string `json:"serial_number" binding:"required,safe_id,max=32"`
}

// UnbindRequest is the request body for releasing a bound machine.
type UnbindRequest struct {
	SerialNumber string `json:"serial_number" binding:"required,safe_id,max=32"`
}

// MachineResponse is the response body for machine operations.
type MachineResponse struct {
	ID           string  `json:"id"`
	SerialNumber string  `json:"serial_number"`
	Model        string  `json:"model,omitempty"`
	BoundAt      *string `json:"bound_at,omitempty"`
}

// PlanResponse describes a purchasable subscription tier.
type PlanResponse struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
	MaxMachines  int    `json:"max_machines"`
	DurationDays int    `json:"duration_days"`
}

// SubscriptionResponse describes one of the user's subscriptions.
type SubscriptionResponse struct {
	ID          string  `json:"id"`
	PlanID      string  `json:"plan_id"`
	Status      string  `json:"status"`
	MaxMachines int     `json:"max_machines"`
	StartsAt    *string `json:"starts_at,omitempty"`
	EndsAt      *string `json:"ends_at,omitempty"`
}

// CheckoutRequest is the request body for a subscription checkout.
type CheckoutRequest struct {
	PlanCode string `json:"plan_code" binding:"required,safe_id,max=32"`
	Gateway  string `json:"gateway" binding:"required,oneof=revpay senangpay"`
}

// CheckoutResponse carries the pending payment plus the signed form
// fields the client posts to the gateway's hosted payment page.
type CheckoutResponse struct {
	ReferenceNo   string            `json:"reference_no"`
	Gateway       string            `json:"gateway"`
	AmountCents   int64             `json:"amount_cents"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	GatewayFields map[string]string `json:"gateway_fields"`
}

// PaymentResponse is the response body for a processed payment callback.
type PaymentResponse struct {
	ReferenceNo   string  `json:"reference_no"`
	TransactionID *string `json:"transaction_id,omitempty"`
	Status        string  `json:"status"`
	ProcessedAt   *string `json:"processed_at,omitempty"`
}

// RevpayCallbackForm is the form Revpay posts to the return URL.
type RevpayCallbackForm struct {
	TransactionID string  `form:"txn_id" binding:"required,max=100"`
	ResponseCode  string  `form:"response_code" binding:"required,max=10"`
	ReferenceNo   string  `form:"reference_no" binding:"required,max=100"`
	Amount        float64 `form:"amount" binding:"required,gt=0"`
	Currency      string  `form:"currency" binding:"required,len=3"`
	Signature     string  `form:"signature" binding:"required,len=128,hexadecimal"`
}

// SenangpayCallbackForm is the form Senangpay posts to the return URL.
// status_id carries the response code and order_id the merchant reference.
type SenangpayCallbackForm struct {
	TransactionID string  `form:"transaction_id" binding:"required,max=100"`
	StatusID      string  `form:"status_id" binding:"required,max=10"`
	OrderID       string  `form:"order_id" binding:"required,max=100"`
	Amount        float64 `form:"amount" binding:"required,gt=0"`
	Currency      string  `form:"currency" binding:"required,len=3"`
	Hash          string  `form:"hash" binding:"required,len=64,hexadecimal"`
}

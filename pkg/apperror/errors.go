package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrEmailExists() *AppError {
	return New("AUTH_002", "Email is already registered", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Subscription entitlement (SUB) ----

func ErrNoActiveSubscription() *AppError {
	return New("SUB_001", "Please subscribe to a plan to bind a machine.", http.StatusForbidden)
}

func ErrMachineLimitReached() *AppError {
	return New("SUB_002", "Machine limit reached. Upgrade your plan to bind more machines.", http.StatusForbidden)
}

// ---- Machine binding (BIND) ----

func ErrMachineNotFound() *AppError {
	return New("BIND_001", "Machine not found for the given serial number", http.StatusNotFound)
}

func ErrMachineAlreadyBound() *AppError {
	return New("BIND_002", "Machine is already bound to another account", http.StatusConflict)
}

func ErrMachineNotOwned() *AppError {
	return New("BIND_003", "Machine is not bound to this account", http.StatusConflict)
}

// ---- Payment gateway callbacks (SEC / PAY) ----

func ErrInvalidSignature() *AppError {
	return New("SEC_001", "Invalid payment signature", http.StatusUnauthorized)
}

func ErrAmountMismatch() *AppError {
	return New("PAY_001", "Callback amount does not match the payment record", http.StatusBadRequest)
}

func ErrPaymentNotFound() *AppError {
	return New("PAY_002", "Payment reference not found", http.StatusNotFound)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_003", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_002", "Encryption service failure", http.StatusInternalServerError, err)
}

// Validation returns a field-level validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

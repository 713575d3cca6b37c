package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionBind             AuditAction = "MACHINE_BIND"
	AuditActionBindDenied       AuditAction = "MACHINE_BIND_DENIED"
	AuditActionUnbind           AuditAction = "MACHINE_UNBIND"
	AuditActionCheckout         AuditAction = "CHECKOUT"
	AuditActionCallbackAccepted AuditAction = "CALLBACK_ACCEPTED"
	AuditActionCallbackRejected AuditAction = "CALLBACK_REJECTED"
	AuditActionRegister         AuditAction = "REGISTER"
	AuditActionLogin            AuditAction = "LOGIN"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *uuid.UUID  `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a purchasable subscription tier. MaxMachines is the device quota
// each subscription of this plan contributes.
type Plan struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	PriceCents   int64     `json:"price_cents"`
	Currency     string    `json:"currency"`
	MaxMachines  int       `json:"max_machines"`
	DurationDays int       `json:"duration_days"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubscriptionStatus represents the lifecycle state of a user subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// UserSubscription is a user's purchase of a plan. MaxMachines is copied
// from the plan at checkout so later plan edits don't change entitlements
// already sold.
type UserSubscription struct {
	ID          uuid.UUID          `json:"id"`
	UserID      uuid.UUID          `json:"user_id"`
	PlanID      uuid.UUID          `json:"plan_id"`
	Status      SubscriptionStatus `json:"status"`
	MaxMachines int                `json:"max_machines"`
	StartsAt    *time.Time         `json:"starts_at,omitempty"`
	EndsAt      *time.Time         `json:"ends_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// IsActiveAt reports whether the subscription entitles the user at the
// given instant: status active and the instant inside [StartsAt, EndsAt].
func (s *UserSubscription) IsActiveAt(t time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.StartsAt == nil || s.EndsAt == nil {
		return false
	}
	return !t.Before(*s.StartsAt) && !t.After(*s.EndsAt)
}

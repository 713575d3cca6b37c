package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aura-device-cloud/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SubscriptionRepo implements ports.SubscriptionRepository.
type SubscriptionRepo struct {
	pool Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepo.
func NewSubscriptionRepo(pool Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

const planColumns = `id, code, name, price_cents, currency, max_machines, duration_days, created_at`

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	p := &domain.Plan{}
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.PriceCents, &p.Currency,
		&p.MaxMachines, &p.DurationDays, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPlans returns all plans ordered by price.
func (r *SubscriptionRepo) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans ORDER BY price_cents ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		p := domain.Plan{}
		if err := rows.Scan(
			&p.ID, &p.Code, &p.Name, &p.PriceCents, &p.Currency,
			&p.MaxMachines, &p.DurationDays, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// GetPlanByCode fetches a plan by its code.
func (r *SubscriptionRepo) GetPlanByCode(ctx context.Context, code string) (*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE code = $1`

	p, err := scanPlan(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plan by code: %w", err)
	}
	return p, nil
}

// GetPlanByID fetches a plan by UUID.
func (r *SubscriptionRepo) GetPlanByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`

	p, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plan by id: %w", err)
	}
	return p, nil
}

const subColumns = `id, user_id, plan_id, status, max_machines, starts_at, ends_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.UserSubscription, error) {
	s := &domain.UserSubscription{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.MaxMachines,
		&s.StartsAt, &s.EndsAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a pending subscription within the checkout transaction.
func (r *SubscriptionRepo) Create(ctx context.Context, tx pgx.Tx, sub *domain.UserSubscription) error {
	query := `INSERT INTO user_subscriptions (id, user_id, plan_id, status, max_machines, starts_at, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		sub.ID, sub.UserID, sub.PlanID, sub.Status, sub.MaxMachines,
		sub.StartsAt, sub.EndsAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetByID fetches a subscription by UUID (without locking).
func (r *SubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSubscription, error) {
	query := `SELECT ` + subColumns + ` FROM user_subscriptions WHERE id = $1`

	s, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription by id: %w", err)
	}
	return s, nil
}

// GetByIDForUpdate fetches a subscription by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *SubscriptionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.UserSubscription, error) {
	query := `SELECT ` + subColumns + ` FROM user_subscriptions WHERE id = $1 FOR UPDATE`

	s, err := scanSubscription(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription for update: %w", err)
	}
	return s, nil
}

// ListForUser returns the user's subscriptions, newest first.
func (r *SubscriptionRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.UserSubscription, error) {
	query := `SELECT ` + subColumns + ` FROM user_subscriptions WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// ActiveForUser returns subscriptions active at the given instant, read
// inside the bind transaction so the quota stays consistent with the lock.
func (r *SubscriptionRepo) ActiveForUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID, at time.Time) ([]domain.UserSubscription, error) {
	query := `SELECT ` + subColumns + ` FROM user_subscriptions
		WHERE user_id = $1 AND status = $2 AND starts_at <= $3 AND ends_at >= $3`

	rows, err := tx.Query(ctx, query, userID, domain.SubscriptionStatusActive, at)
	if err != nil {
		return nil, fmt.Errorf("active subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// Activate flips the subscription to active with the given validity window.
func (r *SubscriptionRepo) Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID, startsAt, endsAt time.Time) error {
	query := `UPDATE user_subscriptions SET status = $1, starts_at = $2, ends_at = $3, updated_at = NOW()
		WHERE id = $4`

	tag, err := tx.Exec(ctx, query, domain.SubscriptionStatusActive, startsAt, endsAt, id)
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription not found: %s", id)
	}
	return nil
}

func collectSubscriptions(rows pgx.Rows) ([]domain.UserSubscription, error) {
	var subs []domain.UserSubscription
	for rows.Next() {
		s := domain.UserSubscription{}
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.MaxMachines,
			&s.StartsAt, &s.EndsAt, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

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

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, subscription_id, gateway, reference_no, transaction_id, amount_cents, currency, status, created_at, processed_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.SubscriptionID, &p.Gateway, &p.ReferenceNo,
		&p.TransactionID, &p.AmountCents, &p.Currency, &p.Status,
		&p.CreatedAt, &p.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a pending payment within the checkout transaction.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `INSERT INTO payments (id, user_id, subscription_id, gateway, reference_no, transaction_id, amount_cents, currency, status, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.UserID, p.SubscriptionID, p.Gateway, p.ReferenceNo,
		p.TransactionID, p.AmountCents, p.Currency, p.Status,
		p.CreatedAt, p.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByReference fetches a payment by merchant reference (without locking).
func (r *PaymentRepo) GetByReference(ctx context.Context, referenceNo string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference_no = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, referenceNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}
	return p, nil
}

// GetByReferenceForUpdate fetches a payment by reference with pessimistic
// locking. This MUST be called within a transaction; concurrent callbacks
// for the same payment serialize here.
func (r *PaymentRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, referenceNo string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference_no = $1 FOR UPDATE`

	p, err := scanPayment(tx.QueryRow(ctx, query, referenceNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment for update: %w", err)
	}
	return p, nil
}

// MarkProcessed records the gateway's verdict on the payment.
func (r *PaymentRepo) MarkProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, transactionID string, processedAt time.Time) error {
	query := `UPDATE payments SET status = $1, transaction_id = $2, processed_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := tx.Exec(ctx, query, status, transactionID, processedAt, id, domain.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("mark payment processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not pending: %s", id)
	}
	return nil
}

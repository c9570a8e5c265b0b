package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const paymentColumns = `
	id, order_id, provider, provider_payment_id, status,
	amount_minor, currency, failure_reason, created_at, updated_at`

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func (r *paymentRepository) Create(payment domain.Payment) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, provider, provider_payment_id, status,
			amount_minor, currency, failure_reason, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		payment.ID, payment.OrderID, payment.Provider,
		nullString(payment.ProviderPaymentID), string(payment.Status),
		payment.AmountMinor, payment.Currency, nullString(payment.FailureReason),
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		// Уникальны и order_id, и provider_payment_id.
		if isUniqueViolation(err) {
			return domain.ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) Get(id string) (domain.Payment, error) {
	return r.getBy("id", id)
}

func (r *paymentRepository) GetByOrder(orderID string) (domain.Payment, error) {
	return r.getBy("order_id", orderID)
}

func (r *paymentRepository) GetByProviderPaymentID(providerPaymentID string) (domain.Payment, error) {
	return r.getBy("provider_payment_id", providerPaymentID)
}

func (r *paymentRepository) getBy(column, value string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		payment           domain.Payment
		status            string
		providerPaymentID sql.NullString
		failureReason     sql.NullString
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE `+column+` = $1
	`, value).Scan(
		&payment.ID, &payment.OrderID, &payment.Provider, &providerPaymentID, &status,
		&payment.AmountMinor, &payment.Currency, &failureReason,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment by %s: %w", column, err)
	}

	payment.Status = domain.PaymentStatus(status)
	payment.ProviderPaymentID = providerPaymentID.String
	payment.FailureReason = failureReason.String
	return payment, nil
}

func (r *paymentRepository) Save(payment domain.Payment) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET provider_payment_id = $1,
		    status = $2,
		    failure_reason = $3,
		    updated_at = $4
		WHERE id = $5
	`,
		nullString(payment.ProviderPaymentID),
		string(payment.Status),
		nullString(payment.FailureReason),
		payment.UpdatedAt,
		payment.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}

	return nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)

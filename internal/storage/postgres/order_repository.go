package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const orderColumns = `
	id, customer_id, vendor_id, driver_id, status, currency,
	subtotal_minor, tax_minor, delivery_fee_minor, total_minor,
	payment_id, payment_status, cancellation_reason,
	version, created_at, updated_at, delivered_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, vendor_id, driver_id, status, currency,
			subtotal_minor, tax_minor, delivery_fee_minor, total_minor,
			payment_id, payment_status, cancellation_reason,
			version, created_at, updated_at, delivered_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		order.ID, order.CustomerID, order.VendorID, nullString(order.DriverID),
		string(order.Status), order.Currency,
		order.SubtotalMinor, order.TaxMinor, order.DeliveryFeeMinor, order.TotalMinor,
		nullString(order.PaymentID), nullString(string(order.PaymentStatus)),
		nullString(order.CancellationReason),
		order.Version, order.CreatedAt, order.UpdatedAt, nullTime(order.DeliveredAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET driver_id = $1,
		    status = $2,
		    payment_id = $3,
		    payment_status = $4,
		    cancellation_reason = $5,
		    version = version + 1,
		    updated_at = $6,
		    delivered_at = $7
		WHERE id = $8
		  AND version = $9
	`,
		nullString(order.DriverID),
		string(order.Status),
		nullString(order.PaymentID),
		nullString(string(order.PaymentStatus)),
		nullString(order.CancellationReason),
		order.UpdatedAt,
		nullTime(order.DeliveredAt),
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order              domain.Order
		status             string
		driverID           sql.NullString
		paymentID          sql.NullString
		paymentStatus      sql.NullString
		cancellationReason sql.NullString
		deliveredAt        sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.CustomerID, &order.VendorID, &driverID, &status, &order.Currency,
		&order.SubtotalMinor, &order.TaxMinor, &order.DeliveryFeeMinor, &order.TotalMinor,
		&paymentID, &paymentStatus, &cancellationReason,
		&order.Version, &order.CreatedAt, &order.UpdatedAt, &deliveredAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.DriverID = driverID.String
	order.PaymentID = paymentID.String
	order.PaymentStatus = domain.PaymentStatus(paymentStatus.String)
	order.CancellationReason = cancellationReason.String
	if deliveredAt.Valid {
		order.DeliveredAt = deliveredAt.Time
	}
	return order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)

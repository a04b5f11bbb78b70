package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoapp/toko/internal/crypto"
	"github.com/tokoapp/toko/internal/models"
)

// ErrInvalidStatusTransition is returned when a conditional status update
// matches no row: the order is already terminal or absent.
var ErrInvalidStatusTransition = errors.New("invalid order status transition")

type OrderStore struct {
	pool      *pgxpool.Pool
	encryptor crypto.Encryptor
}

func NewOrderStore(pool *pgxpool.Pool, encryptor crypto.Encryptor) (*OrderStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &OrderStore{pool: pool, encryptor: encryptor}, nil
}

// Create writes the order, its item snapshots, and the per-item stock
// reservation as one transaction. Either everything lands or nothing is
// visible to other readers; an insufficient-stock race rolls back the
// whole order and surfaces ErrInsufficientStock.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	contact, err := s.encryptContact(order.ShippingContact)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var createdAt pgtype.Timestamptz
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, status, payment_status, subtotal, shipping_fee, total, shipping_contact)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		order.ID, order.UserID, string(order.Status), string(order.PaymentStatus),
		order.Subtotal, order.ShippingFee, order.Total, contact,
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	order.CreatedAt = createdAt.Time

	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID

		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, price, image_url, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.OrderID, item.ProductID, item.Name, item.Price,
			nullText(item.ImageURL), item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}

		if err := reserveStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, status, payment_status, subtotal, shipping_fee, total, shipping_contact,
	paid_at, stock_restored_at,
	payment_email_sent, payment_email_sent_at,
	failed_email_sent, failed_email_sent_at,
	shipped_email_sent, shipped_email_sent_at,
	created_at`

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return s.scanOrder(row)
}

func (s *OrderStore) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, name, price, image_url, quantity
		FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var (
			item     models.OrderItem
			imageURL pgtype.Text
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name,
			&item.Price, &imageURL, &item.Quantity); err != nil {
			return nil, err
		}
		item.ImageURL = imageURL.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// ApplyGatewayState applies a webhook-mapped (status, payment_status) pair.
// Terminal states are a one-way door: the predicate refuses to overwrite
// them, which is what makes duplicate and out-of-order deliveries safe to
// reprocess. paid_at is set at most once via COALESCE.
func (s *OrderStore) ApplyGatewayState(ctx context.Context, orderID uuid.UUID, status models.OrderStatus, paymentStatus models.PaymentStatus, paidAt time.Time) error {
	var paid pgtype.Timestamptz
	if !paidAt.IsZero() {
		paid = pgtype.Timestamptz{Time: paidAt, Valid: true}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, paid_at = COALESCE(paid_at, $4)
		WHERE id = $1 AND status NOT IN ('cancelled', 'expired', 'completed')`,
		orderID, string(status), string(paymentStatus), paid)
	if err != nil {
		return fmt.Errorf("failed to apply gateway state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s is terminal", ErrInvalidStatusTransition, orderID)
	}
	return nil
}

// Transition moves a non-terminal order to target without touching
// payment_status. This is the admin-driven path.
func (s *OrderStore) Transition(ctx context.Context, orderID uuid.UUID, target models.OrderStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2
		WHERE id = $1 AND status NOT IN ('cancelled', 'expired', 'completed')`,
		orderID, string(target))
	if err != nil {
		return fmt.Errorf("failed to transition order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s is terminal", ErrInvalidStatusTransition, orderID)
	}
	return nil
}

// RestoreStock returns the order's reserved quantities to the ledger at
// most once. The stock_restored_at claim and the product increments commit
// together, so a crashed or concurrently retried delivery can neither
// double-restore nor under-restore. Returns false when already claimed.
func (s *OrderStore) RestoreStock(ctx context.Context, orderID uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET stock_restored_at = NOW()
		WHERE id = $1 AND stock_restored_at IS NULL`, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to claim stock restoration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE products p
		SET stock = p.stock + oi.quantity, updated_at = NOW()
		FROM order_items oi
		WHERE oi.order_id = $1 AND p.id = oi.product_id`, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to restore stock: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit stock restoration: %w", err)
	}
	return true, nil
}

// MarkPaymentEmailSent flips the paid-notification flag, reporting whether
// this call won the flip.
func (s *OrderStore) MarkPaymentEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return s.markEmailSent(ctx, orderID, "payment_email_sent", "payment_email_sent_at")
}

func (s *OrderStore) MarkFailedEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return s.markEmailSent(ctx, orderID, "failed_email_sent", "failed_email_sent_at")
}

func (s *OrderStore) MarkShippedEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return s.markEmailSent(ctx, orderID, "shipped_email_sent", "shipped_email_sent_at")
}

func (s *OrderStore) markEmailSent(ctx context.Context, orderID uuid.UUID, flagColumn, atColumn string) (bool, error) {
	query := fmt.Sprintf(`UPDATE orders SET %s = TRUE, %s = NOW() WHERE id = $1 AND NOT %s`,
		flagColumn, atColumn, flagColumn)
	tag, err := s.pool.Exec(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s: %w", flagColumn, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *OrderStore) scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order              models.Order
		status             string
		paymentStatus      string
		contact            pgtype.Text
		paidAt             pgtype.Timestamptz
		stockRestoredAt    pgtype.Timestamptz
		paymentEmailSentAt pgtype.Timestamptz
		failedEmailSentAt  pgtype.Timestamptz
		shippedEmailSentAt pgtype.Timestamptz
		createdAt          pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID, &order.UserID, &status, &paymentStatus,
		&order.Subtotal, &order.ShippingFee, &order.Total, &contact,
		&paidAt, &stockRestoredAt,
		&order.PaymentEmailSent, &paymentEmailSentAt,
		&order.FailedEmailSent, &failedEmailSentAt,
		&order.ShippedEmailSent, &shippedEmailSentAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatus(status)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.PaidAt = paidAt.Time
	order.StockRestoredAt = stockRestoredAt.Time
	order.PaymentEmailSentAt = paymentEmailSentAt.Time
	order.FailedEmailSentAt = failedEmailSentAt.Time
	order.ShippedEmailSentAt = shippedEmailSentAt.Time
	order.CreatedAt = createdAt.Time

	if contact.Valid && contact.String != "" {
		decrypted, err := s.encryptor.Decrypt(contact.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt shipping contact: %w", err)
		}
		if err := json.Unmarshal([]byte(decrypted), &order.ShippingContact); err != nil {
			return nil, fmt.Errorf("failed to decode shipping contact: %w", err)
		}
	}

	return &order, nil
}

func (s *OrderStore) encryptContact(contact models.ShippingContact) (pgtype.Text, error) {
	if contact == (models.ShippingContact{}) {
		return pgtype.Text{}, nil
	}
	encoded, err := json.Marshal(contact)
	if err != nil {
		return pgtype.Text{}, fmt.Errorf("failed to encode shipping contact: %w", err)
	}
	encrypted, err := s.encryptor.Encrypt(string(encoded))
	if err != nil {
		return pgtype.Text{}, fmt.Errorf("failed to encrypt shipping contact: %w", err)
	}
	return pgtype.Text{String: encrypted, Valid: true}, nil
}

package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoapp/toko/internal/models"
)

type PaymentStore struct {
	pool *pgxpool.Pool
}

func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

func (s *PaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, order_id, provider, provider_order_id, transaction_status, gross_amount, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		payment.ID, payment.OrderID, payment.Provider, payment.ProviderOrderID,
		payment.TransactionStatus, payment.GrossAmount, nullJSON(payment.Payload))
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *PaymentStore) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Payment, error) {
	var (
		payment           models.Payment
		fraudStatus       pgtype.Text
		paymentType       pgtype.Text
		statusCode        pgtype.Text
		payload           []byte
		createdAt         pgtype.Timestamptz
		updatedAt         pgtype.Timestamptz
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, order_id, provider, provider_order_id, transaction_status,
		       fraud_status, payment_type, status_code, gross_amount, payload,
		       created_at, updated_at
		FROM payments WHERE provider_order_id = $1`, providerOrderID,
	).Scan(
		&payment.ID, &payment.OrderID, &payment.Provider, &payment.ProviderOrderID,
		&payment.TransactionStatus, &fraudStatus, &paymentType, &statusCode,
		&payment.GrossAmount, &payload, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.FraudStatus = fraudStatus.String
	payment.PaymentType = paymentType.String
	payment.StatusCode = statusCode.String
	payment.Payload = payload
	payment.CreatedAt = createdAt.Time
	payment.UpdatedAt = updatedAt.Time
	return &payment, nil
}

// RecordNotification overwrites the payment row with the latest gateway
// view. The gateway is the source of truth for this sub-record, so the
// write is unconditional and last-write-wins.
func (s *PaymentStore) RecordNotification(ctx context.Context, paymentID uuid.UUID, transactionStatus, fraudStatus, paymentType, statusCode string, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET transaction_status = $2, fraud_status = $3, payment_type = $4,
		    status_code = $5, payload = $6, updated_at = NOW()
		WHERE id = $1`,
		paymentID, transactionStatus, nullText(fraudStatus), nullText(paymentType),
		nullText(statusCode), nullJSON(payload))
	if err != nil {
		return fmt.Errorf("failed to record payment notification: %w", err)
	}
	return nil
}

func nullJSON(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	return payload
}

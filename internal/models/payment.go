package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment is one row per gateway session. ProviderOrderID is the
// gateway-facing correlation key; the raw notification payload is kept
// verbatim for audit and replay, last write wins.
type Payment struct {
	ID                uuid.UUID `json:"id"`
	OrderID           uuid.UUID `json:"order_id"`
	Provider          string    `json:"provider"`
	ProviderOrderID   string    `json:"provider_order_id"`
	TransactionStatus string    `json:"transaction_status"`
	FraudStatus       string    `json:"fraud_status,omitempty"`
	PaymentType       string    `json:"payment_type,omitempty"`
	StatusCode        string    `json:"status_code,omitempty"`
	GrossAmount       int64     `json:"gross_amount"`
	Payload           []byte    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
	StatusExpired   OrderStatus = "expired"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

// IsTerminal reports whether the status permits no further transition.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusCompleted:
		return true
	default:
		return false
	}
}

// ReleasesStock reports whether reaching this status returns the order's
// reserved stock to the ledger.
func (s OrderStatus) ReleasesStock() bool {
	return s == StatusCancelled || s == StatusExpired
}

// ShippingContact is the checkout-submitted delivery contact. It is stored
// encrypted at rest and echoed to the payment gateway as customer details.
type ShippingContact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Subtotal        int64           `json:"subtotal"`
	ShippingFee     int64           `json:"shipping_fee"`
	Total           int64           `json:"total"`
	ShippingContact ShippingContact `json:"shipping_contact"`

	PaidAt          time.Time `json:"paid_at,omitzero"`
	StockRestoredAt time.Time `json:"stock_restored_at,omitzero"`

	PaymentEmailSent   bool      `json:"payment_email_sent"`
	PaymentEmailSentAt time.Time `json:"payment_email_sent_at,omitzero"`
	FailedEmailSent    bool      `json:"failed_email_sent"`
	FailedEmailSentAt  time.Time `json:"failed_email_sent_at,omitzero"`
	ShippedEmailSent   bool      `json:"shipped_email_sent"`
	ShippedEmailSentAt time.Time `json:"shipped_email_sent_at,omitzero"`

	CreatedAt time.Time `json:"created_at"`

	Items []OrderItem `json:"items,omitempty"`
}

// OrderItem is an immutable snapshot of a product line at order time.
// Later catalog edits must never alter historical invoices.
type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	ImageURL  string    `json:"image_url,omitempty"`
	Quantity  int       `json:"quantity"`
}

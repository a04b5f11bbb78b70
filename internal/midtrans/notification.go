package midtrans

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tokoapp/toko/internal/models"
)

// Notification is the usable subset of a Midtrans HTTP notification.
// Midtrans sends gross_amount as a decimal string ("150000.00") and omits
// fraud_status for most payment types, so every field stays a string and
// mapping tolerates absence.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
}

// ReadNotification decodes a notification request, returning both the parsed
// form and the raw body so callers can persist the full payload. Midtrans
// sends JSON; form-encoded bodies are accepted as a fallback.
func ReadNotification(r *http.Request) (*Notification, []byte, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read notification body: %w", err)
	}

	var notification Notification
	if err := json.Unmarshal(payload, &notification); err != nil {
		form, formErr := url.ParseQuery(string(payload))
		if formErr != nil {
			return nil, payload, fmt.Errorf("failed to decode notification: %w", err)
		}
		notification = Notification{
			OrderID:           form.Get("order_id"),
			StatusCode:        form.Get("status_code"),
			GrossAmount:       form.Get("gross_amount"),
			SignatureKey:      form.Get("signature_key"),
			TransactionStatus: form.Get("transaction_status"),
			FraudStatus:       form.Get("fraud_status"),
			PaymentType:       form.Get("payment_type"),
			TransactionID:     form.Get("transaction_id"),
		}
	}
	if notification.OrderID == "" {
		return nil, payload, fmt.Errorf("notification missing order_id")
	}

	return &notification, payload, nil
}

// Verify checks the notification signature against the merchant server key.
func (n *Notification) Verify(serverKey string) bool {
	return VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey, n.SignatureKey)
}

// MapToOrder translates a gateway transaction status into the order and
// payment statuses it implies. Unrecognized statuses map to pending rather
// than an error: the gateway adds statuses over time and a webhook that 500s
// forever would wedge retries.
func (n *Notification) MapToOrder() (models.OrderStatus, models.PaymentStatus) {
	switch n.TransactionStatus {
	case "settlement":
		return models.StatusPaid, models.PaymentPaid
	case "capture":
		if n.FraudStatus == "challenge" {
			return models.StatusPending, models.PaymentUnpaid
		}
		return models.StatusPaid, models.PaymentPaid
	case "deny", "cancel", "failure":
		return models.StatusCancelled, models.PaymentFailed
	case "expire":
		return models.StatusExpired, models.PaymentFailed
	default:
		return models.StatusPending, models.PaymentUnpaid
	}
}

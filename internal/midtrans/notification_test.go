package midtrans

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tokoapp/toko/internal/models"
)

func TestReadNotification(t *testing.T) {
	t.Parallel()

	body := `{"order_id":"order-123","status_code":"200","gross_amount":"150000.00","signature_key":"abc","transaction_status":"settlement","payment_type":"qris","unknown_field":true}`
	req := httptest.NewRequest("POST", "/webhooks/midtrans", bytes.NewBufferString(body))

	notification, payload, err := ReadNotification(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notification.OrderID != "order-123" {
		t.Fatalf("unexpected order_id: %q", notification.OrderID)
	}
	if notification.TransactionStatus != "settlement" {
		t.Fatalf("unexpected transaction_status: %q", notification.TransactionStatus)
	}
	if string(payload) != body {
		t.Fatal("raw payload should be returned unmodified")
	}
}

func TestReadNotification_FormFallback(t *testing.T) {
	t.Parallel()

	body := "order_id=order-123&status_code=200&gross_amount=150000.00&transaction_status=settlement&signature_key=abc"
	req := httptest.NewRequest("POST", "/webhooks/midtrans", bytes.NewBufferString(body))

	notification, _, err := ReadNotification(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notification.OrderID != "order-123" || notification.TransactionStatus != "settlement" {
		t.Fatalf("form body not parsed: %+v", notification)
	}
}

func TestReadNotification_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"neither json nor form", "%zz"},
		{"form missing order_id", "transaction_status=settlement"},
		{"missing order_id", `{"transaction_status":"settlement"}`},
		{"empty body", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest("POST", "/webhooks/midtrans", bytes.NewBufferString(tt.body))
			if _, _, err := ReadNotification(req); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNotification_MapToOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		transactionStatus string
		fraudStatus       string
		wantStatus        models.OrderStatus
		wantPayment       models.PaymentStatus
	}{
		{"settlement", "settlement", "", models.StatusPaid, models.PaymentPaid},
		{"capture accepted", "capture", "accept", models.StatusPaid, models.PaymentPaid},
		{"capture no fraud status", "capture", "", models.StatusPaid, models.PaymentPaid},
		{"capture challenged", "capture", "challenge", models.StatusPending, models.PaymentUnpaid},
		{"deny", "deny", "", models.StatusCancelled, models.PaymentFailed},
		{"cancel", "cancel", "", models.StatusCancelled, models.PaymentFailed},
		{"failure", "failure", "", models.StatusCancelled, models.PaymentFailed},
		{"expire", "expire", "", models.StatusExpired, models.PaymentFailed},
		{"pending", "pending", "", models.StatusPending, models.PaymentUnpaid},
		{"unrecognized", "refund_requested", "", models.StatusPending, models.PaymentUnpaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := &Notification{TransactionStatus: tt.transactionStatus, FraudStatus: tt.fraudStatus}
			status, payment := n.MapToOrder()
			if status != tt.wantStatus || payment != tt.wantPayment {
				t.Fatalf("MapToOrder() = (%s, %s), want (%s, %s)",
					status, payment, tt.wantStatus, tt.wantPayment)
			}
		})
	}
}

func TestProviderOrderIDRoundTrip(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	providerOrderID := ProviderOrderID(orderID)

	got, ok := OrderIDFromProvider(providerOrderID)
	if !ok || got != orderID {
		t.Fatalf("OrderIDFromProvider(%q) = (%s, %v)", providerOrderID, got, ok)
	}

	for _, bad := range []string{"", "order-", "order-not-a-uuid", orderID.String()} {
		if _, ok := OrderIDFromProvider(bad); ok {
			t.Fatalf("OrderIDFromProvider(%q) should not parse", bad)
		}
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tokoapp/toko/internal/db"
	"github.com/tokoapp/toko/internal/midtrans"
	"github.com/tokoapp/toko/internal/models"
)

const reconcilerServerKey = "SB-Mid-server-reconciler"

type appliedState struct {
	orderID       uuid.UUID
	status        models.OrderStatus
	paymentStatus models.PaymentStatus
	paidAt        time.Time
}

type fakeReconcilerOrders struct {
	orders map[uuid.UUID]*models.Order

	applied      []appliedState
	applyErr     error
	restored     []uuid.UUID
	paidMarked   []uuid.UUID
	failedMarked []uuid.UUID
}

func (f *fakeReconcilerOrders) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *order
	return &copied, nil
}

func (f *fakeReconcilerOrders) ApplyGatewayState(_ context.Context, orderID uuid.UUID, status models.OrderStatus, paymentStatus models.PaymentStatus, paidAt time.Time) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, appliedState{orderID, status, paymentStatus, paidAt})
	if order, ok := f.orders[orderID]; ok {
		order.Status = status
		order.PaymentStatus = paymentStatus
	}
	return nil
}

func (f *fakeReconcilerOrders) RestoreStock(_ context.Context, orderID uuid.UUID) (bool, error) {
	for _, already := range f.restored {
		if already == orderID {
			return false, nil
		}
	}
	f.restored = append(f.restored, orderID)
	return true, nil
}

func (f *fakeReconcilerOrders) MarkPaymentEmailSent(_ context.Context, orderID uuid.UUID) (bool, error) {
	f.paidMarked = append(f.paidMarked, orderID)
	if order, ok := f.orders[orderID]; ok {
		order.PaymentEmailSent = true
	}
	return true, nil
}

func (f *fakeReconcilerOrders) MarkFailedEmailSent(_ context.Context, orderID uuid.UUID) (bool, error) {
	f.failedMarked = append(f.failedMarked, orderID)
	if order, ok := f.orders[orderID]; ok {
		order.FailedEmailSent = true
	}
	return true, nil
}

type recordedNotification struct {
	paymentID         uuid.UUID
	transactionStatus string
}

type fakeReconcilerPayments struct {
	payments map[string]*models.Payment
	created  []*models.Payment
	recorded []recordedNotification
}

func (f *fakeReconcilerPayments) Create(_ context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	f.created = append(f.created, payment)
	f.payments[payment.ProviderOrderID] = payment
	return nil
}

func (f *fakeReconcilerPayments) GetByProviderOrderID(_ context.Context, providerOrderID string) (*models.Payment, error) {
	payment, ok := f.payments[providerOrderID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return payment, nil
}

func (f *fakeReconcilerPayments) RecordNotification(_ context.Context, paymentID uuid.UUID, transactionStatus, _, _, _ string, _ []byte) error {
	f.recorded = append(f.recorded, recordedNotification{paymentID, transactionStatus})
	return nil
}

type sentEmail struct {
	kind    string
	orderID uuid.UUID
	reason  string
}

type fakeEmailSender struct {
	sent    []sentEmail
	sendErr error
}

func (f *fakeEmailSender) SendOrderPaid(_ context.Context, order *models.Order) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEmail{kind: "paid", orderID: order.ID})
	return nil
}

func (f *fakeEmailSender) SendOrderFailed(_ context.Context, order *models.Order, reason string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEmail{kind: "failed", orderID: order.ID, reason: reason})
	return nil
}

func (f *fakeEmailSender) SendOrderShipped(_ context.Context, order *models.Order) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEmail{kind: "shipped", orderID: order.ID})
	return nil
}

type reconcilerFixture struct {
	service  *ReconcilerService
	orders   *fakeReconcilerOrders
	payments *fakeReconcilerPayments
	emails   *fakeEmailSender
	order    *models.Order
	payment  *models.Payment
}

func newReconcilerFixture() *reconcilerFixture {
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentUnpaid,
		Subtotal:      150_000,
		ShippingFee:   25_000,
		Total:         175_000,
		ShippingContact: models.ShippingContact{
			Name:  "Budi",
			Email: "budi@example.com",
		},
	}
	payment := &models.Payment{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Provider:        "midtrans",
		ProviderOrderID: midtrans.ProviderOrderID(order.ID),
		GrossAmount:     order.Total,
	}

	orders := &fakeReconcilerOrders{orders: map[uuid.UUID]*models.Order{order.ID: order}}
	payments := &fakeReconcilerPayments{payments: map[string]*models.Payment{payment.ProviderOrderID: payment}}
	emails := &fakeEmailSender{}
	service := NewReconcilerService(orders, payments, reconcilerServerKey, emails, slog.Default())

	return &reconcilerFixture{
		service:  service,
		orders:   orders,
		payments: payments,
		emails:   emails,
		order:    order,
		payment:  payment,
	}
}

func (f *reconcilerFixture) notification(transactionStatus, fraudStatus string) *midtrans.Notification {
	providerOrderID := midtrans.ProviderOrderID(f.order.ID)
	grossAmount := fmt.Sprintf("%d.00", f.order.Total)
	return &midtrans.Notification{
		OrderID:           providerOrderID,
		StatusCode:        "200",
		GrossAmount:       grossAmount,
		SignatureKey:      midtrans.Signature(providerOrderID, "200", grossAmount, reconcilerServerKey),
		TransactionStatus: transactionStatus,
		FraudStatus:       fraudStatus,
		PaymentType:       "qris",
	}
}

func TestProcessNotification_InvalidSignature(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	notification := f.notification("settlement", "")
	notification.SignatureKey = "tampered"

	err := f.service.ProcessNotification(context.Background(), notification, []byte(`{}`))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if len(f.payments.recorded) != 0 || len(f.orders.applied) != 0 {
		t.Fatal("no state may be touched on an unverified payload")
	}
}

func TestProcessNotification_Settlement(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	err := f.service.ProcessNotification(context.Background(), f.notification("settlement", ""), []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.payments.recorded) != 1 || f.payments.recorded[0].transactionStatus != "settlement" {
		t.Fatalf("unexpected payment records: %+v", f.payments.recorded)
	}

	if len(f.orders.applied) != 1 {
		t.Fatalf("expected 1 applied state, got %d", len(f.orders.applied))
	}
	applied := f.orders.applied[0]
	if applied.status != models.StatusPaid || applied.paymentStatus != models.PaymentPaid {
		t.Fatalf("unexpected applied state: %+v", applied)
	}
	if applied.paidAt.IsZero() {
		t.Fatal("paid_at should be set on settlement")
	}

	if len(f.emails.sent) != 1 || f.emails.sent[0].kind != "paid" {
		t.Fatalf("expected one paid email, got %+v", f.emails.sent)
	}
	if len(f.orders.paidMarked) != 1 {
		t.Fatal("payment email flag should be marked")
	}
	if len(f.orders.restored) != 0 {
		t.Fatal("settlement must not restore stock")
	}
}

func TestProcessNotification_DuplicateSettlementSendsOneEmail(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	ctx := context.Background()

	if err := f.service.ProcessNotification(ctx, f.notification("settlement", ""), []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The order is now paid (non-terminal) with the email flag set; an
	// identical retry reprocesses cleanly.
	if err := f.service.ProcessNotification(ctx, f.notification("settlement", ""), []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error on duplicate: %v", err)
	}

	if len(f.emails.sent) != 1 {
		t.Fatalf("duplicate delivery should not re-send email, got %d", len(f.emails.sent))
	}
	if len(f.payments.recorded) != 2 {
		t.Fatal("payment record updates are last-write-wins and unconditional")
	}
}

func TestProcessNotification_FraudChallengeStaysPending(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	err := f.service.ProcessNotification(context.Background(), f.notification("capture", "challenge"), []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	applied := f.orders.applied[0]
	if applied.status != models.StatusPending || applied.paymentStatus != models.PaymentUnpaid {
		t.Fatalf("challenged capture should stay pending/unpaid, got %+v", applied)
	}
	if !applied.paidAt.IsZero() {
		t.Fatal("paid_at must not be set on a challenged capture")
	}
	if len(f.emails.sent) != 0 {
		t.Fatal("no email for a challenged capture")
	}
}

func TestProcessNotification_ExpireRestoresStockOnce(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	ctx := context.Background()

	if err := f.service.ProcessNotification(ctx, f.notification("expire", ""), []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.orders.applied) != 1 || f.orders.applied[0].status != models.StatusExpired {
		t.Fatalf("unexpected applied states: %+v", f.orders.applied)
	}
	if len(f.orders.restored) != 1 {
		t.Fatalf("expected one stock restoration, got %d", len(f.orders.restored))
	}
	if len(f.emails.sent) != 1 || f.emails.sent[0].kind != "failed" || f.emails.sent[0].reason != "expire" {
		t.Fatalf("expected one failure email with reason expire, got %+v", f.emails.sent)
	}

	// Retry after the order is terminal: acknowledged, nothing reapplied.
	if err := f.service.ProcessNotification(ctx, f.notification("expire", ""), []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if len(f.orders.applied) != 1 || len(f.orders.restored) != 1 || len(f.emails.sent) != 1 {
		t.Fatal("terminal order retry must not reapply state, restock, or re-email")
	}
}

func TestProcessNotification_PaidAfterTerminalIsAnomalyNotResurrection(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	f.order.Status = models.StatusCancelled
	f.order.PaymentStatus = models.PaymentFailed

	err := f.service.ProcessNotification(context.Background(), f.notification("settlement", ""), []byte(`{}`))
	if err != nil {
		t.Fatalf("stale settlement must be acknowledged, got %v", err)
	}

	if len(f.orders.applied) != 0 {
		t.Fatal("terminal order must not be resurrected")
	}
	if len(f.payments.recorded) != 1 {
		t.Fatal("payment record is still updated for a terminal order")
	}
	if len(f.emails.sent) != 0 {
		t.Fatal("no email for a terminal order")
	}
}

func TestProcessNotification_ConcurrentTerminalRaceIsAcknowledged(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	f.orders.applyErr = fmt.Errorf("%w: order %s is terminal", db.ErrInvalidStatusTransition, f.order.ID)

	err := f.service.ProcessNotification(context.Background(), f.notification("settlement", ""), []byte(`{}`))
	if err != nil {
		t.Fatalf("losing the terminal race must still acknowledge, got %v", err)
	}
}

func TestProcessNotification_UnknownOrderIsAcknowledged(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	providerOrderID := midtrans.ProviderOrderID(uuid.New())
	notification := &midtrans.Notification{
		OrderID:           providerOrderID,
		StatusCode:        "200",
		GrossAmount:       "99000.00",
		SignatureKey:      midtrans.Signature(providerOrderID, "200", "99000.00", reconcilerServerKey),
		TransactionStatus: "settlement",
	}

	err := f.service.ProcessNotification(context.Background(), notification, []byte(`{}`))
	if err != nil {
		t.Fatalf("unknown order must be acknowledged, got %v", err)
	}
	if len(f.orders.applied) != 0 || len(f.payments.recorded) != 0 {
		t.Fatal("no state may change for an unknown order")
	}
}

func TestProcessNotification_BackfillsMissingPaymentRow(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	delete(f.payments.payments, f.payment.ProviderOrderID)

	err := f.service.ProcessNotification(context.Background(), f.notification("settlement", ""), []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.payments.created) != 1 {
		t.Fatalf("expected payment backfill, got %d", len(f.payments.created))
	}
	if f.payments.created[0].OrderID != f.order.ID {
		t.Fatal("backfilled payment should reference the correlated order")
	}
	if len(f.orders.applied) != 1 || f.orders.applied[0].status != models.StatusPaid {
		t.Fatal("reconciliation should proceed after backfill")
	}
}

func TestProcessNotification_EmailFailureDoesNotFailWebhook(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture()
	f.emails.sendErr = errors.New("smtp down")

	err := f.service.ProcessNotification(context.Background(), f.notification("settlement", ""), []byte(`{}`))
	if err != nil {
		t.Fatalf("email failure must not fail the webhook, got %v", err)
	}
	if len(f.orders.paidMarked) != 0 {
		t.Fatal("flag must not be set when the send failed")
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tokoapp/toko/internal/db"
	"github.com/tokoapp/toko/internal/logging"
	"github.com/tokoapp/toko/internal/midtrans"
	"github.com/tokoapp/toko/internal/models"
	"github.com/tokoapp/toko/internal/observability"
)

// ErrInvalidSignature marks a notification whose digest does not match the
// merchant server key. No state is read or written for such payloads.
var ErrInvalidSignature = errors.New("invalid notification signature")

type reconcilerOrderStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ApplyGatewayState(ctx context.Context, orderID uuid.UUID, status models.OrderStatus, paymentStatus models.PaymentStatus, paidAt time.Time) error
	RestoreStock(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkPaymentEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkFailedEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type reconcilerPaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Payment, error)
	RecordNotification(ctx context.Context, paymentID uuid.UUID, transactionStatus, fraudStatus, paymentType, statusCode string, payload []byte) error
}

// ReconcilerService applies gateway notifications to order state. It is the
// sole writer of payment-driven status, and every step tolerates duplicate
// and out-of-order delivery.
type ReconcilerService struct {
	orderStore   reconcilerOrderStore
	paymentStore reconcilerPaymentStore
	serverKey    string
	emailSender  OrderEmailSender
	logger       *slog.Logger
}

func NewReconcilerService(orderStore reconcilerOrderStore, paymentStore reconcilerPaymentStore, serverKey string, emailSender OrderEmailSender, logger *slog.Logger) *ReconcilerService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &ReconcilerService{
		orderStore:   orderStore,
		paymentStore: paymentStore,
		serverKey:    serverKey,
		emailSender:  emailSender,
		logger:       logger,
	}
}

// ProcessNotification runs the reconciliation algorithm for one delivery.
// A nil return means the gateway must receive a success acknowledgment,
// including the unknown-order case; ErrInvalidSignature means reject without
// having touched any state; anything else is an internal failure the gateway
// should retry.
func (s *ReconcilerService) ProcessNotification(ctx context.Context, notification *midtrans.Notification, payload []byte) error {
	span := sentry.StartSpan(
		ctx,
		"service.reconciler.process_notification",
		sentry.WithOpName("service.reconciler"),
		sentry.WithDescription("ProcessNotification"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)
	meter.Count("webhook.notification.received", 1, sentry.WithAttributes(
		attribute.String("transaction_status", notification.TransactionStatus),
	))

	if !notification.Verify(s.serverKey) {
		meter.Count("webhook.notification.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", "invalid_signature"),
		))
		return fmt.Errorf("%w: provider_order_id %s", ErrInvalidSignature, notification.OrderID)
	}

	order, payment, err := s.resolveOrder(ctx, logger, notification)
	if err != nil {
		return err
	}
	if order == nil {
		// Unknown to us. Acknowledge so the gateway stops retrying; a
		// redeploy cannot retroactively make this delivery resolvable.
		meter.Count("webhook.notification.unmatched", 1)
		logger.Warn("notification does not match any order",
			"provider_order_id", notification.OrderID,
			"transaction_status", notification.TransactionStatus)
		return nil
	}

	if err := s.paymentStore.RecordNotification(ctx, payment.ID,
		notification.TransactionStatus, notification.FraudStatus,
		notification.PaymentType, notification.StatusCode, payload); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	status, paymentStatus := notification.MapToOrder()

	if order.Status.IsTerminal() {
		if status == models.StatusPaid {
			logger.Warn("paid notification for terminal order, not resurrecting",
				"order_id", order.ID,
				"order_status", order.Status,
				"transaction_status", notification.TransactionStatus)
			meter.Count("webhook.notification.anomaly", 1, sentry.WithAttributes(
				attribute.String("reason", "paid_after_terminal"),
			))
		}
		return nil
	}

	var paidAt time.Time
	if paymentStatus == models.PaymentPaid {
		paidAt = time.Now()
	}

	if err := s.orderStore.ApplyGatewayState(ctx, order.ID, status, paymentStatus, paidAt); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			// A concurrent delivery won the race into a terminal state.
			logger.Info("order reached terminal state concurrently",
				"order_id", order.ID,
				"transaction_status", notification.TransactionStatus)
			return nil
		}
		return fmt.Errorf("failed to apply order state: %w", err)
	}
	meter.Count("order.status.applied", 1, sentry.WithAttributes(
		attribute.String("status", string(status)),
	))

	if status.ReleasesStock() {
		restored, err := s.orderStore.RestoreStock(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to restore stock: %w", err)
		}
		if restored {
			meter.Count("order.stock.restored", 1)
			logger.Info("restored stock for failed order", "order_id", order.ID, "status", status)
		}
	}

	s.sendLifecycleEmail(ctx, logger, order, status, paymentStatus, notification.TransactionStatus)

	logger.Info("notification reconciled",
		"order_id", order.ID,
		"transaction_status", notification.TransactionStatus,
		"status", status,
		"payment_status", paymentStatus)

	return nil
}

// resolveOrder finds the order a notification refers to. The payments table
// is the primary correlation; the reversible provider_order_id derivation is
// the fallback when no payment row exists. A (nil, nil, nil) return means
// the delivery is unmatched and should be acknowledged.
func (s *ReconcilerService) resolveOrder(ctx context.Context, logger *slog.Logger, notification *midtrans.Notification) (*models.Order, *models.Payment, error) {
	payment, err := s.paymentStore.GetByProviderOrderID(ctx, notification.OrderID)
	if err == nil {
		order, err := s.orderStore.GetByID(ctx, payment.OrderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil, nil
			}
			return nil, nil, fmt.Errorf("failed to load order: %w", err)
		}
		return order, payment, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("failed to look up payment: %w", err)
	}

	orderID, ok := midtrans.OrderIDFromProvider(notification.OrderID)
	if !ok {
		return nil, nil, nil
	}

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load order: %w", err)
	}

	// Backfill the missing payment row so later deliveries correlate
	// directly.
	payment = &models.Payment{
		OrderID:           order.ID,
		Provider:          "midtrans",
		ProviderOrderID:   notification.OrderID,
		TransactionStatus: notification.TransactionStatus,
		GrossAmount:       order.Total,
	}
	if err := s.paymentStore.Create(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("failed to backfill payment: %w", err)
	}
	logger.Warn("backfilled missing payment row from notification",
		"order_id", order.ID,
		"provider_order_id", notification.OrderID)

	return order, payment, nil
}

// sendLifecycleEmail delivers the paid or failed notification at most once
// per order. Delivery problems are logged and swallowed: the gateway has to
// get its acknowledgment once state is durable.
func (s *ReconcilerService) sendLifecycleEmail(ctx context.Context, logger *slog.Logger, order *models.Order, status models.OrderStatus, paymentStatus models.PaymentStatus, transactionStatus string) {
	meter := observability.MeterFromContext(ctx)

	switch {
	case paymentStatus == models.PaymentPaid:
		if order.PaymentEmailSent {
			return
		}
		if err := s.emailSender.SendOrderPaid(ctx, order); err != nil {
			logger.Error("failed to send payment email", "error", err, "order_id", order.ID)
			return
		}
		flipped, err := s.orderStore.MarkPaymentEmailSent(ctx, order.ID)
		if err != nil {
			logger.Error("failed to mark payment email sent", "error", err, "order_id", order.ID)
			return
		}
		if flipped {
			meter.Count("email.order_paid.sent", 1)
		}

	case status.ReleasesStock():
		if order.FailedEmailSent {
			return
		}
		if err := s.emailSender.SendOrderFailed(ctx, order, transactionStatus); err != nil {
			logger.Error("failed to send failure email", "error", err, "order_id", order.ID)
			return
		}
		flipped, err := s.orderStore.MarkFailedEmailSent(ctx, order.ID)
		if err != nil {
			logger.Error("failed to mark failure email sent", "error", err, "order_id", order.ID)
			return
		}
		if flipped {
			meter.Count("email.order_failed.sent", 1)
		}
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/tokoapp/toko/internal/logging"
	"github.com/tokoapp/toko/internal/models"
	"github.com/tokoapp/toko/internal/observability"
)

// ErrInvalidTargetStatus marks an admin transition to a status outside the
// allowed set.
var ErrInvalidTargetStatus = errors.New("invalid target status")

type adminOrderStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, target models.OrderStatus) error
	MarkShippedEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// AdminService applies operator-driven status transitions. This path never
// touches payment_status or stock; the reconciler owns those.
type AdminService struct {
	orderStore  adminOrderStore
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewAdminService(orderStore adminOrderStore, emailSender OrderEmailSender, logger *slog.Logger) *AdminService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &AdminService{
		orderStore:  orderStore,
		emailSender: emailSender,
		logger:      logger,
	}
}

// UpdateStatus moves a non-terminal order to target. Allowed targets are
// shipped, completed, and cancelled.
func (s *AdminService) UpdateStatus(ctx context.Context, orderID uuid.UUID, target models.OrderStatus) error {
	span := sentry.StartSpan(
		ctx,
		"service.admin.update_status",
		sentry.WithOpName("service.admin"),
		sentry.WithDescription("UpdateStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)

	switch target {
	case models.StatusShipped, models.StatusCompleted, models.StatusCancelled:
	default:
		meter.Count("admin.transition.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", "invalid_target"),
		))
		return fmt.Errorf("%w: %s", ErrInvalidTargetStatus, target)
	}

	if err := s.orderStore.Transition(ctx, orderID, target); err != nil {
		meter.Count("admin.transition.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", "transition_failed"),
		))
		return err
	}
	meter.Count("admin.transition.applied", 1, sentry.WithAttributes(
		attribute.String("status", string(target)),
	))
	logger.Info("admin transitioned order", "order_id", orderID, "status", target)

	if target == models.StatusShipped {
		s.sendShippedEmail(ctx, logger, orderID)
	}

	return nil
}

// sendShippedEmail delivers the shipment notification at most once per
// order. An admin retrying a failed request must not double-send.
func (s *AdminService) sendShippedEmail(ctx context.Context, logger *slog.Logger, orderID uuid.UUID) {
	meter := observability.MeterFromContext(ctx)

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		logger.Error("failed to load order for shipped email", "error", err, "order_id", orderID)
		return
	}
	if order.ShippedEmailSent {
		return
	}

	if err := s.emailSender.SendOrderShipped(ctx, order); err != nil {
		logger.Error("failed to send shipped email", "error", err, "order_id", orderID)
		return
	}

	flipped, err := s.orderStore.MarkShippedEmailSent(ctx, orderID)
	if err != nil {
		logger.Error("failed to mark shipped email sent", "error", err, "order_id", orderID)
		return
	}
	if flipped {
		meter.Count("email.order_shipped.sent", 1)
	}
}

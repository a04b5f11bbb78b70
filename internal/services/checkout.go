package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/tokoapp/toko/internal/db"
	"github.com/tokoapp/toko/internal/logging"
	"github.com/tokoapp/toko/internal/midtrans"
	"github.com/tokoapp/toko/internal/models"
	"github.com/tokoapp/toko/internal/observability"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrProductUnavailable = errors.New("product is missing or inactive")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// ShippingRule is the deterministic shipping fee: a flat fee up to and
// including the free threshold, free strictly above it.
type ShippingRule struct {
	FlatFee       int64
	FreeThreshold int64
}

func (r ShippingRule) Fee(subtotal int64) int64 {
	if subtotal > r.FreeThreshold {
		return 0
	}
	return r.FlatFee
}

type checkoutProductReader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type checkoutOrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Transition(ctx context.Context, orderID uuid.UUID, target models.OrderStatus) error
	RestoreStock(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type checkoutPaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
}

type snapClient interface {
	CreateTransaction(ctx context.Context, params midtrans.TransactionParams) (*midtrans.Transaction, error)
}

// CheckoutService turns a validated cart into a pending order with reserved
// stock and a gateway payment session.
type CheckoutService struct {
	productStore checkoutProductReader
	orderStore   checkoutOrderStore
	paymentStore checkoutPaymentStore
	snap         snapClient
	shipping     ShippingRule
	logger       *slog.Logger
}

func NewCheckoutService(productStore checkoutProductReader, orderStore checkoutOrderStore, paymentStore checkoutPaymentStore, snap snapClient, shipping ShippingRule, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		productStore: productStore,
		orderStore:   orderStore,
		paymentStore: paymentStore,
		snap:         snap,
		shipping:     shipping,
		logger:       logger,
	}
}

type CheckoutItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type CheckoutInput struct {
	UserID  uuid.UUID
	Items   []CheckoutItem
	Contact models.ShippingContact
}

type CheckoutResult struct {
	Order       *models.Order
	Token       string
	RedirectURL string
}

// Checkout runs the full orchestration. Prices and stock are re-read
// server-side; client-submitted amounts are never trusted. All failures are
// synchronous and leave no partial order behind.
func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Checkout"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("checkout.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("checkout.received", 1)

	if len(input.Items) == 0 {
		recordFailure("empty_cart")
		return nil, ErrEmptyCart
	}

	quantities := make(map[uuid.UUID]int, len(input.Items))
	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			recordFailure("invalid_quantity")
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, item.ProductID)
		}
		if _, exists := quantities[item.ProductID]; !exists {
			productIDs = append(productIDs, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	products, err := s.productStore.GetByIDs(ctx, productIDs)
	if err != nil {
		recordFailure("product_lookup_failed")
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	var subtotal int64
	items := make([]models.OrderItem, 0, len(productIDs))
	for _, productID := range productIDs {
		product, found := byID[productID]
		if !found || !product.IsActive {
			recordFailure("product_unavailable")
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
		}

		quantity := quantities[productID]
		if quantity > product.Stock {
			recordFailure("insufficient_stock")
			return nil, fmt.Errorf("%w: product %s", db.ErrInsufficientStock, productID)
		}

		subtotal += product.Price * int64(quantity)
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			ImageURL:  product.ImageURL,
			Quantity:  quantity,
		})
	}

	shippingFee := s.shipping.Fee(subtotal)
	order := &models.Order{
		UserID:          input.UserID,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentUnpaid,
		Subtotal:        subtotal,
		ShippingFee:     shippingFee,
		Total:           subtotal + shippingFee,
		ShippingContact: input.Contact,
		Items:           items,
	}

	// The stock pre-check above is advisory; the conditional decrement
	// inside Create is what holds under concurrent checkouts.
	if err := s.orderStore.Create(ctx, order); err != nil {
		if errors.Is(err, db.ErrInsufficientStock) {
			recordFailure("insufficient_stock")
			return nil, err
		}
		recordFailure("order_create_failed")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	meter.Count("order.created", 1)

	transaction, err := s.snap.CreateTransaction(ctx, midtrans.TransactionParams{
		OrderID:       order.ID,
		GrossAmount:   order.Total,
		Items:         order.Items,
		ShippingFee:   order.ShippingFee,
		CustomerName:  input.Contact.Name,
		CustomerEmail: input.Contact.Email,
		CustomerPhone: input.Contact.Phone,
	})
	if err != nil {
		recordFailure("payment_session_failed")
		s.abandonOrder(ctx, logger, order.ID)
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	payment := &models.Payment{
		OrderID:           order.ID,
		Provider:          "midtrans",
		ProviderOrderID:   midtrans.ProviderOrderID(order.ID),
		TransactionStatus: "pending",
		GrossAmount:       order.Total,
	}
	if err := s.paymentStore.Create(ctx, payment); err != nil {
		recordFailure("payment_record_failed")
		s.abandonOrder(ctx, logger, order.ID)
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	meter.Count("checkout.session.created", 1)
	logger.Info("checkout completed",
		"order_id", order.ID,
		"user_id", order.UserID,
		"total", order.Total,
		"items", len(order.Items))

	return &CheckoutResult{
		Order:       order,
		Token:       transaction.Token,
		RedirectURL: transaction.RedirectURL,
	}, nil
}

// abandonOrder compensates a checkout that failed after the order was
// created: the order is cancelled and its reserved stock returned. Failures
// here are logged, not surfaced, since the caller already has a hard error.
func (s *CheckoutService) abandonOrder(ctx context.Context, logger *slog.Logger, orderID uuid.UUID) {
	if err := s.orderStore.Transition(ctx, orderID, models.StatusCancelled); err != nil {
		logger.Error("failed to cancel abandoned order", "error", err, "order_id", orderID)
		return
	}
	if _, err := s.orderStore.RestoreStock(ctx, orderID); err != nil {
		logger.Error("failed to restore stock for abandoned order", "error", err, "order_id", orderID)
	}
}

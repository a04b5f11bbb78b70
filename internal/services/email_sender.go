package services

import (
	"context"
	"fmt"

	"github.com/tokoapp/toko/internal/email"
	"github.com/tokoapp/toko/internal/models"
)

// OrderEmailSender sends customer-facing order lifecycle notifications.
type OrderEmailSender interface {
	SendOrderPaid(ctx context.Context, order *models.Order) error
	SendOrderFailed(ctx context.Context, order *models.Order, reason string) error
	SendOrderShipped(ctx context.Context, order *models.Order) error
}

// ProviderOrderEmailSender renders the built-in templates and delivers them
// through the configured email provider.
type ProviderOrderEmailSender struct {
	provider email.Provider
	baseURL  string
}

func NewProviderOrderEmailSender(provider email.Provider, baseURL string) *ProviderOrderEmailSender {
	return &ProviderOrderEmailSender{
		provider: provider,
		baseURL:  baseURL,
	}
}

func (s *ProviderOrderEmailSender) SendOrderPaid(ctx context.Context, order *models.Order) error {
	info, err := s.orderInfo(order)
	if err != nil {
		return err
	}
	return email.SendOrderPaid(ctx, s.provider, info)
}

func (s *ProviderOrderEmailSender) SendOrderFailed(ctx context.Context, order *models.Order, reason string) error {
	info, err := s.orderInfo(order)
	if err != nil {
		return err
	}
	info.Reason = reason
	return email.SendOrderFailed(ctx, s.provider, info)
}

func (s *ProviderOrderEmailSender) SendOrderShipped(ctx context.Context, order *models.Order) error {
	info, err := s.orderInfo(order)
	if err != nil {
		return err
	}
	return email.SendOrderShipped(ctx, s.provider, info)
}

func (s *ProviderOrderEmailSender) orderInfo(order *models.Order) (*email.OrderInfo, error) {
	if order == nil {
		return nil, fmt.Errorf("order is required")
	}
	if order.ShippingContact.Email == "" {
		return nil, fmt.Errorf("order %s has no contact email", order.ID)
	}

	return &email.OrderInfo{
		OrderID:       order.ID.String(),
		CustomerEmail: order.ShippingContact.Email,
		Total:         email.FormatRupiah(order.Total),
		OrderURL:      fmt.Sprintf("%s/orders/%s/confirmation", s.baseURL, order.ID),
	}, nil
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendOrderPaid(context.Context, *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendOrderFailed(context.Context, *models.Order, string) error {
	return nil
}

func (noopOrderEmailSender) SendOrderShipped(context.Context, *models.Order) error {
	return nil
}

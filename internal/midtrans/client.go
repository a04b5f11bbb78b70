// Package midtrans provides a Snap client and notification handling for the
// Midtrans payment gateway.
package midtrans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tokoapp/toko/internal/models"
	"github.com/tokoapp/toko/internal/observability"
)

const (
	sandboxSnapBaseURL    = "https://app.sandbox.midtrans.com/snap/v1"
	productionSnapBaseURL = "https://app.midtrans.com/snap/v1"
)

// Client calls the Snap API to create hosted payment pages.
type Client struct {
	serverKey  string
	baseURL    string
	httpClient *http.Client
}

func NewClient(serverKey, environment string) *Client {
	baseURL := sandboxSnapBaseURL
	if environment == "production" {
		baseURL = productionSnapBaseURL
	}
	return &Client{
		serverKey:  serverKey,
		baseURL:    baseURL,
		httpClient: observability.NewHTTPClient(30 * time.Second),
	}
}

// Transaction is the usable subset of a Snap create-transaction response.
type Transaction struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// TransactionParams describes the order presented on the hosted payment page.
type TransactionParams struct {
	OrderID       uuid.UUID
	GrossAmount   int64
	Items         []models.OrderItem
	ShippingFee   int64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// ProviderOrderID derives the gateway-side order reference from our order ID.
// The mapping is reversible so notifications can be correlated even when the
// payments table has no matching row.
func ProviderOrderID(orderID uuid.UUID) string {
	return "order-" + orderID.String()
}

// OrderIDFromProvider reverses ProviderOrderID.
func OrderIDFromProvider(providerOrderID string) (uuid.UUID, bool) {
	const prefix = "order-"
	if len(providerOrderID) <= len(prefix) || providerOrderID[:len(prefix)] != prefix {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(providerOrderID[len(prefix):])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CreateTransaction creates a Snap transaction and returns the payment token
// and redirect URL.
func (c *Client) CreateTransaction(ctx context.Context, params TransactionParams) (*Transaction, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	type itemDetail struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Price    int64  `json:"price"`
		Quantity int    `json:"quantity"`
	}

	items := make([]itemDetail, 0, len(params.Items)+1)
	for _, item := range params.Items {
		items = append(items, itemDetail{
			ID:       item.ProductID.String(),
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}
	if params.ShippingFee > 0 {
		items = append(items, itemDetail{
			ID:       "shipping",
			Name:     "Shipping",
			Price:    params.ShippingFee,
			Quantity: 1,
		})
	}

	body := map[string]any{
		"transaction_details": map[string]any{
			"order_id":     ProviderOrderID(params.OrderID),
			"gross_amount": params.GrossAmount,
		},
		"item_details": items,
		"customer_details": map[string]any{
			"first_name": params.CustomerName,
			"email":      params.CustomerEmail,
			"phone":      params.CustomerPhone,
		},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/transactions", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build snap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snap request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read snap response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("snap returned status %d: %s", resp.StatusCode, payload)
	}

	var transaction Transaction
	if err := json.Unmarshal(payload, &transaction); err != nil {
		return nil, fmt.Errorf("failed to decode snap response: %w", err)
	}
	if transaction.Token == "" {
		return nil, fmt.Errorf("snap response missing token")
	}

	return &transaction, nil
}

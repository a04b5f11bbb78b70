package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tokoapp/toko/internal/db"
	"github.com/tokoapp/toko/internal/models"
	"github.com/tokoapp/toko/internal/services"
)

type checkoutItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	Items    []checkoutItemRequest  `json:"items"`
	Shipping models.ShippingContact `json:"shipping"`
}

type checkoutResponse struct {
	OrderID     string `json:"order_id"`
	Token       string `json:"snap_token"`
	RedirectURL string `json:"redirect_url"`
	Total       int64  `json:"total"`
}

// Checkout handles POST /api/checkout.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	identity, ok := IdentityFromContext(ctx)
	if !ok {
		writeError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var request checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&request); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(request.Shipping.Name) == "" ||
		strings.TrimSpace(request.Shipping.Email) == "" ||
		strings.TrimSpace(request.Shipping.Address) == "" {
		writeError(ctx, w, http.StatusBadRequest, "shipping name, email, and address are required")
		return
	}

	items := make([]services.CheckoutItem, 0, len(request.Items))
	for _, item := range request.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			writeError(ctx, w, http.StatusBadRequest, "invalid product_id")
			return
		}
		items = append(items, services.CheckoutItem{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	result, err := h.checkout.Checkout(ctx, services.CheckoutInput{
		UserID:  identity.UserID,
		Items:   items,
		Contact: request.Shipping,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyCart):
			writeError(ctx, w, http.StatusBadRequest, "cart is empty")
		case errors.Is(err, services.ErrInvalidQuantity):
			writeError(ctx, w, http.StatusBadRequest, "quantities must be positive")
		case errors.Is(err, services.ErrProductUnavailable):
			writeError(ctx, w, http.StatusBadRequest, "a product in your cart is unavailable")
		case errors.Is(err, db.ErrInsufficientStock):
			writeError(ctx, w, http.StatusConflict, "INSUFFICIENT_STOCK")
		case errors.Is(err, services.ErrGatewayUnavailable):
			logger.Error("payment gateway unavailable", "error", err, "user_id", identity.UserID)
			writeError(ctx, w, http.StatusBadGateway, "payment gateway unavailable")
		default:
			logger.Error("checkout failed", "error", err, "user_id", identity.UserID)
			writeError(ctx, w, http.StatusInternalServerError, "checkout failed")
		}
		return
	}

	writeJSON(ctx, w, http.StatusCreated, checkoutResponse{
		OrderID:     result.Order.ID.String(),
		Token:       result.Token,
		RedirectURL: result.RedirectURL,
		Total:       result.Order.Total,
	})
}

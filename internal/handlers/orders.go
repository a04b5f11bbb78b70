package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
)

// GetOrder handles GET /api/orders/{id}. Customers see their own orders;
// admins see any order.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	identity, ok := IdentityFromContext(ctx)
	if !ok {
		writeError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orderStore.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(ctx, w, http.StatusNotFound, "order not found")
			return
		}
		logger.Error("failed to load order", "error", err, "order_id", orderID)
		writeError(ctx, w, http.StatusInternalServerError, "failed to load order")
		return
	}

	if order.UserID != identity.UserID && !identity.IsAdmin() {
		// Indistinguishable from a missing order on purpose.
		writeError(ctx, w, http.StatusNotFound, "order not found")
		return
	}

	items, err := h.orderStore.ListItems(ctx, orderID)
	if err != nil {
		logger.Error("failed to load order items", "error", err, "order_id", orderID)
		writeError(ctx, w, http.StatusInternalServerError, "failed to load order")
		return
	}
	order.Items = items

	writeJSON(ctx, w, http.StatusOK, order)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tokoapp/toko/internal/db"
	"github.com/tokoapp/toko/internal/models"
	"github.com/tokoapp/toko/internal/services"
)

type adminStatusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateOrderStatus handles POST /api/admin/orders/{id}/status.
func (h *Handlers) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid order id")
		return
	}

	var request adminStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&request); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	target := models.OrderStatus(request.Status)
	if err := h.adminService.UpdateStatus(ctx, orderID, target); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidTargetStatus):
			writeError(ctx, w, http.StatusBadRequest, "status must be shipped, completed, or cancelled")
		case errors.Is(err, db.ErrInvalidStatusTransition):
			writeError(ctx, w, http.StatusBadRequest, "order is already in a terminal state")
		default:
			logger.Error("admin status update failed", "error", err, "order_id", orderID)
			writeError(ctx, w, http.StatusInternalServerError, "status update failed")
		}
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{"status": string(target)})
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/tokoapp/toko/internal/idempotency"
	"github.com/tokoapp/toko/internal/midtrans"
	"github.com/tokoapp/toko/internal/services"
)

// midtransWebhookIdempotencyTTL is how long processed notification keys are
// kept for deduplication.
const midtransWebhookIdempotencyTTL = 24 * time.Hour

// MidtransWebhook handles POST /webhooks/midtrans. Response contract:
// 200 once reconciliation is durable (including unmatched orders), 401 only
// on signature mismatch, 400 on an unparseable body, 500 on internal failure
// so the gateway retries.
func (h *Handlers) MidtransWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	notification, payload, err := midtrans.ReadNotification(r)
	if err != nil {
		logger.Error("failed to read midtrans notification", "error", err)
		writeError(ctx, w, http.StatusBadRequest, "invalid notification")
		return
	}

	if !notification.Verify(h.config.MidtransServerKey) {
		logger.Warn("rejected notification with invalid signature",
			"provider_order_id", notification.OrderID)
		writeError(ctx, w, http.StatusUnauthorized, "invalid signature")
		return
	}

	// Fast path for verified exact duplicates. Losing this state is safe;
	// reconciliation itself is idempotent.
	key := idempotency.NotificationKey("midtrans", notification.OrderID,
		notification.TransactionStatus, notification.FraudStatus)
	seen, err := h.idempotency.Seen(ctx, key)
	if err != nil {
		logger.Warn("idempotency lookup failed", "error", err)
	}
	if seen {
		logger.Info("notification already processed",
			"provider_order_id", notification.OrderID,
			"transaction_status", notification.TransactionStatus)
		writeJSON(ctx, w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err := h.reconciler.ProcessNotification(ctx, notification, payload); err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			writeError(ctx, w, http.StatusUnauthorized, "invalid signature")
			return
		}
		logger.Error("failed to process midtrans notification",
			"error", err,
			"provider_order_id", notification.OrderID,
			"transaction_status", notification.TransactionStatus)
		writeError(ctx, w, http.StatusInternalServerError, "processing failed")
		return
	}

	if err := h.idempotency.Remember(ctx, key, midtransWebhookIdempotencyTTL); err != nil {
		logger.Warn("failed to mark notification as processed", "error", err)
	}

	writeJSON(ctx, w, http.StatusOK, map[string]bool{"received": true})
}

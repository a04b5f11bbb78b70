package handlers

import (
	"context"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/tokoapp/toko/internal/auth"
	"github.com/tokoapp/toko/internal/observability"
)

type identityContextKey struct{}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(auth.Identity)
	return identity, ok
}

// RequireUser rejects requests without a valid bearer token and stores the
// verified identity in the request context.
func (h *Handlers) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		meter := observability.MeterFromContext(ctx)

		identity, err := h.verifier.FromAuthorizationHeader(r.Header.Get("Authorization"))
		if err != nil {
			meter.Count("auth.rejected", 1, sentry.WithAttributes(
				attribute.String("reason", "invalid_token"),
			))
			h.loggerFromContext(ctx).Warn("rejected unauthenticated request",
				"error", err, "path", r.URL.Path)
			writeError(ctx, w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx = context.WithValue(ctx, identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated callers without the admin role. Must be
// stacked after RequireUser.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, ok := IdentityFromContext(ctx)
		if !ok || !identity.IsAdmin() {
			observability.MeterFromContext(ctx).Count("auth.rejected", 1, sentry.WithAttributes(
				attribute.String("reason", "not_admin"),
			))
			h.loggerFromContext(ctx).Warn("rejected non-admin request",
				"user_id", identity.UserID, "path", r.URL.Path)
			writeError(ctx, w, http.StatusForbidden, "admin role required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoapp/toko/internal/auth"
	"github.com/tokoapp/toko/internal/config"
	"github.com/tokoapp/toko/internal/db"
	"github.com/tokoapp/toko/internal/idempotency"
	"github.com/tokoapp/toko/internal/logging"
	"github.com/tokoapp/toko/internal/services"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

// Handlers provides the storefront's HTTP request handlers.
type Handlers struct {
	config       *config.Config
	db           *pgxpool.Pool
	orderStore   *db.OrderStore
	idempotency  idempotency.Provider
	verifier     *auth.Verifier
	checkout     *services.CheckoutService
	reconciler   *services.ReconcilerService
	adminService *services.AdminService
	logger       *slog.Logger
}

type Dependencies struct {
	Config              *config.Config
	DB                  *pgxpool.Pool
	OrderStore          *db.OrderStore
	IdempotencyProvider idempotency.Provider
	Verifier            *auth.Verifier
	CheckoutService     *services.CheckoutService
	ReconcilerService   *services.ReconcilerService
	AdminService        *services.AdminService
	Logger              *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("handlers dependencies: orderStore is required")
	}
	if deps.IdempotencyProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: idempotencyProvider is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.ReconcilerService == nil {
		return nil, fmt.Errorf("handlers dependencies: reconcilerService is required")
	}
	if deps.AdminService == nil {
		return nil, fmt.Errorf("handlers dependencies: adminService is required")
	}

	return &Handlers{
		config:       deps.Config,
		db:           deps.DB,
		orderStore:   deps.OrderStore,
		idempotency:  deps.IdempotencyProvider,
		verifier:     deps.Verifier,
		checkout:     deps.CheckoutService,
		reconciler:   deps.ReconcilerService,
		adminService: deps.AdminService,
		logger:       logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

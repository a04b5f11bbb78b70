package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoapp/toko/internal/auth"
	"github.com/tokoapp/toko/internal/config"
	"github.com/tokoapp/toko/internal/crypto"
	"github.com/tokoapp/toko/internal/db"
	"github.com/tokoapp/toko/internal/email"
	"github.com/tokoapp/toko/internal/handlers"
	"github.com/tokoapp/toko/internal/idempotency"
	"github.com/tokoapp/toko/internal/logging"
	"github.com/tokoapp/toko/internal/midtrans"
	"github.com/tokoapp/toko/internal/services"
)

type App struct {
	Config              *config.Config
	Logger              *slog.Logger
	DB                  *pgxpool.Pool
	IdempotencyProvider idempotency.Provider
	Handlers            *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	logger := newLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	idempotencyProvider, err := idempotency.NewProvider(idempotency.Config{
		Provider:              cfg.IdempotencyProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize idempotency provider: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		closeIdempotencyProvider(logger, idempotencyProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	orderStore, err := db.NewOrderStore(database, encryptor)
	if err != nil {
		closeIdempotencyProvider(logger, idempotencyProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize order store: %w", err)
	}
	productStore := db.NewProductStore(database)
	paymentStore := db.NewPaymentStore(database)

	verifier, err := auth.NewVerifier(cfg.AuthJWTSecret)
	if err != nil {
		closeIdempotencyProvider(logger, idempotencyProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	snapClient := midtrans.NewClient(cfg.MidtransServerKey, cfg.MidtransEnvironment)

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.ResendAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		closeIdempotencyProvider(logger, idempotencyProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}
	emailSender := services.NewProviderOrderEmailSender(emailProvider, cfg.AppBaseURL)

	checkoutService := services.NewCheckoutService(
		productStore,
		orderStore,
		paymentStore,
		snapClient,
		services.ShippingRule{
			FlatFee:       cfg.ShippingFlatFee,
			FreeThreshold: cfg.FreeShippingThreshold,
		},
		logger.With("component", "checkout_service"),
	)
	reconcilerService := services.NewReconcilerService(
		orderStore,
		paymentStore,
		cfg.MidtransServerKey,
		emailSender,
		logger.With("component", "reconciler_service"),
	)
	adminService := services.NewAdminService(
		orderStore,
		emailSender,
		logger.With("component", "admin_service"),
	)

	h, err := handlers.New(handlers.Dependencies{
		Config:              cfg,
		DB:                  database,
		OrderStore:          orderStore,
		IdempotencyProvider: idempotencyProvider,
		Verifier:            verifier,
		CheckoutService:     checkoutService,
		ReconcilerService:   reconcilerService,
		AdminService:        adminService,
		Logger:              logger,
	})
	if err != nil {
		closeIdempotencyProvider(logger, idempotencyProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:              cfg,
		Logger:              logger,
		DB:                  database,
		IdempotencyProvider: idempotencyProvider,
		Handlers:            h,
		sentryEnabled:       sentryEnabled,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.IdempotencyProvider != nil {
		closeIdempotencyProvider(a.Logger, a.IdempotencyProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func initSentry(cfg *config.Config) (bool, error) {
	if cfg.SentryDSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		EnableLogs:       true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func newLogger(cfg *config.Config, sentryEnabled bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var base slog.Handler
	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		base = slog.NewJSONHandler(os.Stdout, opts)
	default:
		base = tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		})
	}

	if !sentryEnabled {
		return slog.New(base)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())
	return slog.New(logging.MultiHandler(base, sentryHandler))
}

func closeIdempotencyProvider(logger *slog.Logger, provider idempotency.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close idempotency provider", "error", err)
	}
}

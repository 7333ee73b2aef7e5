package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/matchaleaf/storefront/internal/cache"
	"github.com/matchaleaf/storefront/internal/carrier"
	"github.com/matchaleaf/storefront/internal/catalog"
	"github.com/matchaleaf/storefront/internal/config"
	"github.com/matchaleaf/storefront/internal/db"
	"github.com/matchaleaf/storefront/internal/email"
	"github.com/matchaleaf/storefront/internal/handlers"
	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/observability"
	"github.com/matchaleaf/storefront/internal/services"
	"github.com/matchaleaf/storefront/internal/stripe"
	"github.com/matchaleaf/storefront/internal/worker"
)

const outboundHTTPTimeout = 15 * time.Second

type App struct {
	Config           *config.Config
	Logger           *slog.Logger
	DB               *pgxpool.Pool
	CacheProvider    cache.Provider
	Metrics          *observability.Metrics
	FulfillmentQueue *worker.FulfillmentQueue
	Handlers         *handlers.Handlers
}

// New wires the storefront from cfg. sentryEnabled adds the Sentry log sink
// to the logger; the caller owns sentry.Init.
func New(cfg *config.Config, sentryEnabled bool) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := NewLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	shopCatalog, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	metrics := observability.NewMetrics()
	orderStore := db.NewOrderStore(database)
	resolver := catalog.NewResolver()

	emailProvider, err := email.NewProvider(email.Config{
		Provider:   cfg.EmailProvider,
		APIKey:     cfg.EmailAPIKey,
		From:       cfg.EmailFrom,
		HTTPClient: observability.NewHTTPClient(outboundHTTPTimeout),
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}
	if emailProvider == nil {
		logger.Warn("EMAIL_PROVIDER is not set; order emails are disabled")
	}
	renderer, err := email.NewRenderer()
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	shopName := cfg.ShopName
	if shopName == "" {
		shopName = shopCatalog.Shop.Name
	}
	orderEmailer, err := services.NewOrderEmailSender(emailProvider, renderer, services.ShopDetails{
		Name:    shopName,
		BaseURL: cfg.BaseURL,
	}, cfg.NotifyEmail)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize order emails: %w", err)
	}

	carrierClient, err := carrier.New(carrier.Config{
		Mode:    cfg.CarrierMode,
		BaseURL: cfg.CarrierAPIURL,
	}, observability.NewHTTPClient(outboundHTTPTimeout, observability.HostOf(cfg.CarrierAPIURL)), logger.With("component", "carrier_client"))
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize carrier client: %w", err)
	}
	creds := carrier.Credentials{AppID: cfg.CarrierAppID, AppSecret: cfg.CarrierAppSecret}
	if !creds.Configured() {
		logger.Error("CARRIER_APP_ID and CARRIER_APP_SECRET are not set; orders will not be handed to the carrier")
	}
	fulfillmentService := services.NewFulfillmentService(
		orderStore,
		carrierClient,
		cacheProvider,
		orderEmailer,
		metrics,
		services.FulfillmentOptions{Credentials: creds, Mode: cfg.CarrierMode},
		logger.With("component", "fulfillment_service"),
	)
	queue := worker.NewFulfillmentQueue(fulfillmentService, worker.Options{
		Workers:     cfg.FulfillmentWorkers,
		MaxAttempts: cfg.FulfillmentMaxAttempts,
		Backoff:     cfg.FulfillmentRetryBackoff,
	}, metrics, logger.With("component", "fulfillment_queue"))

	var sessions services.CheckoutSessionCreator
	if cfg.CardPaymentsEnabled() {
		sessions = stripe.NewClient(cfg.StripeSecretKey, observability.NewHTTPClient(outboundHTTPTimeout, observability.HostOf(cfg.StripeAPIURL)), cfg.StripeAPIURL)
	} else {
		logger.Warn("STRIPE_SECRET_KEY is not set; card checkout is disabled")
	}
	if !cfg.WebhookVerificationEnabled() {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set; payment webhooks are accepted without signature verification")
	}
	paymentService := services.NewPaymentService(
		orderStore,
		sessions,
		queue,
		orderEmailer,
		services.PaymentOptions{BaseURL: cfg.BaseURL, AutoFulfill: cfg.AutoFulfillPaid},
		logger.With("component", "payment_service"),
	)

	checkoutService, err := services.NewCheckoutService(services.CheckoutDependencies{
		OrderStore:  orderStore,
		Catalog:     shopCatalog,
		Resolver:    resolver,
		Payments:    paymentService,
		Queue:       queue,
		EmailSender: orderEmailer,
		Metrics:     metrics,
		BaseURL:     cfg.BaseURL,
		Logger:      logger.With("component", "checkout_service"),
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize checkout service: %w", err)
	}

	statusPoller := services.NewStatusPoller(orderStore, services.PollOptions{
		Interval:    cfg.StatusPollInterval,
		MaxAttempts: cfg.StatusPollMaxAttempts,
	}, logger.With("component", "status_poller"))
	operatorService := services.NewOperatorService(orderStore, orderEmailer, logger.With("component", "operator_service"))
	stripeRouter := handlers.NewStripeEventRouter(paymentService, metrics, logger.With("component", "stripe_router"))

	if !cfg.AdminAPIEnabled() {
		logger.Warn("ADMIN_JWT_SECRET is not set; operator endpoints are disabled")
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:        cfg,
		DB:            database,
		CacheProvider: cacheProvider,
		Catalog:       shopCatalog,
		Resolver:      resolver,
		Checkout:      checkoutService,
		Fulfillment:   fulfillmentService,
		StatusPoller:  statusPoller,
		Operator:      operatorService,
		StripeRouter:  stripeRouter,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:           cfg,
		Logger:           logger,
		DB:               database,
		CacheProvider:    cacheProvider,
		Metrics:          metrics,
		FulfillmentQueue: queue,
		Handlers:         h,
	}, nil
}

// Close releases the cache and database. The fulfillment queue must be
// stopped first.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// NewLogger builds the process logger: tint for text, slog JSON otherwise,
// fanned out to Sentry when it is enabled.
func NewLogger(cfg *config.Config, sentryEnabled bool) *slog.Logger {
	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		console = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}
	if !sentryEnabled {
		return slog.New(console)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())
	return slog.New(logging.Fanout(console, sentryHandler))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}

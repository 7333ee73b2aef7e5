package main

// The storefront API server: checkout, payment webhooks and fulfillment.

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/matchaleaf/storefront/app"
	"github.com/matchaleaf/storefront/internal/config"
	"github.com/matchaleaf/storefront/server"
)

func main() {
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fallbackLogger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fallbackLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	sentryEnabled := initSentry(cfg, fallbackLogger)
	if sentryEnabled {
		defer sentry.Flush(2 * time.Second)
	}

	application, err := app.New(cfg, sentryEnabled)
	if err != nil {
		fallbackLogger.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	srv, err := server.New(application.Config, application.Logger, application.Handlers)
	if err != nil {
		fallbackLogger.Error("failed to initialize server", "error", err)
		application.Close()
		os.Exit(1)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	application.FulfillmentQueue.Start(workerCtx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case err := <-serverErr:
		if err != nil {
			application.Logger.Error("server failed", "error", err)
			exitCode = 1
		}
	case <-quit:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := srv.Close(ctx); err != nil {
			application.Logger.Error("server forced to shutdown", "error", err)
			exitCode = 1
		}
		cancel()
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 20*time.Second)
	if err := application.FulfillmentQueue.Stop(drainCtx); err != nil {
		application.Logger.Warn("fulfillment queue did not drain before shutdown", "error", err, "pending", application.FulfillmentQueue.Len())
	}
	cancelDrain()

	application.Close()
	if exitCode != 0 {
		if sentryEnabled {
			sentry.Flush(2 * time.Second)
		}
		os.Exit(exitCode)
	}
}

func initSentry(cfg *config.Config, logger *slog.Logger) bool {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		EnableTracing:    cfg.SentryTracesSampleRate > 0,
		TracesSampleRate: cfg.SentryTracesSampleRate,
		EnableLogs:       true,
	})
	if err != nil {
		logger.Error("failed to initialize sentry", "error", err)
		return false
	}
	return true
}

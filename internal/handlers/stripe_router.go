package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/observability"
	stripewebhook "github.com/matchaleaf/storefront/internal/stripe"
)

// PaymentEventHandler is satisfied by *services.PaymentService.
type PaymentEventHandler interface {
	HandleCheckoutSessionCompleted(ctx context.Context, payload []byte) error
	HandleAsyncPaymentSucceeded(ctx context.Context, payload []byte) error
	HandleCheckoutSessionExpired(ctx context.Context, payload []byte) error
	HandlePaymentIntentFailed(ctx context.Context, payload []byte) error
}

type StripeEventRouter struct {
	service PaymentEventHandler
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewStripeEventRouter(service PaymentEventHandler, metrics *observability.Metrics, logger *slog.Logger) *StripeEventRouter {
	return &StripeEventRouter{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	recordFailed := func(eventType, reason string) {
		r.metrics.WebhookEvent(eventType, "failed")
		meter.Count("webhook.router.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if event == nil {
		recordFailed("unknown", "missing_event")
		return fmt.Errorf("missing stripe event")
	}
	eventType := string(event.Type)
	if event.Data == nil {
		recordFailed(eventType, "missing_event_data")
		return fmt.Errorf("missing stripe event data")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", eventType))

	logger := logging.FromContext(ctx, r.logger)
	payload := event.Data.Raw
	if strings.HasPrefix(eventType, "checkout.session.") {
		if session, err := stripewebhook.CheckoutSession(event); err == nil && session.ID != "" {
			logger = logger.With("session_id", session.ID)
		}
	}

	var handle func(context.Context, []byte) error
	switch event.Type {
	case stripeapi.EventTypeCheckoutSessionCompleted:
		handle = r.service.HandleCheckoutSessionCompleted
	case stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		handle = r.service.HandleAsyncPaymentSucceeded
	case stripeapi.EventTypeCheckoutSessionExpired:
		handle = r.service.HandleCheckoutSessionExpired
	case stripeapi.EventTypePaymentIntentPaymentFailed:
		handle = r.service.HandlePaymentIntentFailed
	default:
		logger.Info("unhandled Stripe event type", "type", event.Type)
		r.metrics.WebhookEvent(eventType, "ignored")
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}

	logger.Debug("routing Stripe event", "type", event.Type)
	if err := handle(ctx, payload); err != nil {
		recordFailed(eventType, "handler_failed")
		return err
	}
	r.metrics.WebhookEvent(eventType, "processed")
	meter.Count("webhook.router.processed", 1)
	span.Status = sentry.SpanStatusOK
	return nil
}

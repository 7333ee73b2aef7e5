package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/matchaleaf/storefront/internal/db"
	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/models"
	"github.com/matchaleaf/storefront/internal/observability"
	"github.com/matchaleaf/storefront/internal/stripe"
)

// CheckoutSessionCreator is satisfied by *stripe.Client.
type CheckoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.Session, error)
}

type PaymentService struct {
	orderStore  orderStore
	sessions    CheckoutSessionCreator
	queue       fulfillmentQueue
	emailSender OrderEmailSender
	baseURL     string
	autoFulfill bool
	logger      *slog.Logger
}

type PaymentOptions struct {
	BaseURL string
	// AutoFulfill queues paid card orders for the carrier as soon as the
	// payment is confirmed.
	AutoFulfill bool
}

// NewPaymentService accepts a nil sessions creator; card checkout is then
// reported as unavailable.
func NewPaymentService(orderStore orderStore, sessions CheckoutSessionCreator, queue fulfillmentQueue, emailSender OrderEmailSender, opts PaymentOptions, logger *slog.Logger) *PaymentService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &PaymentService{
		orderStore:  orderStore,
		sessions:    sessions,
		queue:       queue,
		emailSender: emailSender,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		autoFulfill: opts.AutoFulfill,
		logger:      logger,
	}
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *PaymentService) Available() bool {
	return s != nil && s.sessions != nil
}

// StartSession opens a hosted checkout for a pending card order and returns
// the URL the customer is sent to. Failing to store the session reference is
// logged and does not fail the checkout.
func (s *PaymentService) StartSession(ctx context.Context, order *models.Order) (string, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payments.start_session",
		sentry.WithOpName("service.payments"),
		sentry.WithDescription("StartSession"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if !s.Available() {
		return "", ErrPaymentUnavailable
	}
	if order == nil {
		return "", fmt.Errorf("order is required")
	}

	logger := s.loggerFromContext(ctx).With("order_id", order.ID)
	params := s.sessionParams(order)

	session, err := s.sessions.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", err
	}
	if session == nil || session.URL == "" {
		return "", fmt.Errorf("payment provider returned no checkout URL")
	}

	if err := s.orderStore.SetStripeSession(ctx, order.ID, session.ID); err != nil {
		observability.MeterFromContext(ctx).Count("payments.side_effect_failed", 1, sentry.WithAttributes(
			attribute.String("reason", "session_reference_not_saved"),
		))
		logger.Warn("failed to store payment session reference", "error", err, "session_id", session.ID)
	} else {
		order.StripeSessionID = session.ID
	}

	logger.Info("payment session created", "session_id", session.ID)
	return session.URL, nil
}

func (s *PaymentService) sessionParams(order *models.Order) stripe.CheckoutSessionParams {
	items := make([]stripe.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		name := item.ProductTitle
		if item.VariantTitle != "" {
			name = fmt.Sprintf("%s - %s", item.ProductTitle, item.VariantTitle)
		}
		items = append(items, stripe.LineItem{
			Name:       name,
			UnitAmount: item.UnitPrice,
			Quantity:   int64(item.Quantity),
		})
	}

	shippingName := order.CarrierName
	if shippingName == "" {
		shippingName = order.ShippingMethod
	}
	if shippingName == "" {
		shippingName = "Shipping"
	}

	return stripe.CheckoutSessionParams{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Currency:       order.Currency,
		Items:          items,
		ShippingName:   shippingName,
		ShippingAmount: order.ShippingPrice,
		CustomerEmail:  order.Customer.Email,
		SuccessURL:     fmt.Sprintf("%s/checkout/success?order_id=%s&session_id={CHECKOUT_SESSION_ID}", s.baseURL, order.ID),
		CancelURL:      fmt.Sprintf("%s/checkout/cancel?order_id=%s", s.baseURL, order.ID),
	}
}

type checkoutSessionPayload struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

func decodeCheckoutSession(payload []byte) (*checkoutSessionPayload, error) {
	var session checkoutSessionPayload
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("invalid event object: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("missing session ID")
	}
	return &session, nil
}

// HandleCheckoutSessionCompleted marks the order paid. Redeliveries and
// sessions that still await an asynchronous payment are no-ops.
func (s *PaymentService) HandleCheckoutSessionCompleted(ctx context.Context, payload []byte) error {
	session, err := decodeCheckoutSession(payload)
	if err != nil {
		return err
	}
	if session.PaymentStatus == string(stripeapi.CheckoutSessionPaymentStatusUnpaid) {
		s.loggerFromContext(ctx).Info("checkout session completed without payment; waiting for async payment", "session_id", session.ID)
		return nil
	}
	return s.markPaid(ctx, session, "checkout.session.completed")
}

func (s *PaymentService) HandleAsyncPaymentSucceeded(ctx context.Context, payload []byte) error {
	session, err := decodeCheckoutSession(payload)
	if err != nil {
		return err
	}
	return s.markPaid(ctx, session, "checkout.session.async_payment_succeeded")
}

// HandleCheckoutSessionExpired cancels orders that never got paid.
func (s *PaymentService) HandleCheckoutSessionExpired(ctx context.Context, payload []byte) error {
	session, err := decodeCheckoutSession(payload)
	if err != nil {
		return err
	}
	logger := s.loggerFromContext(ctx).With("session_id", session.ID)

	order, err := s.resolveOrder(ctx, session)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			logger.Warn("no order for expired checkout session")
			return nil
		}
		return err
	}

	changed, err := s.orderStore.Transition(ctx, order.ID, models.StatusCancelled, models.StatusPending)
	if err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("ignoring checkout.session.expired due to state transition", "order_id", order.ID, "error", err)
			return nil
		}
		return fmt.Errorf("failed to cancel expired order: %w", err)
	}
	if changed {
		logger.Info("order cancelled after checkout expired", "order_id", order.ID)
	}
	return nil
}

// HandlePaymentIntentFailed only records the failure. The order stays
// pending so the customer can retry in the same checkout session.
func (s *PaymentService) HandlePaymentIntentFailed(ctx context.Context, payload []byte) error {
	logger := s.loggerFromContext(ctx)

	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return fmt.Errorf("invalid event object: %w", err)
	}
	if intent.ID == "" {
		return fmt.Errorf("missing payment intent ID")
	}

	reason := ""
	if intent.LastPaymentError != nil {
		reason = intent.LastPaymentError.Msg
	}
	logger.Warn("card payment failed",
		"intent_id", intent.ID,
		"order_id", intent.Metadata["order_id"],
		"reason", reason,
	)
	return nil
}

func (s *PaymentService) markPaid(ctx context.Context, session *checkoutSessionPayload, eventType string) error {
	span := sentry.StartSpan(
		ctx,
		"service.payments.mark_paid",
		sentry.WithOpName("service.payments"),
		sentry.WithDescription("MarkPaid"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx).With("session_id", session.ID, "event_type", eventType)
	meter := observability.MeterFromContext(ctx)

	order, err := s.resolveOrder(ctx, session)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			meter.Count("payments.webhook.unmatched", 1)
			logger.Warn("no order matches paid checkout session", "metadata_order_id", session.Metadata["order_id"])
			return nil
		}
		return err
	}
	logger = logger.With("order_id", order.ID)

	changed, err := s.orderStore.Transition(ctx, order.ID, models.StatusPaid, models.StatusPending)
	if err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("ignoring paid event due to state transition", "error", err)
			return nil
		}
		return fmt.Errorf("failed to mark order as paid: %w", err)
	}
	if !changed {
		logger.Info("order already paid")
		return nil
	}
	meter.Count("payments.order.paid", 1)
	logger.Info("order paid")

	order.Status = models.StatusPaid
	if err := s.emailSender.SendPaymentConfirmed(ctx, order); err != nil {
		meter.Count("payments.side_effect_failed", 1, sentry.WithAttributes(
			attribute.String("reason", "payment_email_failed"),
		))
		logger.Error("failed to send payment confirmation email", "error", err)
	}
	if err := s.emailSender.SendOperatorNewOrder(ctx, order); err != nil {
		logger.Error("failed to send operator notification", "error", err)
	}

	if s.autoFulfill && s.queue != nil {
		if err := s.queue.Enqueue(order.ID); err != nil {
			logger.Warn("failed to queue paid order for fulfillment", "error", err)
		}
	}
	return nil
}

// resolveOrder prefers the order id stamped into the session metadata and
// falls back to the stored session reference.
func (s *PaymentService) resolveOrder(ctx context.Context, session *checkoutSessionPayload) (*models.Order, error) {
	if raw := strings.TrimSpace(session.Metadata["order_id"]); raw != "" {
		orderID, err := uuid.Parse(raw)
		if err == nil {
			order, err := s.orderStore.GetByID(ctx, orderID)
			if err == nil {
				return order, nil
			}
			if !errors.Is(err, db.ErrOrderNotFound) {
				return nil, fmt.Errorf("failed to get order: %w", err)
			}
		} else {
			s.loggerFromContext(ctx).Warn("checkout session carries an invalid order id", "order_id", raw)
		}
	}

	order, err := s.orderStore.GetByStripeSessionID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

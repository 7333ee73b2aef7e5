package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/matchaleaf/storefront/internal/db"
	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/models"
	"github.com/matchaleaf/storefront/internal/observability"
)

// OperatorService backs the back-office order API.
type OperatorService struct {
	orderStore  orderStore
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewOperatorService(orderStore orderStore, emailSender OrderEmailSender, logger *slog.Logger) *OperatorService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}
	return &OperatorService{
		orderStore:  orderStore,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (s *OperatorService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *OperatorService) ListOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	orders, err := s.orderStore.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus applies an operator transition. Payment confirmation is only
// ever set by the payment webhook and tracking numbers only by the carrier.
func (s *OperatorService) UpdateStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.operator.update_status",
		sentry.WithOpName("service.operator"),
		sentry.WithDescription("UpdateStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx).With("order_id", orderID, "status", to)
	meter := observability.MeterFromContext(ctx)
	recordFailed := func(reason string) {
		meter.Count("operator.status_update.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	switch to {
	case models.StatusShipped, models.StatusDelivered, models.StatusCancelled:
	default:
		recordFailed("invalid_status")
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	changed, err := s.orderStore.Transition(ctx, orderID, to)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrOrderNotFound):
			recordFailed("order_not_found")
			return nil, fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		case errors.Is(err, db.ErrInvalidStatusTransition):
			recordFailed("invalid_status_transition")
			return nil, fmt.Errorf("%w: %w", ErrStatusConflict, err)
		default:
			recordFailed("update_failed")
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
	}

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload order: %w", err)
	}
	if !changed {
		logger.Info("order already in requested status")
		return order, nil
	}
	meter.Count("operator.status_update.processed", 1, sentry.WithAttributes(
		attribute.String("status", string(to)),
	))
	logger.Info("order status updated by operator")

	if to == models.StatusShipped {
		if err := s.emailSender.SendOrderShipped(ctx, order); err != nil {
			meter.Count("operator.side_effect_failed", 1, sentry.WithAttributes(
				attribute.String("reason", "shipping_email_failed"),
			))
			logger.Error("failed to send shipping email", "error", err)
		}
	}
	return order, nil
}

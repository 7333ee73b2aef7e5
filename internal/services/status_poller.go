package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/matchaleaf/storefront/internal/db"
	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/models"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultPollMaxAttempts = 15
)

// OrderStatus is the read-only view returned to the confirmation page.
type OrderStatus struct {
	OrderID           uuid.UUID          `json:"orderId"`
	OrderNumber       int64              `json:"orderNumber"`
	Status            models.OrderStatus `json:"status"`
	PaymentMethod     string             `json:"paymentMethod"`
	TrackingNumber    string             `json:"trackingNumber,omitempty"`
	TrackingURL       string             `json:"trackingUrl,omitempty"`
	SentToFulfillment bool               `json:"sentToFulfillment"`
	FulfillmentError  string             `json:"fulfillmentError,omitempty"`
	// Done is set once polling further cannot change the answer.
	Done bool `json:"done"`
}

type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
}

type StatusPoller struct {
	orderStore orderStore
	defaults   PollOptions
	logger     *slog.Logger
}

func NewStatusPoller(orderStore orderStore, defaults PollOptions, logger *slog.Logger) *StatusPoller {
	if defaults.Interval <= 0 {
		defaults.Interval = defaultPollInterval
	}
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = defaultPollMaxAttempts
	}
	return &StatusPoller{
		orderStore: orderStore,
		defaults:   defaults,
		logger:     logger,
	}
}

func (p *StatusPoller) Defaults() PollOptions {
	return p.defaults
}

// Current reads the order once.
func (p *StatusPoller) Current(ctx context.Context, orderID uuid.UUID) (*OrderStatus, error) {
	order, err := p.orderStore.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		}
		return nil, fmt.Errorf("failed to load order status: %w", err)
	}
	return statusFromOrder(order), nil
}

// Poll re-reads the order until it has a tracking number or a final status,
// runs out of attempts or ctx ends. A recorded fulfillment error does not
// stop polling since the queue may still retry the dispatch. The last status
// read is returned when attempts run out. Zero options use the poller
// defaults.
func (p *StatusPoller) Poll(ctx context.Context, orderID uuid.UUID, opts PollOptions) (*OrderStatus, error) {
	if opts.Interval <= 0 {
		opts.Interval = p.defaults.Interval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = p.defaults.MaxAttempts
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var last *OrderStatus
	for attempt := 1; ; attempt++ {
		status, err := p.Current(ctx, orderID)
		if err != nil {
			return nil, err
		}
		last = status
		if status.Done || attempt >= opts.MaxAttempts {
			return last, nil
		}

		select {
		case <-ctx.Done():
			logging.FromContext(ctx, p.logger).Debug("order status polling stopped", "order_id", orderID, "attempts", attempt)
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func statusFromOrder(order *models.Order) *OrderStatus {
	status := &OrderStatus{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		Status:            order.Status,
		PaymentMethod:     string(order.PaymentMethod),
		TrackingNumber:    order.TrackingNumber,
		TrackingURL:       BuildTrackingURL(order.CarrierCode, order.TrackingNumber),
		SentToFulfillment: order.SentToFulfillment,
		FulfillmentError:  order.FulfillmentError,
	}
	switch {
	case order.TrackingNumber != "":
		status.Done = true
	case order.Status == models.StatusCancelled, order.Status == models.StatusDelivered:
		status.Done = true
	}
	return status
}

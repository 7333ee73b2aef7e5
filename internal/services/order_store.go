package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/matchaleaf/storefront/internal/models"
)

// orderStore is satisfied by *db.OrderStore.
type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByStripeSessionID(ctx context.Context, sessionID string) (*models.Order, error)
	List(ctx context.Context, limit int) ([]*models.Order, error)
	SetStripeSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	Transition(ctx context.Context, orderID uuid.UUID, to models.OrderStatus, from ...models.OrderStatus) (bool, error)
	ClaimFulfillment(ctx context.Context, orderID uuid.UUID, lease time.Duration) (bool, error)
	RecordFulfillmentSuccess(ctx context.Context, orderID uuid.UUID, trackingNumber string) error
	RecordFulfillmentFailure(ctx context.Context, orderID uuid.UUID, reason string) error
}

// fulfillmentQueue is satisfied by *worker.FulfillmentQueue.
type fulfillmentQueue interface {
	Enqueue(orderID uuid.UUID) error
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/matchaleaf/storefront/internal/models"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrInconsistentTotals      = errors.New("order totals are inconsistent")
	ErrStripeSessionAlreadySet = errors.New("order already has a different payment session")
	ErrAlreadyFulfilled        = errors.New("order already has a tracking number")
)

const orderColumns = `id, order_number, items, total_amount, shipping_price, total_with_shipping, currency,
	payment_method, status, customer_name, customer_email, customer_phone, phone_country_code,
	country_code, country_name, city, address, postal_code, easybox_id,
	shipping_method, carrier_code, carrier_name,
	office_id, office_name, office_address, office_city, office_country,
	stripe_session_id, tracking_number, sent_to_fulfillment, fulfillment_error, fulfillment_attempts,
	created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at`

// statusTimestampColumn is stamped when an order enters the status.
var statusTimestampColumn = map[models.OrderStatus]string{
	models.StatusPaid:      "paid_at",
	models.StatusShipped:   "shipped_at",
	models.StatusDelivered: "delivered_at",
	models.StatusCancelled: "cancelled_at",
}

type OrderStore struct {
	pool Querier
}

func NewOrderStore(pool Querier) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order and fills in the generated id, order number and
// timestamps.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	if !order.TotalsConsistent() {
		return ErrInconsistentTotals
	}
	if !order.Status.Valid() {
		return fmt.Errorf("invalid order status %q", order.Status)
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO orders (
			items, total_amount, shipping_price, total_with_shipping, currency,
			payment_method, status, customer_name, customer_email, customer_phone, phone_country_code,
			country_code, country_name, city, address, postal_code, easybox_id,
			shipping_method, carrier_code, carrier_name,
			office_id, office_name, office_address, office_city, office_country
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)
		RETURNING id, order_number, created_at, updated_at`,
		itemsJSON,
		order.TotalAmount,
		order.ShippingPrice,
		order.TotalWithShipping,
		order.Currency,
		string(order.PaymentMethod),
		string(order.Status),
		order.Customer.Name,
		order.Customer.Email,
		order.Customer.Phone,
		order.Customer.PhoneCountryCode,
		order.Destination.CountryCode,
		order.Destination.CountryName,
		order.Destination.City,
		order.Destination.Address,
		order.Destination.PostalCode,
		order.Destination.EasyboxID,
		order.ShippingMethod,
		order.CarrierCode,
		order.CarrierName,
		order.Office.ID,
		order.Office.Name,
		order.Office.Address,
		order.Office.City,
		order.Office.Country,
	).Scan(&order.ID, &order.OrderNumber, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return order, nil
}

func (s *OrderStore) GetByStripeSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_session_id = $1`, sessionID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get order by session %s: %w", sessionID, err)
	}
	return order, nil
}

// List returns the newest orders first.
func (s *OrderStore) List(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// SetStripeSession stores the payment session reference. It can only be
// written once; writing the same value again is a no-op.
func (s *OrderStore) SetStripeSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET stripe_session_id = $1, updated_at = NOW()
		WHERE id = $2 AND (stripe_session_id IS NULL OR stripe_session_id = $1)`,
		sessionID, orderID)
	if err != nil {
		return fmt.Errorf("failed to set payment session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStripeSessionAlreadySet
	}
	return nil
}

// Transition moves an order to status to when its current status is one of
// from, defaulting to the allowed predecessors of to. It reports whether the
// row changed; an order already in status to is left untouched and reports
// false without error.
func (s *OrderStore) Transition(ctx context.Context, orderID uuid.UUID, to models.OrderStatus, from ...models.OrderStatus) (bool, error) {
	if len(from) == 0 {
		from = models.Predecessors(to)
	}
	if len(from) == 0 {
		return false, fmt.Errorf("%w: nothing may move to %s", ErrInvalidStatusTransition, to)
	}

	allowed := make([]string, 0, len(from))
	for _, status := range from {
		allowed = append(allowed, string(status))
	}

	set := "status = $1, updated_at = NOW()"
	if column, ok := statusTimestampColumn[to]; ok {
		set += ", " + column + " = NOW()"
	}

	tag, err := s.pool.Exec(ctx, `UPDATE orders SET `+set+` WHERE id = $2 AND status = ANY($3)`,
		string(to), orderID, allowed)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	current, err := s.currentStatus(ctx, orderID)
	if err != nil {
		return false, err
	}
	if current == to {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current, to)
}

// ClaimFulfillment marks the order as being handed to the carrier for lease.
// It reports false while another claim is live. Recording the outcome
// releases the claim; an abandoned claim expires with its lease.
func (s *OrderStore) ClaimFulfillment(ctx context.Context, orderID uuid.UUID, lease time.Duration) (bool, error) {
	if lease <= 0 {
		return false, fmt.Errorf("claim lease must be positive")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET fulfillment_claimed_until = NOW() + make_interval(secs => $2)
		WHERE id = $1
			AND tracking_number IS NULL
			AND (fulfillment_claimed_until IS NULL OR fulfillment_claimed_until < NOW())`,
		orderID, lease.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to claim order for fulfillment: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var tracking pgtype.Text
	err = s.pool.QueryRow(ctx, `SELECT tracking_number FROM orders WHERE id = $1`, orderID).Scan(&tracking)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrOrderNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read fulfillment claim: %w", err)
	}
	if tracking.Valid {
		return false, ErrAlreadyFulfilled
	}
	return false, nil
}

// RecordFulfillmentSuccess stores the carrier tracking number and moves a
// confirmed order to shipped. The tracking number is written once.
func (s *OrderStore) RecordFulfillmentSuccess(ctx context.Context, orderID uuid.UUID, trackingNumber string) error {
	if strings.TrimSpace(trackingNumber) == "" {
		return fmt.Errorf("tracking number is required")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET tracking_number = $1,
			sent_to_fulfillment = TRUE,
			fulfillment_error = '',
			fulfillment_attempts = fulfillment_attempts + 1,
			fulfillment_claimed_until = NULL,
			shipped_at = CASE WHEN status IN ('paid', 'cod_pending') THEN NOW() ELSE shipped_at END,
			status = CASE WHEN status IN ('paid', 'cod_pending') THEN 'shipped' ELSE status END,
			updated_at = NOW()
		WHERE id = $2 AND tracking_number IS NULL`,
		trackingNumber, orderID)
	if err != nil {
		return fmt.Errorf("failed to record fulfillment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrFulfilled(ctx, orderID)
	}
	return nil
}

// RecordFulfillmentFailure keeps the order retryable and stores the reason.
func (s *OrderStore) RecordFulfillmentFailure(ctx context.Context, orderID uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET sent_to_fulfillment = FALSE,
			fulfillment_error = $1,
			fulfillment_attempts = fulfillment_attempts + 1,
			fulfillment_claimed_until = NULL,
			updated_at = NOW()
		WHERE id = $2 AND tracking_number IS NULL`,
		reason, orderID)
	if err != nil {
		return fmt.Errorf("failed to record fulfillment failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrFulfilled(ctx, orderID)
	}
	return nil
}

func (s *OrderStore) currentStatus(ctx context.Context, orderID uuid.UUID) (models.OrderStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read order status: %w", err)
	}
	return models.OrderStatus(status), nil
}

func (s *OrderStore) missingOrFulfilled(ctx context.Context, orderID uuid.UUID) error {
	if _, err := s.currentStatus(ctx, orderID); err != nil {
		return err
	}
	return ErrAlreadyFulfilled
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order           models.Order
		itemsJSON       []byte
		paymentMethod   string
		status          string
		stripeSessionID pgtype.Text
		trackingNumber  pgtype.Text
		attempts        int32
		paidAt          pgtype.Timestamptz
		shippedAt       pgtype.Timestamptz
		deliveredAt     pgtype.Timestamptz
		cancelledAt     pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&itemsJSON,
		&order.TotalAmount,
		&order.ShippingPrice,
		&order.TotalWithShipping,
		&order.Currency,
		&paymentMethod,
		&status,
		&order.Customer.Name,
		&order.Customer.Email,
		&order.Customer.Phone,
		&order.Customer.PhoneCountryCode,
		&order.Destination.CountryCode,
		&order.Destination.CountryName,
		&order.Destination.City,
		&order.Destination.Address,
		&order.Destination.PostalCode,
		&order.Destination.EasyboxID,
		&order.ShippingMethod,
		&order.CarrierCode,
		&order.CarrierName,
		&order.Office.ID,
		&order.Office.Name,
		&order.Office.Address,
		&order.Office.City,
		&order.Office.Country,
		&stripeSessionID,
		&trackingNumber,
		&order.SentToFulfillment,
		&order.FulfillmentError,
		&attempts,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
		&shippedAt,
		&deliveredAt,
		&cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
			return nil, fmt.Errorf("failed to decode order items: %w", err)
		}
	}

	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.Status = models.OrderStatus(status)
	order.StripeSessionID = stripeSessionID.String
	order.TrackingNumber = trackingNumber.String
	order.FulfillmentAttempts = int(attempts)
	order.PaidAt = timestampValue(paidAt)
	order.ShippedAt = timestampValue(shippedAt)
	order.DeliveredAt = timestampValue(deliveredAt)
	order.CancelledAt = timestampValue(cancelledAt)

	return &order, nil
}

func timestampValue(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time
}

package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matchaleaf/storefront/internal/carrier"
	"github.com/matchaleaf/storefront/internal/db"
	"github.com/matchaleaf/storefront/internal/models"
	"github.com/matchaleaf/storefront/internal/stripe"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryOrderStore mirrors the conditional updates of db.OrderStore.
type memoryOrderStore struct {
	mu            sync.Mutex
	orders        map[uuid.UUID]*models.Order
	claims        map[uuid.UUID]time.Time
	nextNumber    int64
	createErr     error
	setSessionErr error
	getErr        error
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{
		orders:     map[uuid.UUID]*models.Order{},
		claims:     map[uuid.UUID]time.Time{},
		nextNumber: 1000,
	}
}

func cloneOrder(order *models.Order) *models.Order {
	c := *order
	c.Items = append([]models.LineItem(nil), order.Items...)
	return &c
}

func (m *memoryOrderStore) put(order *models.Order) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.OrderNumber == 0 {
		m.nextNumber++
		order.OrderNumber = m.nextNumber
	}
	m.orders[order.ID] = cloneOrder(order)
	return order
}

func (m *memoryOrderStore) get(id uuid.UUID) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil
	}
	return cloneOrder(order)
}

func (m *memoryOrderStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memoryOrderStore) Create(_ context.Context, order *models.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	if !order.TotalsConsistent() {
		return db.ErrInconsistentTotals
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	m.put(order)
	return nil
}

func (m *memoryOrderStore) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	order := m.get(orderID)
	if order == nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, db.ErrOrderNotFound)
	}
	return order, nil
}

func (m *memoryOrderStore) GetByStripeSessionID(_ context.Context, sessionID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.StripeSessionID != "" && order.StripeSessionID == sessionID {
			return cloneOrder(order), nil
		}
	}
	return nil, fmt.Errorf("failed to get order by session %s: %w", sessionID, db.ErrOrderNotFound)
}

func (m *memoryOrderStore) List(_ context.Context, limit int) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]*models.Order, 0, len(m.orders))
	for _, order := range m.orders {
		orders = append(orders, cloneOrder(order))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderNumber > orders[j].OrderNumber })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *memoryOrderStore) SetStripeSession(_ context.Context, orderID uuid.UUID, sessionID string) error {
	if m.setSessionErr != nil {
		return m.setSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || (order.StripeSessionID != "" && order.StripeSessionID != sessionID) {
		return db.ErrStripeSessionAlreadySet
	}
	order.StripeSessionID = sessionID
	return nil
}

func (m *memoryOrderStore) Transition(_ context.Context, orderID uuid.UUID, to models.OrderStatus, from ...models.OrderStatus) (bool, error) {
	if len(from) == 0 {
		from = models.Predecessors(to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return false, db.ErrOrderNotFound
	}
	for _, allowed := range from {
		if order.Status == allowed {
			order.Status = to
			now := time.Now()
			order.UpdatedAt = now
			switch to {
			case models.StatusPaid:
				order.PaidAt = now
			case models.StatusShipped:
				order.ShippedAt = now
			case models.StatusDelivered:
				order.DeliveredAt = now
			case models.StatusCancelled:
				order.CancelledAt = now
			}
			return true, nil
		}
	}
	if order.Status == to {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s -> %s", db.ErrInvalidStatusTransition, order.Status, to)
}

func (m *memoryOrderStore) ClaimFulfillment(_ context.Context, orderID uuid.UUID, lease time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return false, db.ErrOrderNotFound
	}
	if order.TrackingNumber != "" {
		return false, db.ErrAlreadyFulfilled
	}
	now := time.Now()
	if until, held := m.claims[orderID]; held && until.After(now) {
		return false, nil
	}
	m.claims[orderID] = now.Add(lease)
	return true, nil
}

func (m *memoryOrderStore) RecordFulfillmentSuccess(_ context.Context, orderID uuid.UUID, trackingNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.TrackingNumber != "" {
		return db.ErrAlreadyFulfilled
	}
	delete(m.claims, orderID)
	order.TrackingNumber = trackingNumber
	order.SentToFulfillment = true
	order.FulfillmentError = ""
	order.FulfillmentAttempts++
	if order.Status.Confirmed() {
		order.Status = models.StatusShipped
		order.ShippedAt = time.Now()
	}
	return nil
}

func (m *memoryOrderStore) RecordFulfillmentFailure(_ context.Context, orderID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.TrackingNumber != "" {
		return db.ErrAlreadyFulfilled
	}
	delete(m.claims, orderID)
	order.SentToFulfillment = false
	order.FulfillmentError = reason
	order.FulfillmentAttempts++
	return nil
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (q *recordingQueue) Enqueue(orderID uuid.UUID) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, orderID)
	return nil
}

func (q *recordingQueue) enqueued() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uuid.UUID(nil), q.ids...)
}

type recordingEmailSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingEmailSender) record(kind string, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, fmt.Sprintf("%s:%d", kind, order.OrderNumber))
	return nil
}

func (s *recordingEmailSender) SendOrderPlaced(_ context.Context, order *models.Order) error {
	return s.record("placed", order)
}

func (s *recordingEmailSender) SendPaymentConfirmed(_ context.Context, order *models.Order) error {
	return s.record("paid", order)
}

func (s *recordingEmailSender) SendOrderShipped(_ context.Context, order *models.Order) error {
	return s.record("shipped", order)
}

func (s *recordingEmailSender) SendOperatorNewOrder(_ context.Context, order *models.Order) error {
	return s.record("operator", order)
}

func (s *recordingEmailSender) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, entry := range s.sent {
		kind, _, _ := strings.Cut(entry, ":")
		out = append(out, kind)
	}
	return out
}

type fakeSessionCreator struct {
	mu     sync.Mutex
	params []stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessionCreator) CreateCheckoutSession(_ context.Context, params stripe.CheckoutSessionParams) (*stripe.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	id := fmt.Sprintf("cs_test_%d", len(f.params))
	return &stripe.Session{ID: id, URL: "https://checkout.stripe.test/pay/" + id}, nil
}

func (f *fakeSessionCreator) calls() []stripe.CheckoutSessionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stripe.CheckoutSessionParams(nil), f.params...)
}

type fakeCarrier struct {
	mu          sync.Mutex
	shipments   []carrier.ShipmentRequest
	lockerCalls int
	tracking    string
	err         error
	lockers     []carrier.Locker
}

func (f *fakeCarrier) CreateShipment(_ context.Context, creds carrier.Credentials, req carrier.ShipmentRequest) (*carrier.Shipment, error) {
	if !creds.Configured() {
		return nil, carrier.ErrNotConfigured
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shipments = append(f.shipments, req)
	if f.err != nil {
		return nil, f.err
	}
	return &carrier.Shipment{TrackingNumber: f.tracking, Carrier: req.CarrierCode}, nil
}

func (f *fakeCarrier) ListLockers(_ context.Context, creds carrier.Credentials, _ string) ([]carrier.Locker, error) {
	if !creds.Configured() {
		return nil, carrier.ErrNotConfigured
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockerCalls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]carrier.Locker(nil), f.lockers...), nil
}

func (f *fakeCarrier) shipmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shipments)
}

// confirmedOrder is a cash-on-delivery order to an Econt office in Sofia.
func confirmedOrder() *models.Order {
	return &models.Order{
		Items: []models.LineItem{
			{ProductTitle: "Ceremonial Grade Matcha", VariantID: "ceremonial-matcha-30g", VariantTitle: "30 g tin", Quantity: 2, UnitPrice: 2800, Currency: "BGN"},
		},
		TotalAmount:       5600,
		ShippingPrice:     550,
		TotalWithShipping: 6150,
		Currency:          "BGN",
		PaymentMethod:     models.PaymentCOD,
		Status:            models.StatusCODPending,
		Customer:          models.Customer{Name: "Ivana Petrova", Email: "ivana@example.com", Phone: "888123456", PhoneCountryCode: "+359"},
		Destination:       models.Destination{CountryCode: "BG", CountryName: "Bulgaria", City: "Sofia", PostalCode: "1000"},
		ShippingMethod:    "econt-office",
		CarrierCode:       "econt",
		CarrierName:       "Econt",
		Office:            models.CarrierOffice{ID: "sof-12", Name: "Econt Sofia Center", Address: "ul. Graf Ignatiev 10", City: "Sofia", Country: "Bulgaria"},
		CreatedAt:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/matchaleaf/storefront/internal/cache"
	"github.com/matchaleaf/storefront/internal/catalog"
	"github.com/matchaleaf/storefront/internal/config"
	"github.com/matchaleaf/storefront/internal/models"
	"github.com/matchaleaf/storefront/internal/services"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

type stubCheckout struct {
	result *services.CheckoutResult
	err    error
	got    *services.CheckoutRequest
}

func (s *stubCheckout) Submit(_ context.Context, req services.CheckoutRequest) (*services.CheckoutResult, error) {
	s.got = &req
	return s.result, s.err
}

type stubFulfillment struct {
	result      *services.FulfillmentResult
	err         error
	dispatched  []uuid.UUID
	lockers     []services.LockerGroup
	lockersErr  error
	diagnostics *services.CarrierDiagnostics
}

func (s *stubFulfillment) Dispatch(_ context.Context, orderID uuid.UUID) (*services.FulfillmentResult, error) {
	s.dispatched = append(s.dispatched, orderID)
	return s.result, s.err
}

func (s *stubFulfillment) Diagnostics(context.Context) *services.CarrierDiagnostics {
	return s.diagnostics
}

func (s *stubFulfillment) Lockers(context.Context, string) ([]services.LockerGroup, error) {
	return s.lockers, s.lockersErr
}

type stubStatus struct {
	status *services.OrderStatus
	err    error
	polled bool
}

func (s *stubStatus) Current(context.Context, uuid.UUID) (*services.OrderStatus, error) {
	return s.status, s.err
}

func (s *stubStatus) Poll(context.Context, uuid.UUID, services.PollOptions) (*services.OrderStatus, error) {
	s.polled = true
	return s.status, s.err
}

type stubOperator struct {
	orders    []*models.Order
	order     *models.Order
	err       error
	limit     int
	gotStatus models.OrderStatus
}

func (s *stubOperator) ListOrders(_ context.Context, limit int) ([]*models.Order, error) {
	s.limit = limit
	return s.orders, s.err
}

func (s *stubOperator) UpdateStatus(_ context.Context, _ uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	s.gotStatus = to
	return s.order, s.err
}

type stubPaymentEvents struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubPaymentEvents) record(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	return s.err
}

func (s *stubPaymentEvents) HandleCheckoutSessionCompleted(context.Context, []byte) error {
	return s.record("completed")
}

func (s *stubPaymentEvents) HandleAsyncPaymentSucceeded(context.Context, []byte) error {
	return s.record("async_succeeded")
}

func (s *stubPaymentEvents) HandleCheckoutSessionExpired(context.Context, []byte) error {
	return s.record("expired")
}

func (s *stubPaymentEvents) HandlePaymentIntentFailed(context.Context, []byte) error {
	return s.record("payment_failed")
}

func (s *stubPaymentEvents) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type testDeps struct {
	checkout    *stubCheckout
	fulfillment *stubFulfillment
	status      *stubStatus
	operator    *stubOperator
	payments    *stubPaymentEvents
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Shop: catalog.ShopConfig{Name: "Matcha Leaf", BaseCountry: "BG"},
		Products: []catalog.Product{
			{
				ID:     "ceremonial",
				Title:  "Ceremonial Grade Matcha",
				Active: true,
				Variants: []catalog.Variant{
					{ID: "ceremonial-30g", Title: "30 g tin", Price: "28.00", Available: true},
					{ID: "ceremonial-100g", Title: "100 g pouch", Price: "79.00", Available: false, Prices: map[string]string{"GR": "39.90"}},
				},
			},
			{
				ID:       "retired",
				Title:    "Retired Blend",
				Active:   false,
				Variants: []catalog.Variant{{ID: "retired-30g", Title: "30 g", Price: "10.00", Available: true}},
			},
		},
	}
}

func newTestHandlers(t *testing.T, cfg *config.Config, db Pinger) (*Handlers, *testDeps) {
	t.Helper()

	if cfg == nil {
		cfg = &config.Config{BaseURL: "https://shop.example", StripeWebhookSecret: testWebhookSecret, AdminJWTSecret: testJWTSecret}
	}
	if db == nil {
		db = stubPinger{}
	}
	cacheProvider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	deps := &testDeps{
		checkout:    &stubCheckout{},
		fulfillment: &stubFulfillment{},
		status:      &stubStatus{},
		operator:    &stubOperator{},
		payments:    &stubPaymentEvents{},
	}
	h, err := New(Dependencies{
		Config:        cfg,
		DB:            db,
		CacheProvider: cacheProvider,
		Catalog:       testCatalog(),
		Checkout:      deps.checkout,
		Fulfillment:   deps.fulfillment,
		StatusPoller:  deps.status,
		Operator:      deps.operator,
		StripeRouter:  NewStripeEventRouter(deps.payments, nil, nil),
	})
	if err != nil {
		t.Fatalf("failed to create handlers: %v", err)
	}
	return h, deps
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body T
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(Dependencies{}); err == nil || !strings.Contains(err.Error(), "config is required") {
		t.Fatalf("expected config error, got %v", err)
	}
	if _, err := New(Dependencies{Config: &config.Config{}, DB: stubPinger{}}); err == nil || !strings.Contains(err.Error(), "cacheProvider is required") {
		t.Fatalf("expected cache error, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "healthy", want: http.StatusOK},
		{name: "database down", err: errors.New("connection refused"), want: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newTestHandlers(t, nil, stubPinger{err: tc.err})
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

const validCheckoutBody = `{
	"items": [{"variantId": "ceremonial-30g", "quantity": 2, "unitPrice": "1.00"}],
	"customer": {"name": "Ivana Petrova", "email": "ivana@example.com", "phone": "888123456", "phoneCountryCode": "+359"},
	"shipping": {"country": "BG", "method": "econt-office", "office": {"id": "sof-12", "name": "Sofia Center"}},
	"paymentMethod": "cod",
	"cartId": "ignored-extra-field"
}`

func TestCheckout_Success(t *testing.T) {
	t.Parallel()

	h, deps := newTestHandlers(t, nil, nil)
	orderID := uuid.New()
	deps.checkout.result = &services.CheckoutResult{OrderID: orderID, RedirectURL: "https://shop.example/order-success?order_id=" + orderID.String()}

	rec := httptest.NewRecorder()
	h.Checkout(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(validCheckoutBody)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]string](t, rec)
	if body["orderId"] != orderID.String() || !strings.Contains(body["redirectUrl"], orderID.String()) {
		t.Fatalf("unexpected body: %v", body)
	}
	if deps.checkout.got == nil || deps.checkout.got.PaymentMethod != models.PaymentCOD || deps.checkout.got.Shipping.Office == nil {
		t.Fatalf("request not decoded: %+v", deps.checkout.got)
	}
}

func TestCheckout_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantField string
	}{
		{name: "validation", err: &services.ValidationError{Field: "customer.email", Reason: "must be a valid email address"}, wantCode: http.StatusBadRequest, wantField: "customer.email"},
		{name: "payments unavailable", err: services.ErrPaymentUnavailable, wantCode: http.StatusServiceUnavailable},
		{name: "session failed", err: errors.Join(services.ErrPaymentSessionFailed, errors.New("stripe down")), wantCode: http.StatusBadGateway},
		{name: "order create failed", err: errors.Join(services.ErrOrderCreateFailed, errors.New("db down")), wantCode: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h, deps := newTestHandlers(t, nil, nil)
			deps.checkout.err = tc.err

			rec := httptest.NewRecorder()
			h.Checkout(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(validCheckoutBody)))

			if rec.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, rec.Code)
			}
			body := decodeBody[errorResponse](t, rec)
			if body.Error == "" || body.Field != tc.wantField {
				t.Fatalf("unexpected error body: %+v", body)
			}
			if strings.Contains(body.Error, "db down") || strings.Contains(body.Error, "stripe down") {
				t.Fatalf("internal detail leaked: %q", body.Error)
			}
		})
	}
}

func TestCheckout_RejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	h, deps := newTestHandlers(t, nil, nil)
	for _, body := range []string{`{"items": [`, `{"items": []} {"again": true}`} {
		rec := httptest.NewRecorder()
		h.Checkout(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, rec.Code)
		}
	}
	if deps.checkout.got != nil {
		t.Fatalf("checkout must not run for malformed JSON")
	}
}

func TestCheckout_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t, nil, nil)
	body := `{"items": [], "padding": "` + strings.Repeat("a", maxJSONBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	h.Checkout(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBufferString(body)))

	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "too large") {
		t.Fatalf("expected body too large error, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestShippingMethods(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t, nil, nil)

	rec := httptest.NewRecorder()
	h.ShippingMethods(rec, httptest.NewRequest(http.MethodGet, "/api/shipping-methods?country=bg", nil))
	bg := decodeBody[shippingMethodsResponse](t, rec)
	if bg.Country != "BG" || bg.Currency != "BGN" || len(bg.Methods) != 4 {
		t.Fatalf("unexpected BG response: %+v", bg)
	}
	if bg.FreeShippingThreshold == nil || *bg.FreeShippingThreshold != 6000 {
		t.Fatalf("expected BG free shipping threshold, got %v", bg.FreeShippingThreshold)
	}

	rec = httptest.NewRecorder()
	h.ShippingMethods(rec, httptest.NewRequest(http.MethodGet, "/api/shipping-methods?country=RO", nil))
	ro := decodeBody[shippingMethodsResponse](t, rec)
	if ro.Currency != "RON" || ro.FreeShippingThreshold != nil || len(ro.Methods) != 3 {
		t.Fatalf("unexpected RO response: %+v", ro)
	}

	rec = httptest.NewRecorder()
	h.ShippingMethods(rec, httptest.NewRequest(http.MethodGet, "/api/shipping-methods?country=XX", nil))
	if fallback := decodeBody[shippingMethodsResponse](t, rec); fallback.Country != "BG" {
		t.Fatalf("unknown country should fall back to BG, got %q", fallback.Country)
	}
}

func TestPrices(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t, nil, nil)

	rec := httptest.NewRecorder()
	h.Prices(rec, httptest.NewRequest(http.MethodGet, "/api/prices?country=BG", nil))
	bg := decodeBody[pricesResponse](t, rec)
	if len(bg.Products) != 1 || len(bg.Products[0].Variants) != 2 {
		t.Fatalf("expected only the active product, got %+v", bg.Products)
	}
	tin := bg.Products[0].Variants[0]
	if tin.Price != "28.00" || tin.PriceMinor != 2800 || tin.Currency != "BGN" || tin.DisplayEUR != "14.32" || !tin.Available {
		t.Fatalf("unexpected BG variant: %+v", tin)
	}

	rec = httptest.NewRecorder()
	h.Prices(rec, httptest.NewRequest(http.MethodGet, "/api/prices?country=GR", nil))
	gr := decodeBody[pricesResponse](t, rec)
	variants := gr.Products[0].Variants
	if variants[0].Price != "15.90" || variants[0].Currency != "EUR" || variants[0].DisplayEUR != "" {
		t.Fatalf("unexpected GR fixed price: %+v", variants[0])
	}
	if variants[1].Price != "39.90" || variants[1].PriceMinor != 3990 || variants[1].Available {
		t.Fatalf("unexpected GR override price: %+v", variants[1])
	}
}

func TestOrderStatus(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	tests := []struct {
		name       string
		id         string
		query      string
		err        error
		wantCode   int
		wantPolled bool
	}{
		{name: "single read", id: orderID.String(), wantCode: http.StatusOK},
		{name: "long poll", id: orderID.String(), query: "?wait=true", wantCode: http.StatusOK, wantPolled: true},
		{name: "invalid id", id: "1042", wantCode: http.StatusBadRequest},
		{name: "not found", id: orderID.String(), err: services.ErrOrderNotFound, wantCode: http.StatusNotFound},
		{name: "store failure", id: orderID.String(), err: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h, deps := newTestHandlers(t, nil, nil)
			deps.status.err = tc.err
			if tc.err == nil {
				deps.status.status = &services.OrderStatus{OrderID: orderID, Status: models.StatusShipped, TrackingNumber: "1051234567", Done: true}
			}

			req := httptest.NewRequest(http.MethodGet, "/api/orders/"+tc.id+"/status"+tc.query, nil)
			req = mux.SetURLVars(req, map[string]string{"id": tc.id})
			rec := httptest.NewRecorder()
			h.OrderStatus(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, rec.Code)
			}
			if deps.status.polled != tc.wantPolled {
				t.Fatalf("expected polled=%v", tc.wantPolled)
			}
			if rec.Code == http.StatusOK {
				body := decodeBody[services.OrderStatus](t, rec)
				if body.TrackingNumber != "1051234567" || !body.Done {
					t.Fatalf("unexpected status body: %+v", body)
				}
			}
		})
	}
}

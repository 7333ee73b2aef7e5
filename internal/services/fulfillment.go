package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/matchaleaf/storefront/internal/cache"
	"github.com/matchaleaf/storefront/internal/carrier"
	"github.com/matchaleaf/storefront/internal/catalog"
	"github.com/matchaleaf/storefront/internal/db"
	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/models"
	"github.com/matchaleaf/storefront/internal/observability"
)

const (
	lockersCacheTTL = 6 * time.Hour
	// fulfillmentClaimLease outlives a carrier call including its timeout.
	fulfillmentClaimLease = 2 * time.Minute
)

type FulfillmentResult struct {
	Success        bool   `json:"success"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	Error          string `json:"error,omitempty"`
}

type FulfillmentService struct {
	orderStore  orderStore
	client      carrier.Client
	creds       carrier.Credentials
	mode        string
	cache       cache.Provider
	emailSender OrderEmailSender
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

type FulfillmentOptions struct {
	Credentials carrier.Credentials
	// Mode is reported by diagnostics only.
	Mode string
}

func NewFulfillmentService(orderStore orderStore, client carrier.Client, cacheProvider cache.Provider, emailSender OrderEmailSender, metrics *observability.Metrics, opts FulfillmentOptions, logger *slog.Logger) *FulfillmentService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}
	if client == nil {
		client = carrier.NewMockClient()
	}
	mode := opts.Mode
	if mode == "" {
		mode = carrier.ModeMock
	}

	return &FulfillmentService{
		orderStore:  orderStore,
		client:      client,
		creds:       opts.Credentials,
		mode:        mode,
		cache:       cacheProvider,
		emailSender: emailSender,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *FulfillmentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Dispatch hands a confirmed order to the carrier. Orders that already have a
// tracking number return it without calling the carrier. A carrier failure is
// recorded on the order, returned in the result and as the error; the order
// itself stays valid.
func (s *FulfillmentService) Dispatch(ctx context.Context, orderID uuid.UUID) (*FulfillmentResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.fulfillment.dispatch",
		sentry.WithOpName("service.fulfillment"),
		sentry.WithDescription("Dispatch"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx).With("order_id", orderID)
	meter := observability.MeterFromContext(ctx)
	meter.Count("fulfillment.dispatch.received", 1)
	recordFailed := func(reason string) {
		meter.Count("fulfillment.dispatch.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			recordFailed("order_not_found")
			return nil, fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		}
		recordFailed("order_lookup_failed")
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.IsFulfilled() {
		s.metrics.FulfillmentDispatched("already_fulfilled", 0)
		logger.Info("order already handed to carrier", "tracking_number", order.TrackingNumber)
		return &FulfillmentResult{Success: true, TrackingNumber: order.TrackingNumber}, nil
	}
	if !order.Status.Confirmed() {
		recordFailed("order_not_confirmed")
		return nil, fmt.Errorf("%w: status is %s", ErrOrderNotConfirmed, order.Status)
	}

	if !s.creds.Configured() {
		recordFailed("not_configured")
		s.metrics.FulfillmentDispatched("not_configured", 0)
		reason := ErrCarrierNotConfigured.Error()
		if err := s.orderStore.RecordFulfillmentFailure(ctx, order.ID, reason); err != nil {
			logger.Error("failed to record fulfillment failure", "error", err)
		}
		logger.Error("carrier credentials are missing; order left for manual fulfillment")
		return &FulfillmentResult{Error: reason}, ErrCarrierNotConfigured
	}

	claimed, err := s.orderStore.ClaimFulfillment(ctx, order.ID, fulfillmentClaimLease)
	if err != nil {
		if errors.Is(err, db.ErrAlreadyFulfilled) {
			return s.reloadFulfilled(ctx, order.ID)
		}
		recordFailed("claim_failed")
		return nil, fmt.Errorf("failed to claim order for fulfillment: %w", err)
	}
	if !claimed {
		recordFailed("in_progress")
		s.metrics.FulfillmentDispatched("in_progress", 0)
		logger.Info("order is already being handed to the carrier")
		return nil, ErrFulfillmentBusy
	}

	start := s.now()
	shipment, err := s.client.CreateShipment(ctx, s.creds, BuildShipmentRequest(order))
	elapsed := s.now().Sub(start)
	if err != nil {
		reason := dispatchFailureReason(err)
		recordFailed("carrier_error")
		s.metrics.FulfillmentDispatched("failed", elapsed)
		logger.Warn("carrier rejected shipment", "error", err, "reason", reason, "retryable", carrier.IsRetryable(err))
		if recordErr := s.orderStore.RecordFulfillmentFailure(ctx, order.ID, reason); recordErr != nil {
			if errors.Is(recordErr, db.ErrAlreadyFulfilled) {
				return s.reloadFulfilled(ctx, order.ID)
			}
			logger.Error("failed to record fulfillment failure", "error", recordErr)
		}
		return &FulfillmentResult{Error: reason}, fmt.Errorf("failed to dispatch order: %w", err)
	}

	if err := s.orderStore.RecordFulfillmentSuccess(ctx, order.ID, shipment.TrackingNumber); err != nil {
		if errors.Is(err, db.ErrAlreadyFulfilled) {
			logger.Warn("order was fulfilled concurrently; keeping stored tracking number", "discarded_tracking_number", shipment.TrackingNumber)
			return s.reloadFulfilled(ctx, order.ID)
		}
		recordFailed("persist_failed")
		s.metrics.FulfillmentDispatched("persist_failed", elapsed)
		logger.Error("shipment created but tracking number not stored", "error", err, "tracking_number", shipment.TrackingNumber)
		return nil, fmt.Errorf("failed to store tracking number: %w", err)
	}
	s.metrics.FulfillmentDispatched("success", elapsed)
	meter.Count("fulfillment.dispatch.succeeded", 1, sentry.WithAttributes(
		attribute.String("carrier", order.CarrierCode),
	))
	logger.Info("order handed to carrier", "tracking_number", shipment.TrackingNumber, "carrier", order.CarrierCode)

	order.TrackingNumber = shipment.TrackingNumber
	order.SentToFulfillment = true
	order.FulfillmentError = ""
	if order.Status.Confirmed() {
		order.Status = models.StatusShipped
	}
	if err := s.emailSender.SendOrderShipped(ctx, order); err != nil {
		meter.Count("fulfillment.side_effect_failed", 1, sentry.WithAttributes(
			attribute.String("reason", "shipping_email_failed"),
		))
		logger.Error("failed to send shipping email", "error", err)
	}

	return &FulfillmentResult{Success: true, TrackingNumber: shipment.TrackingNumber}, nil
}

// DispatchOrder is the queue entry point.
func (s *FulfillmentService) DispatchOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.Dispatch(ctx, orderID)
	return err
}

// Retryable reports whether a DispatchOrder error may succeed on a later attempt.
// A busy order is retried so the queue sees the other dispatch's outcome.
func (s *FulfillmentService) Retryable(err error) bool {
	if errors.Is(err, ErrFulfillmentBusy) {
		return true
	}
	if errors.Is(err, ErrCarrierNotConfigured) || errors.Is(err, ErrOrderNotConfirmed) || errors.Is(err, ErrOrderNotFound) {
		return false
	}
	return carrier.IsRetryable(err)
}

func (s *FulfillmentService) reloadFulfilled(ctx context.Context, orderID uuid.UUID) (*FulfillmentResult, error) {
	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload order: %w", err)
	}
	return &FulfillmentResult{Success: true, TrackingNumber: order.TrackingNumber}, nil
}

// BuildShipmentRequest maps a stored order onto the carrier payload. Cash on
// delivery orders carry the amount the courier collects.
func BuildShipmentRequest(order *models.Order) carrier.ShipmentRequest {
	items := make([]carrier.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, carrier.Item{
			Name:     item.ProductTitle,
			Variant:  item.VariantTitle,
			Quantity: item.Quantity,
			Price:    catalog.FormatMinor(item.UnitPrice),
		})
	}

	deliveryType := models.DeliveryAddress
	switch {
	case !order.Office.IsZero():
		deliveryType = models.DeliveryOffice
	case order.Destination.EasyboxID != "":
		deliveryType = models.DeliveryEasybox
	}

	req := carrier.ShipmentRequest{
		OrderID:        order.ID.String(),
		OrderNumber:    order.OrderNumber,
		CarrierCode:    order.CarrierCode,
		DeliveryType:   string(deliveryType),
		ShippingMethod: order.ShippingMethod,
		Recipient: carrier.Recipient{
			Name:        order.Customer.Name,
			Email:       order.Customer.Email,
			Phone:       formatPhone(order.Customer),
			CountryCode: order.Destination.CountryCode,
			City:        order.Destination.City,
			Address:     order.Destination.Address,
			PostalCode:  order.Destination.PostalCode,
			EasyboxID:   order.Destination.EasyboxID,
			OfficeID:    order.Office.ID,
		},
		Items:    items,
		Total:    catalog.FormatMinor(order.TotalWithShipping),
		Currency: order.Currency,
	}
	if order.PaymentMethod == models.PaymentCOD {
		req.CODAmount = catalog.FormatMinor(order.TotalWithShipping)
	}
	return req
}

// dispatchFailureReason is stored on the order and shown to callers, so it
// stays coarse. Details go to the logs.
func dispatchFailureReason(err error) string {
	var reqErr *carrier.RequestError
	var decodeErr *carrier.DecodeError
	switch {
	case errors.Is(err, carrier.ErrNotConfigured):
		return ErrCarrierNotConfigured.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "carrier request timed out"
	case errors.As(err, &reqErr):
		return fmt.Sprintf("carrier rejected the shipment (HTTP %d)", reqErr.StatusCode)
	case errors.As(err, &decodeErr):
		return "carrier returned an unusable response"
	default:
		return "carrier request failed"
	}
}

type CarrierDiagnostics struct {
	Mode             string             `json:"mode"`
	AppIDConfigured  bool               `json:"appIdConfigured"`
	SecretConfigured bool               `json:"appSecretConfigured"`
	SignatureSample  string             `json:"signatureSample,omitempty"`
	MockDispatch     *FulfillmentResult `json:"mockDispatch"`
}

// Diagnostics reports credential presence and runs a dispatch against the
// mock carrier. Nothing is persisted.
func (s *FulfillmentService) Diagnostics(ctx context.Context) *CarrierDiagnostics {
	diag := &CarrierDiagnostics{
		Mode:             s.mode,
		AppIDConfigured:  strings.TrimSpace(s.creds.AppID) != "",
		SecretConfigured: strings.TrimSpace(s.creds.AppSecret) != "",
	}

	sample := carrier.ShipmentRequest{
		OrderID:      uuid.Nil.String(),
		CarrierCode:  CarrierEcont,
		DeliveryType: string(models.DeliveryOffice),
		Recipient:    carrier.Recipient{Name: "Diagnostics", CountryCode: catalog.BaseCountry, OfficeID: "diagnostics"},
		Items:        []carrier.Item{{Name: "Diagnostics", Quantity: 1, Price: "0.00"}},
		Total:        "0.00",
		Currency:     "BGN",
	}
	if s.creds.Configured() {
		if payload, err := json.Marshal(sample); err == nil {
			diag.SignatureSample = carrier.Sign(s.creds.AppID, s.creds.AppSecret, s.now().Unix(), payload)
		}
	}

	shipment, err := carrier.NewMockClient().CreateShipment(ctx, s.creds, sample)
	if err != nil {
		diag.MockDispatch = &FulfillmentResult{Error: dispatchFailureReason(err)}
		return diag
	}
	diag.MockDispatch = &FulfillmentResult{Success: true, TrackingNumber: shipment.TrackingNumber}
	return diag
}

type LockerGroup struct {
	City    string           `json:"city"`
	Lockers []carrier.Locker `json:"lockers"`
}

// Lockers lists parcel lockers for a country grouped by city. Results are
// cached for lockersCacheTTL.
func (s *FulfillmentService) Lockers(ctx context.Context, countryCode string) ([]LockerGroup, error) {
	logger := s.loggerFromContext(ctx)
	country := catalog.NormalizeCountry(countryCode)
	if country == "" {
		country = catalog.BaseCountry
	}
	key := cache.LockersKey(country)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err == nil {
			var groups []LockerGroup
			if err := json.Unmarshal([]byte(cached), &groups); err == nil {
				return groups, nil
			}
			logger.Warn("discarding unreadable locker cache entry", "country", country)
		} else if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("failed to read locker cache", "error", err)
		}
	}

	lockers, err := s.client.ListLockers(ctx, s.creds, country)
	if err != nil {
		if errors.Is(err, carrier.ErrNotConfigured) {
			return nil, ErrCarrierNotConfigured
		}
		return nil, fmt.Errorf("failed to list lockers: %w", err)
	}
	groups := groupLockersByCity(lockers)

	if s.cache != nil {
		if encoded, err := json.Marshal(groups); err == nil {
			if err := s.cache.Set(ctx, key, string(encoded), lockersCacheTTL); err != nil {
				logger.Warn("failed to cache lockers", "error", err)
			}
		}
	}
	return groups, nil
}

func groupLockersByCity(lockers []carrier.Locker) []LockerGroup {
	byCity := make(map[string][]carrier.Locker)
	for _, locker := range lockers {
		city := strings.TrimSpace(locker.City)
		if city == "" {
			city = "Other"
		}
		byCity[city] = append(byCity[city], locker)
	}

	groups := make([]LockerGroup, 0, len(byCity))
	for city, cityLockers := range byCity {
		sort.Slice(cityLockers, func(i, j int) bool { return cityLockers[i].Name < cityLockers[j].Name })
		groups = append(groups, LockerGroup{City: city, Lockers: cityLockers})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].City < groups[j].City })
	return groups
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matchaleaf/storefront/internal/cart"
	"github.com/matchaleaf/storefront/internal/catalog"
	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/models"
	"github.com/matchaleaf/storefront/internal/observability"
)

type CheckoutItem struct {
	VariantID string `json:"variantId" validate:"required,max=100"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=99"`
	// Options are the option labels picked on the product page, e.g. "Gift wrap".
	Options []string `json:"options,omitempty" validate:"max=10,dive,max=100"`
	// UnitPrice and Currency are what the storefront displayed. They are
	// only compared against the catalog price.
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
	Currency  string           `json:"currency,omitempty"`
}

type CheckoutCustomer struct {
	Name             string `json:"name" validate:"required,max=200"`
	Email            string `json:"email" validate:"required,email,max=254"`
	Phone            string `json:"phone" validate:"required,max=32"`
	PhoneCountryCode string `json:"phoneCountryCode" validate:"omitempty,max=8"`
}

type CheckoutOffice struct {
	ID      string `json:"id" validate:"max=100"`
	Name    string `json:"name" validate:"max=200"`
	Address string `json:"address" validate:"max=300"`
	City    string `json:"city" validate:"max=100"`
	Country string `json:"country" validate:"max=100"`
}

type CheckoutShipping struct {
	Country     string          `json:"country" validate:"omitempty,len=2,alpha"`
	CountryName string          `json:"countryName" validate:"max=100"`
	City        string          `json:"city" validate:"max=100"`
	Address     string          `json:"address" validate:"max=300"`
	PostalCode  string          `json:"postalCode" validate:"max=16"`
	Method      string          `json:"method" validate:"required,max=64"`
	EasyboxID   string          `json:"easyboxId" validate:"max=100"`
	Office      *CheckoutOffice `json:"office,omitempty"`
}

type CheckoutRequest struct {
	Items         []CheckoutItem       `json:"items" validate:"required,min=1,max=50,dive"`
	Customer      CheckoutCustomer     `json:"customer"`
	Shipping      CheckoutShipping     `json:"shipping"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod" validate:"required,oneof=card cod"`
}

type CheckoutResult struct {
	OrderID     uuid.UUID `json:"orderId"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
}

type paymentStarter interface {
	Available() bool
	StartSession(ctx context.Context, order *models.Order) (string, error)
}

type CheckoutService struct {
	orderStore  orderStore
	catalog     *catalog.Catalog
	resolver    *catalog.Resolver
	payments    paymentStarter
	queue       fulfillmentQueue
	emailSender OrderEmailSender
	metrics     *observability.Metrics
	validate    *validator.Validate
	baseURL     string
	logger      *slog.Logger
}

type CheckoutDependencies struct {
	OrderStore  orderStore
	Catalog     *catalog.Catalog
	Resolver    *catalog.Resolver
	Payments    paymentStarter
	Queue       fulfillmentQueue
	EmailSender OrderEmailSender
	Metrics     *observability.Metrics
	BaseURL     string
	Logger      *slog.Logger
}

func NewCheckoutService(deps CheckoutDependencies) (*CheckoutService, error) {
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("checkout dependencies: orderStore is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("checkout dependencies: catalog is required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("checkout dependencies: payments is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("checkout dependencies: queue is required")
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = catalog.NewResolver()
	}
	emailSender := deps.EmailSender
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &CheckoutService{
		orderStore:  deps.OrderStore,
		catalog:     deps.Catalog,
		resolver:    resolver,
		payments:    deps.Payments,
		queue:       deps.Queue,
		emailSender: emailSender,
		metrics:     deps.Metrics,
		validate:    newRequestValidator(),
		baseURL:     strings.TrimRight(deps.BaseURL, "/"),
		logger:      deps.Logger,
	}, nil
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Submit validates and prices a checkout, persists the order and either
// starts a card payment session or queues a cash-on-delivery order for the
// carrier.
func (s *CheckoutService) Submit(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.submit",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Submit"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailed := func(reason string) {
		meter.Count("checkout.submission.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	req = normalizeCheckoutRequest(req)
	if err := s.validateRequest(req); err != nil {
		recordFailed("invalid_request")
		return nil, err
	}
	if req.PaymentMethod == models.PaymentCard && !s.payments.Available() {
		recordFailed("payment_unavailable")
		return nil, ErrPaymentUnavailable
	}

	country := s.resolver.Country(req.Shipping.Country)
	method, ok := s.resolver.FindShippingMethod(country.Code, req.Shipping.Method)
	if !ok {
		recordFailed("unknown_shipping_method")
		return nil, invalidField("shipping.method", fmt.Sprintf("%q is not offered in %s", req.Shipping.Method, country.Code))
	}
	if err := validateDestination(req.Shipping, method); err != nil {
		recordFailed("invalid_destination")
		return nil, err
	}

	basket, err := s.buildCart(ctx, req.Items, country.Code)
	if err != nil {
		recordFailed("invalid_items")
		return nil, err
	}

	subtotal := basket.Subtotal()
	shippingPrice := s.resolver.ShippingPrice(country.Code, method, subtotal)
	order := buildOrder(req, basket, country, method, shippingPrice)

	if err := s.orderStore.Create(ctx, order); err != nil {
		recordFailed("order_create_failed")
		logger.Error("failed to create order", "error", err, "payment_method", req.PaymentMethod)
		return nil, fmt.Errorf("%w: %w", ErrOrderCreateFailed, err)
	}
	s.metrics.OrderCreated(string(order.PaymentMethod))
	meter.Count("checkout.order.created", 1, sentry.WithAttributes(
		attribute.String("payment_method", string(order.PaymentMethod)),
		attribute.String("country", country.Code),
	))
	logger = logger.With("order_id", order.ID, "order_number", order.OrderNumber)
	logger.Info("order created",
		"payment_method", order.PaymentMethod,
		"total_with_shipping", order.TotalWithShipping,
		"currency", order.Currency,
		"shipping_method", order.ShippingMethod,
	)

	if order.PaymentMethod == models.PaymentCard {
		redirectURL, err := s.payments.StartSession(ctx, order)
		if err != nil {
			recordFailed("payment_session_failed")
			logger.Error("failed to start payment session", "error", err)
			if _, cancelErr := s.orderStore.Transition(ctx, order.ID, models.StatusCancelled, models.StatusPending); cancelErr != nil {
				logger.Error("failed to cancel order after payment session failure", "error", cancelErr)
			}
			return nil, fmt.Errorf("%w: %w", ErrPaymentSessionFailed, err)
		}
		return &CheckoutResult{OrderID: order.ID, RedirectURL: redirectURL}, nil
	}

	if err := s.queue.Enqueue(order.ID); err != nil {
		meter.Count("checkout.side_effect_failed", 1, sentry.WithAttributes(
			attribute.String("reason", "fulfillment_enqueue_failed"),
		))
		logger.Warn("failed to queue order for fulfillment", "error", err)
	}
	if err := s.emailSender.SendOrderPlaced(ctx, order); err != nil {
		meter.Count("checkout.side_effect_failed", 1, sentry.WithAttributes(
			attribute.String("reason", "confirmation_email_failed"),
		))
		logger.Error("failed to send order confirmation email", "error", err)
	}
	if err := s.emailSender.SendOperatorNewOrder(ctx, order); err != nil {
		logger.Error("failed to send operator notification", "error", err)
	}

	return &CheckoutResult{OrderID: order.ID, RedirectURL: codRedirectURL(s.baseURL, order.ID.String())}, nil
}

func (s *CheckoutService) validateRequest(req CheckoutRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return invalidField(fieldPath(first.Namespace()), validationReason(first))
	}
	return invalidField("", err.Error())
}

// buildCart prices the requested items in the destination currency. Repeated
// variants are merged.
func (s *CheckoutService) buildCart(ctx context.Context, items []CheckoutItem, countryCode string) (*cart.Cart, error) {
	logger := s.loggerFromContext(ctx)
	basket := cart.New()
	for i, item := range items {
		field := fmt.Sprintf("items[%d].variantId", i)
		product, variant, ok := s.catalog.Variant(item.VariantID)
		if !ok {
			return nil, invalidField(field, fmt.Sprintf("unknown variant %q", item.VariantID))
		}
		if !product.Active || !variant.Available {
			return nil, invalidField(field, fmt.Sprintf("variant %q is not available", item.VariantID))
		}

		price, err := s.resolver.VariantPrice(variant, countryCode)
		if err != nil {
			logger.Error("failed to price catalog variant", "error", err, "variant_id", variant.ID)
			return nil, fmt.Errorf("%w: %w", ErrOrderCreateFailed, err)
		}
		if item.UnitPrice != nil && !item.UnitPrice.Equal(price.Amount) {
			logger.Warn("client price differs from catalog price",
				"variant_id", variant.ID,
				"client_price", item.UnitPrice.String(),
				"client_currency", item.Currency,
				"catalog_price", price.Amount.StringFixed(2),
				"currency", price.Currency,
			)
		}

		err = basket.Add(cart.Item{
			VariantID:    variant.ID,
			ProductTitle: product.Title,
			VariantTitle: variant.Title,
			UnitPrice:    price.MinorUnits(),
			Currency:     price.Currency,
			Quantity:     item.Quantity,
			Options:      item.Options,
		})
		if err != nil {
			return nil, invalidField(fmt.Sprintf("items[%d]", i), err.Error())
		}
	}
	return basket, nil
}

func buildOrder(req CheckoutRequest, basket *cart.Cart, country catalog.Country, method catalog.ShippingMethod, shippingPrice int64) *models.Order {
	cartItems := basket.Items()
	items := make([]models.LineItem, 0, len(cartItems))
	for _, item := range cartItems {
		items = append(items, models.LineItem{
			ProductTitle: item.ProductTitle,
			VariantID:    item.VariantID,
			VariantTitle: item.VariantTitle,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Currency:     item.Currency,
			Options:      item.Options,
		})
	}

	countryName := req.Shipping.CountryName
	if countryName == "" || req.Shipping.Country != country.Code {
		countryName = country.Name
	}

	order := &models.Order{
		Items:             items,
		TotalAmount:       basket.Subtotal(),
		ShippingPrice:     shippingPrice,
		TotalWithShipping: basket.Subtotal() + shippingPrice,
		Currency:          basket.Currency(),
		PaymentMethod:     req.PaymentMethod,
		Status:            req.PaymentMethod.InitialStatus(),
		Customer: models.Customer{
			Name:             req.Customer.Name,
			Email:            req.Customer.Email,
			Phone:            req.Customer.Phone,
			PhoneCountryCode: req.Customer.PhoneCountryCode,
		},
		Destination: models.Destination{
			CountryCode: country.Code,
			CountryName: countryName,
			City:        req.Shipping.City,
			Address:     req.Shipping.Address,
			PostalCode:  req.Shipping.PostalCode,
		},
		ShippingMethod: method.ID,
		CarrierCode:    method.CarrierCode,
		CarrierName:    method.CarrierName,
	}

	switch method.DeliveryType {
	case models.DeliveryEasybox:
		order.Destination.EasyboxID = req.Shipping.EasyboxID
	case models.DeliveryOffice:
		office := req.Shipping.Office
		order.Office = models.CarrierOffice{
			ID:      office.ID,
			Name:    office.Name,
			Address: office.Address,
			City:    office.City,
			Country: office.Country,
		}
	}
	return order
}

// validateDestination applies the per delivery type field rules: lockers
// need a locker id, offices need an office id, and door delivery needs a
// full address.
func validateDestination(shipping CheckoutShipping, method catalog.ShippingMethod) error {
	switch method.DeliveryType {
	case models.DeliveryEasybox:
		if shipping.EasyboxID == "" {
			return invalidField("shipping.easyboxId", "is required for locker delivery")
		}
	case models.DeliveryOffice:
		if shipping.Office == nil || shipping.Office.ID == "" {
			return invalidField("shipping.office.id", "is required for office delivery")
		}
	default:
		if shipping.Address == "" {
			return invalidField("shipping.address", "is required")
		}
		if shipping.City == "" {
			return invalidField("shipping.city", "is required")
		}
		if shipping.PostalCode == "" {
			return invalidField("shipping.postalCode", "is required")
		}
	}
	return nil
}

func normalizeCheckoutRequest(req CheckoutRequest) CheckoutRequest {
	items := make([]CheckoutItem, len(req.Items))
	for i, item := range req.Items {
		item.VariantID = strings.TrimSpace(item.VariantID)
		item.Currency = strings.ToUpper(strings.TrimSpace(item.Currency))
		item.Options = normalizeOptions(item.Options)
		items[i] = item
	}
	req.Items = items

	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.Customer.PhoneCountryCode = strings.TrimSpace(req.Customer.PhoneCountryCode)

	req.Shipping.Country = catalog.NormalizeCountry(req.Shipping.Country)
	req.Shipping.CountryName = strings.TrimSpace(req.Shipping.CountryName)
	req.Shipping.City = strings.TrimSpace(req.Shipping.City)
	req.Shipping.Address = strings.TrimSpace(req.Shipping.Address)
	req.Shipping.PostalCode = strings.TrimSpace(req.Shipping.PostalCode)
	req.Shipping.Method = strings.TrimSpace(req.Shipping.Method)
	req.Shipping.EasyboxID = strings.TrimSpace(req.Shipping.EasyboxID)
	if req.Shipping.Office != nil {
		office := *req.Shipping.Office
		office.ID = strings.TrimSpace(office.ID)
		office.Name = strings.TrimSpace(office.Name)
		office.Address = strings.TrimSpace(office.Address)
		office.City = strings.TrimSpace(office.City)
		office.Country = strings.TrimSpace(office.Country)
		req.Shipping.Office = &office
	}

	req.PaymentMethod = models.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	return req
}

func newRequestValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

// fieldPath drops the root struct name from a validator namespace, so
// "CheckoutRequest.customer.email" becomes "customer.email".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s long", fe.Param())
	case "gte", "lte":
		return "must be between 1 and 99"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "len", "alpha":
		return "must be a two-letter country code"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func codRedirectURL(baseURL, orderID string) string {
	return fmt.Sprintf("%s/checkout/cod?order_id=%s", baseURL, orderID)
}

func normalizeOptions(options []string) []string {
	var labels []string
	for _, option := range options {
		if label := strings.TrimSpace(option); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

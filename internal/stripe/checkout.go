// Package stripe wraps the Stripe checkout and webhook APIs used for card payments.
package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"
)

type Client struct {
	api *stripeapi.Client
}

// NewClient builds a Stripe client. httpClient and backendURL are optional;
// backendURL points the client at a different API host.
func NewClient(secretKey string, httpClient *http.Client, backendURL string) *Client {
	var opts []stripeapi.ClientOption
	if httpClient != nil || backendURL != "" {
		cfg := &stripeapi.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripeapi.Int64(2),
		}
		if backendURL != "" {
			cfg.URL = stripeapi.String(backendURL)
			cfg.MaxNetworkRetries = stripeapi.Int64(0)
		}
		opts = append(opts, stripeapi.WithBackends(stripeapi.NewBackendsWithConfig(cfg)))
	}
	return &Client{api: stripeapi.NewClient(secretKey, opts...)}
}

// LineItem amounts are in minor units.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type CheckoutSessionParams struct {
	OrderID        uuid.UUID
	OrderNumber    int64
	Currency       string
	Items          []LineItem
	ShippingName   string
	ShippingAmount int64
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
}

type Session struct {
	ID  string
	URL string
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*Session, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if len(params.Items) == 0 {
		return nil, fmt.Errorf("at least one line item is required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		return nil, fmt.Errorf("currency is required")
	}

	lineItems := make([]*stripeapi.CheckoutSessionCreateLineItemParams, 0, len(params.Items))
	for _, item := range params.Items {
		if item.UnitAmount <= 0 || item.Quantity <= 0 {
			return nil, fmt.Errorf("line item %q needs a positive amount and quantity", item.Name)
		}
		lineItems = append(lineItems, &stripeapi.CheckoutSessionCreateLineItemParams{
			PriceData: &stripeapi.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripeapi.String(currency),
				ProductData: &stripeapi.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripeapi.String(item.Name),
				},
				UnitAmount: stripeapi.Int64(item.UnitAmount),
			},
			Quantity: stripeapi.Int64(item.Quantity),
		})
	}

	metadata := map[string]string{
		"order_id":     params.OrderID.String(),
		"order_number": fmt.Sprintf("%d", params.OrderNumber),
	}

	sessionParams := &stripeapi.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:         stripeapi.String(params.SuccessURL),
		CancelURL:          stripeapi.String(params.CancelURL),
		ClientReferenceID:  stripeapi.String(params.OrderID.String()),
		LineItems:          lineItems,
		ShippingOptions: []*stripeapi.CheckoutSessionCreateShippingOptionParams{
			{
				ShippingRateData: &stripeapi.CheckoutSessionCreateShippingOptionShippingRateDataParams{
					DisplayName: stripeapi.String(params.ShippingName),
					Type:        stripeapi.String(string(stripeapi.ShippingRateTypeFixedAmount)),
					FixedAmount: &stripeapi.CheckoutSessionCreateShippingOptionShippingRateDataFixedAmountParams{
						Amount:   stripeapi.Int64(params.ShippingAmount),
						Currency: stripeapi.String(currency),
					},
				},
			},
		},
		PaymentIntentData: &stripeapi.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripeapi.String(params.CustomerEmail)
	}

	sess, err := c.api.V1CheckoutSessions.Create(ctx, sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const SignatureHeader = "Stripe-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// ReadWebhookEvent reads and decodes the request body. When secret is empty
// the payload is accepted without signature verification.
func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return ParseWebhookEvent(payload, r.Header.Get(SignatureHeader), secret)
}

func ParseWebhookEvent(payload []byte, signature, secret string) (*stripeapi.Event, error) {
	if secret == "" {
		var event stripeapi.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to decode webhook event: %w", err)
		}
		if event.ID == "" || event.Type == "" {
			return nil, fmt.Errorf("webhook event is missing id or type")
		}
		return &event, nil
	}

	if signature == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return &event, nil
}

// CheckoutSession decodes the checkout session carried by a checkout.session.* event.
func CheckoutSession(event *stripeapi.Event) (*stripeapi.CheckoutSession, error) {
	if event == nil || event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("event has no data")
	}
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	return &session, nil
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/matchaleaf/storefront/internal/cache"
	stripewebhook "github.com/matchaleaf/storefront/internal/stripe"
)

// stripeWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const stripeWebhookIdempotencyTTL = 24 * time.Hour

type webhookResponse struct {
	Received bool `json:"received"`
}

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	if !h.config.WebhookVerificationEnabled() {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set; processing payment webhook without signature verification")
	}

	event, err := stripewebhook.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		if errors.Is(err, stripewebhook.ErrInvalidSignature) {
			logger.Warn("rejected Stripe webhook with invalid signature", "error", err)
			h.metrics.WebhookEvent("unknown", "invalid_signature")
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		logger.Warn("failed to read Stripe webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if event == nil || event.ID == "" {
		logger.Warn("missing Stripe event ID")
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}
	logger = logger.With("event_id", event.ID, "type", event.Type)

	// The claim is released again when processing fails so the provider's
	// retry is not swallowed.
	cacheKey := cache.WebhookKey("stripe", event.ID)
	claimed, err := h.cacheProvider.SetIfAbsent(ctx, cacheKey, "processing", stripeWebhookIdempotencyTTL)
	if err != nil {
		logger.Error("failed to claim webhook event; processing without deduplication", "error", err)
		claimed = true
	}
	if !claimed {
		logger.Info("webhook already processed")
		h.metrics.WebhookEvent(string(event.Type), "duplicate")
		h.writeJSON(ctx, w, http.StatusOK, webhookResponse{Received: true})
		return
	}

	if err := h.stripeRouter.Handle(ctx, event); err != nil {
		if delErr := h.cacheProvider.Delete(ctx, cacheKey); delErr != nil {
			logger.Error("failed to release webhook claim", "error", delErr)
		}
		logger.Error("failed to process Stripe webhook", "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, webhookResponse{Received: true})
}

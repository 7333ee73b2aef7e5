package handlers

import (
	"errors"
	"net/http"

	"github.com/matchaleaf/storefront/internal/services"
)

// Checkout accepts the storefront's checkout form. Card orders get a hosted
// payment page URL back; cash-on-delivery orders get the order status page.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req services.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid checkout payload", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.checkout.Submit(ctx, req)
	if err != nil {
		var validationErr *services.ValidationError
		switch {
		case errors.As(err, &validationErr):
			logger.Info("checkout rejected", "field", validationErr.Field, "reason", validationErr.Reason)
			writeErrorBody(w, http.StatusBadRequest, errorResponse{
				Error: validationErr.Error(),
				Field: validationErr.Field,
			})
		case errors.Is(err, services.ErrPaymentUnavailable):
			writeError(w, http.StatusServiceUnavailable, "card payments are currently unavailable")
		case errors.Is(err, services.ErrPaymentSessionFailed):
			logger.Error("checkout payment session failed", "error", err)
			writeError(w, http.StatusBadGateway, "could not start payment, please try again")
		default:
			logger.Error("checkout failed", "error", err)
			writeError(w, http.StatusInternalServerError, "could not place order, please try again")
		}
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, result)
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/matchaleaf/storefront/internal/services"
)

type fulfillmentRequest struct {
	OrderID string `json:"orderId"`
}

type lockersResponse struct {
	Country string                 `json:"country"`
	Groups  []services.LockerGroup `json:"groups"`
}

// TriggerFulfillment hands one order to the carrier on operator request.
func (h *Handlers) TriggerFulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req fulfillmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orderID, ok := parseOrderID(strings.TrimSpace(req.OrderID))
	if !ok {
		writeErrorBody(w, http.StatusBadRequest, errorResponse{Error: "orderId must be a valid UUID", Field: "orderId"})
		return
	}

	result, err := h.fulfillment.Dispatch(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
			return
		case errors.Is(err, services.ErrOrderNotConfirmed):
			writeError(w, http.StatusConflict, "order is not confirmed for fulfillment")
			return
		case errors.Is(err, services.ErrFulfillmentBusy):
			writeError(w, http.StatusConflict, "order is already being handed to the carrier")
			return
		case errors.Is(err, services.ErrCarrierNotConfigured):
			h.writeJSON(ctx, w, http.StatusServiceUnavailable, result)
			return
		case result != nil:
			logger.Warn("fulfillment attempt failed", "order_id", orderID, "error", err)
			h.writeJSON(ctx, w, http.StatusBadGateway, result)
			return
		default:
			logger.Error("fulfillment failed", "order_id", orderID, "error", err)
			writeError(w, http.StatusInternalServerError, "fulfillment failed")
			return
		}
	}

	h.writeJSON(ctx, w, http.StatusOK, result)
}

// FulfillmentQuery serves the read-only fulfillment actions. Diagnostics are
// operator only; the locker list is public so the checkout can offer it.
func (h *Handlers) FulfillmentQuery(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "test":
		h.RequireAdmin(http.HandlerFunc(h.fulfillmentDiagnostics)).ServeHTTP(w, r)
	case "sameday-boxes":
		h.fulfillmentLockers(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *Handlers) fulfillmentDiagnostics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.writeJSON(ctx, w, http.StatusOK, h.fulfillment.Diagnostics(ctx))
}

func (h *Handlers) fulfillmentLockers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	country := h.resolver.Country(r.URL.Query().Get("country"))

	groups, err := h.fulfillment.Lockers(ctx, country.Code)
	if err != nil {
		if errors.Is(err, services.ErrCarrierNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "locker lookup is not available")
			return
		}
		logger.Error("failed to list lockers", "country", country.Code, "error", err)
		writeError(w, http.StatusBadGateway, "failed to load lockers")
		return
	}
	if groups == nil {
		groups = []services.LockerGroup{}
	}
	h.writeJSON(ctx, w, http.StatusOK, lockersResponse{Country: country.Code, Groups: groups})
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/matchaleaf/storefront/internal/services"
)

// OrderStatus returns the fulfillment state of an order. With wait=true the
// request is held until the carrier answers or polling gives up; the client
// disconnecting stops the poll.
func (h *Handlers) OrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var (
		status *services.OrderStatus
		err    error
	)
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		status, err = h.statusPoller.Poll(ctx, orderID, services.PollOptions{})
	} else {
		status, err = h.statusPoller.Current(ctx, orderID)
	}
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			logger.Debug("order status request ended before polling finished", "order_id", orderID)
			if status != nil {
				h.writeJSON(ctx, w, http.StatusOK, status)
			}
		default:
			logger.Error("failed to read order status", "order_id", orderID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read order status")
		}
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, status)
}

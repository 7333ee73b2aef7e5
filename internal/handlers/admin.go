package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/matchaleaf/storefront/internal/models"
	"github.com/matchaleaf/storefront/internal/services"
)

const (
	defaultAdminListLimit = 50
	maxAdminListLimit     = 200
)

type adminOrder struct {
	ID                uuid.UUID            `json:"id"`
	OrderNumber       int64                `json:"orderNumber"`
	Status            models.OrderStatus   `json:"status"`
	PaymentMethod     models.PaymentMethod `json:"paymentMethod"`
	CustomerName      string               `json:"customerName"`
	CustomerEmail     string               `json:"customerEmail"`
	Country           string               `json:"country"`
	ShippingMethod    string               `json:"shippingMethod"`
	Currency          string               `json:"currency"`
	TotalWithShipping int64                `json:"totalWithShipping"`
	TrackingNumber    string               `json:"trackingNumber,omitempty"`
	SentToFulfillment bool                 `json:"sentToFulfillment"`
	FulfillmentError  string               `json:"fulfillmentError,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
}

type adminOrdersResponse struct {
	Orders []adminOrder `json:"orders"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func toAdminOrder(order *models.Order) adminOrder {
	return adminOrder{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		Status:            order.Status,
		PaymentMethod:     order.PaymentMethod,
		CustomerName:      order.Customer.Name,
		CustomerEmail:     order.Customer.Email,
		Country:           order.Destination.CountryCode,
		ShippingMethod:    order.ShippingMethod,
		Currency:          order.Currency,
		TotalWithShipping: order.TotalWithShipping,
		TrackingNumber:    order.TrackingNumber,
		SentToFulfillment: order.SentToFulfillment,
		FulfillmentError:  order.FulfillmentError,
		CreatedAt:         order.CreatedAt,
	}
}

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	limit := defaultAdminListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeErrorBody(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		limit = min(parsed, maxAdminListLimit)
	}

	orders, err := h.operator.ListOrders(ctx, limit)
	if err != nil {
		logger.Error("failed to list orders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	resp := adminOrdersResponse{Orders: make([]adminOrder, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toAdminOrder(order))
	}
	h.writeJSON(ctx, w, http.StatusOK, resp)
}

func (h *Handlers) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := models.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))

	order, err := h.operator.UpdateStatus(ctx, orderID, status)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			writeErrorBody(w, http.StatusBadRequest, errorResponse{Error: "status must be shipped, delivered or cancelled", Field: "status"})
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrStatusConflict):
			writeError(w, http.StatusConflict, "order status does not allow this change")
		default:
			logger.Error("failed to update order status", "order_id", orderID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update order status")
		}
		return
	}

	if claims, ok := AdminFromContext(ctx); ok {
		logger.Info("operator changed order status", "order_id", orderID, "status", order.Status, "operator", claims.Subject)
	}
	h.writeJSON(ctx, w, http.StatusOK, toAdminOrder(order))
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/matchaleaf/storefront/internal/cache"
	"github.com/matchaleaf/storefront/internal/catalog"
	"github.com/matchaleaf/storefront/internal/config"
	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/models"
	"github.com/matchaleaf/storefront/internal/observability"
	"github.com/matchaleaf/storefront/internal/services"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	maxJSONBodyBytes    = 64 << 10
)

// Pinger reports database health; *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type checkoutSubmitter interface {
	Submit(ctx context.Context, req services.CheckoutRequest) (*services.CheckoutResult, error)
}

type fulfillmentDispatcher interface {
	Dispatch(ctx context.Context, orderID uuid.UUID) (*services.FulfillmentResult, error)
	Diagnostics(ctx context.Context) *services.CarrierDiagnostics
	Lockers(ctx context.Context, countryCode string) ([]services.LockerGroup, error)
}

type orderStatusReader interface {
	Current(ctx context.Context, orderID uuid.UUID) (*services.OrderStatus, error)
	Poll(ctx context.Context, orderID uuid.UUID, opts services.PollOptions) (*services.OrderStatus, error)
}

type orderOperator interface {
	ListOrders(ctx context.Context, limit int) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) (*models.Order, error)
}

// Handlers provides the storefront HTTP API.
type Handlers struct {
	config        *config.Config
	db            Pinger
	cacheProvider cache.Provider
	catalog       *catalog.Catalog
	resolver      *catalog.Resolver
	checkout      checkoutSubmitter
	fulfillment   fulfillmentDispatcher
	statusPoller  orderStatusReader
	operator      orderOperator
	stripeRouter  *StripeEventRouter
	metrics       *observability.Metrics
	logger        *slog.Logger
}

type Dependencies struct {
	Config        *config.Config
	DB            Pinger
	CacheProvider cache.Provider
	Catalog       *catalog.Catalog
	Resolver      *catalog.Resolver
	Checkout      checkoutSubmitter
	Fulfillment   fulfillmentDispatcher
	StatusPoller  orderStatusReader
	Operator      orderOperator
	StripeRouter  *StripeEventRouter
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("handlers dependencies: catalog is required")
	}
	if deps.Checkout == nil {
		return nil, fmt.Errorf("handlers dependencies: checkout is required")
	}
	if deps.Fulfillment == nil {
		return nil, fmt.Errorf("handlers dependencies: fulfillment is required")
	}
	if deps.StatusPoller == nil {
		return nil, fmt.Errorf("handlers dependencies: statusPoller is required")
	}
	if deps.Operator == nil {
		return nil, fmt.Errorf("handlers dependencies: operator is required")
	}
	if deps.StripeRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required")
	}

	resolver := deps.Resolver
	if resolver == nil {
		resolver = catalog.NewResolver()
	}

	return &Handlers{
		config:        deps.Config,
		db:            deps.DB,
		cacheProvider: deps.CacheProvider,
		catalog:       deps.Catalog,
		resolver:      resolver,
		checkout:      deps.Checkout,
		fulfillment:   deps.Fulfillment,
		statusPoller:  deps.StatusPoller,
		operator:      deps.Operator,
		stripeRouter:  deps.StripeRouter,
		metrics:       deps.Metrics,
		logger:        logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unhealthy")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Metrics serves the Prometheus registry.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.Handler().ServeHTTP(w, r)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(ctx).Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorBody(w, status, errorResponse{Error: message})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a single JSON object. Unknown fields are ignored so the
// storefront can send its cart snapshot as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body too large")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("invalid JSON body: unexpected trailing data")
	}
	return nil
}

func parseOrderID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

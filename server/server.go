package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/matchaleaf/storefront/internal/config"
	"github.com/matchaleaf/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Long-polled status requests hold the response for up to
		// interval * attempts.
		WriteTimeout:   writeTimeout(cfg),
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s, nil
}

func writeTimeout(cfg *config.Config) time.Duration {
	poll := cfg.StatusPollInterval * time.Duration(cfg.StatusPollMaxAttempts)
	return max(15*time.Second, poll+10*time.Second)
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.Use(h.CORS)

	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/metrics", h.Metrics).Methods("GET").Name("metrics")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/shipping-methods", h.ShippingMethods).Methods("GET", "OPTIONS").Name("api.shipping_methods")
	api.HandleFunc("/prices", h.Prices).Methods("GET", "OPTIONS").Name("api.prices")
	api.HandleFunc("/orders/{id}/status", h.OrderStatus).Methods("GET", "OPTIONS").Name("api.orders.status")
	api.HandleFunc("/fulfillment", h.FulfillmentQuery).Methods("GET", "OPTIONS").Name("api.fulfillment.query")
	api.Handle("/fulfillment", h.RequireAdmin(http.HandlerFunc(h.TriggerFulfillment))).Methods("POST").Name("api.fulfillment.trigger")
	api.Handle("/checkout", h.RequireSameOrigin(http.HandlerFunc(h.Checkout))).Methods("POST", "OPTIONS").Name("api.checkout")

	// Operator API; bearer tokens are not sent automatically by browsers so
	// no origin check is applied.
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/orders", h.AdminListOrders).Methods("GET").Name("admin.orders")
	admin.HandleFunc("/orders/{id}/status", h.AdminUpdateOrderStatus).Methods("POST").Name("admin.orders.status")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
	})

	return r
}

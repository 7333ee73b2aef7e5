// Package carrier talks to the courier aggregator that turns confirmed
// orders into shipments.
package carrier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const (
	ModeMock = "mock"
	ModeLive = "live"
)

var ErrNotConfigured = errors.New("carrier credentials are not configured")

type Credentials struct {
	AppID     string
	AppSecret string
}

func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.AppID) != "" && strings.TrimSpace(c.AppSecret) != ""
}

// Item prices are decimal strings in the shipment currency.
type Item struct {
	Name     string `json:"name"`
	Variant  string `json:"variant,omitempty"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type Recipient struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	City        string `json:"city,omitempty"`
	Address     string `json:"address,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	EasyboxID   string `json:"easybox_id,omitempty"`
	OfficeID    string `json:"office_id,omitempty"`
}

type ShipmentRequest struct {
	OrderID        string    `json:"order_id"`
	OrderNumber    int64     `json:"order_number"`
	CarrierCode    string    `json:"carrier"`
	DeliveryType   string    `json:"delivery_type"`
	ShippingMethod string    `json:"shipping_method"`
	Recipient      Recipient `json:"recipient"`
	Items          []Item    `json:"items"`
	Total          string    `json:"total"`
	Currency       string    `json:"currency"`
	// CODAmount is collected on delivery; empty for prepaid orders.
	CODAmount string `json:"cod_amount,omitempty"`
}

type Shipment struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier,omitempty"`
}

type Locker struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
}

type Client interface {
	CreateShipment(ctx context.Context, creds Credentials, req ShipmentRequest) (*Shipment, error)
	ListLockers(ctx context.Context, creds Credentials, countryCode string) ([]Locker, error)
}

// RequestError is a non-2xx carrier response.
type RequestError struct {
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("carrier returned status %d", e.StatusCode)
}

// IsRetryable reports whether a dispatch error is worth retrying: transport
// failures, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode == http.StatusTooManyRequests || reqErr.StatusCode >= 500
	}
	var decodeErr *DecodeError
	return !errors.As(err, &decodeErr)
}

// DecodeError means the carrier answered 2xx with a body that could not be used.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid carrier response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type Config struct {
	Mode    string
	BaseURL string
}

func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (Client, error) {
	switch cfg.Mode {
	case ModeMock, "":
		return NewMockClient(), nil
	case ModeLive:
		return NewHTTPClient(cfg.BaseURL, httpClient, logger)
	default:
		return nil, fmt.Errorf("unsupported carrier mode: %s", cfg.Mode)
	}
}

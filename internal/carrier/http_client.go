package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// HTTPClient sends signed requests to the live carrier API.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewHTTPClient(baseURL string, httpClient *http.Client, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse carrier url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("carrier url must be absolute")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPClient{
		baseURL:    parsed,
		httpClient: httpClient,
		logger:     logger.With("component", "carrier"),
		now:        time.Now,
	}, nil
}

func (c *HTTPClient) CreateShipment(ctx context.Context, creds Credentials, req ShipmentRequest) (*Shipment, error) {
	if !creds.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shipment: %w", err)
	}

	var shipment Shipment
	if err := c.do(ctx, http.MethodPost, "shipments", nil, creds, payload, &shipment); err != nil {
		return nil, err
	}
	if strings.TrimSpace(shipment.TrackingNumber) == "" {
		return nil, &DecodeError{Err: fmt.Errorf("response has no tracking number")}
	}
	return &shipment, nil
}

func (c *HTTPClient) ListLockers(ctx context.Context, creds Credentials, countryCode string) ([]Locker, error) {
	if !creds.Configured() {
		return nil, ErrNotConfigured
	}

	query := url.Values{}
	query.Set("country", strings.ToUpper(countryCode))

	var result struct {
		Lockers []Locker `json:"lockers"`
	}
	if err := c.do(ctx, http.MethodGet, "lockers", query, creds, nil, &result); err != nil {
		return nil, err
	}
	return result.Lockers, nil
}

func (c *HTTPClient) do(ctx context.Context, method, resource string, query url.Values, creds Credentials, payload []byte, out any) error {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, resource)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build carrier request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	setSignedHeaders(req.Header, creds, c.now().Unix(), payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read carrier response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("carrier request rejected",
			"method", method,
			"resource", resource,
			"status", resp.StatusCode,
			"body", truncate(string(raw), 512),
		)
		return &RequestError{StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

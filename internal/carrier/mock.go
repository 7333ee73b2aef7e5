package carrier

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// MockClient answers like the carrier without network calls.
type MockClient struct {
	mu        sync.Mutex
	shipments []ShipmentRequest
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) CreateShipment(ctx context.Context, creds Credentials, req ShipmentRequest) (*Shipment, error) {
	if !creds.Configured() {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.shipments = append(m.shipments, req)
	m.mu.Unlock()

	return &Shipment{TrackingNumber: MockTrackingNumber(req.CarrierCode), Carrier: req.CarrierCode}, nil
}

func (m *MockClient) ListLockers(ctx context.Context, creds Credentials, countryCode string) ([]Locker, error) {
	if !creds.Configured() {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lockers := mockLockers[strings.ToUpper(countryCode)]
	result := make([]Locker, len(lockers))
	copy(result, lockers)
	return result, nil
}

// Shipments returns the requests received so far.
func (m *MockClient) Shipments() []ShipmentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ShipmentRequest(nil), m.shipments...)
}

// MockTrackingNumber looks like "MOCK-SAMEDAY-4821093375".
func MockTrackingNumber(carrierCode string) string {
	code := strings.ToUpper(strings.TrimSpace(carrierCode))
	if code == "" {
		code = "CARRIER"
	}
	return fmt.Sprintf("MOCK-%s-%010d", code, rand.Int64N(10_000_000_000))
}

var mockLockers = map[string][]Locker{
	"BG": {
		{ID: "easybox-sof-001", Name: "easybox Mall Serdika", Address: "bul. Sitnyakovo 48", City: "Sofia", PostalCode: "1505"},
		{ID: "easybox-sof-014", Name: "easybox Lozenets", Address: "ul. Krichim 12", City: "Sofia", PostalCode: "1407"},
		{ID: "easybox-pdv-003", Name: "easybox Plovdiv Center", Address: "bul. Ruski 15", City: "Plovdiv", PostalCode: "4000"},
		{ID: "easybox-var-002", Name: "easybox Grand Mall Varna", Address: "ul. Andrey Saharov 2", City: "Varna", PostalCode: "9000"},
	},
	"RO": {
		{ID: "easybox-buc-101", Name: "easybox Piata Victoriei", Address: "Calea Victoriei 155", City: "Bucharest", PostalCode: "010073"},
		{ID: "easybox-clj-020", Name: "easybox Iulius Mall", Address: "Strada Alexandru Vaida Voevod 53B", City: "Cluj-Napoca", PostalCode: "400436"},
	},
}

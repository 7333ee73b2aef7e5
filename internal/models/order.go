package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusCODPending OrderStatus = "cod_pending"
	StatusPaid       OrderStatus = "paid"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCODPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// Confirmed reports whether the order may be handed to a carrier.
func (s OrderStatus) Confirmed() bool {
	return s == StatusPaid || s == StatusCODPending
}

// Predecessors lists the statuses an order may move out of to reach to.
// Redelivering the current status is handled by the store as a no-op and is
// not listed here.
func Predecessors(to OrderStatus) []OrderStatus {
	switch to {
	case StatusPaid:
		return []OrderStatus{StatusPending}
	case StatusShipped:
		return []OrderStatus{StatusPaid, StatusCODPending}
	case StatusDelivered:
		return []OrderStatus{StatusShipped}
	case StatusCancelled:
		return []OrderStatus{StatusPending, StatusCODPending, StatusPaid}
	default:
		return nil
	}
}

func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range Predecessors(to) {
		if allowed == from {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCOD  PaymentMethod = "cod"
)

// InitialStatus is the status an order is created with for this payment method.
func (m PaymentMethod) InitialStatus() OrderStatus {
	if m == PaymentCOD {
		return StatusCODPending
	}
	return StatusPending
}

type DeliveryType string

const (
	DeliveryOffice  DeliveryType = "office"
	DeliveryAddress DeliveryType = "address"
	DeliveryEasybox DeliveryType = "easybox"
)

// LineItem amounts are in minor currency units.
type LineItem struct {
	ProductTitle string   `json:"product_title"`
	VariantID    string   `json:"variant_id"`
	VariantTitle string   `json:"variant_title"`
	Quantity     int      `json:"quantity"`
	UnitPrice    int64    `json:"unit_price"`
	Currency     string   `json:"currency"`
	Options      []string `json:"options,omitempty"`
}

func (li LineItem) Total() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

type Customer struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	PhoneCountryCode string `json:"phone_country_code"`
}

type Destination struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Address     string `json:"address"`
	PostalCode  string `json:"postal_code"`
	EasyboxID   string `json:"easybox_id"`
}

// CarrierOffice is only populated for office delivery methods.
type CarrierOffice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
}

func (o CarrierOffice) IsZero() bool {
	return o == CarrierOffice{}
}

type Order struct {
	ID                  uuid.UUID     `json:"id"`
	OrderNumber         int64         `json:"order_number"`
	Items               []LineItem    `json:"items"`
	TotalAmount         int64         `json:"total_amount"`
	ShippingPrice       int64         `json:"shipping_price"`
	TotalWithShipping   int64         `json:"total_with_shipping"`
	Currency            string        `json:"currency"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	Status              OrderStatus   `json:"status"`
	Customer            Customer      `json:"customer"`
	Destination         Destination   `json:"destination"`
	ShippingMethod      string        `json:"shipping_method"`
	CarrierCode         string        `json:"carrier_code"`
	CarrierName         string        `json:"carrier_name"`
	Office              CarrierOffice `json:"office"`
	StripeSessionID     string        `json:"stripe_session_id"`
	TrackingNumber      string        `json:"tracking_number"`
	SentToFulfillment   bool          `json:"sent_to_fulfillment"`
	FulfillmentError    string        `json:"fulfillment_error"`
	FulfillmentAttempts int           `json:"fulfillment_attempts"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	PaidAt              time.Time     `json:"paid_at"`
	ShippedAt           time.Time     `json:"shipped_at"`
	DeliveredAt         time.Time     `json:"delivered_at"`
	CancelledAt         time.Time     `json:"cancelled_at"`
}

// ItemsTotal sums the line items in minor units.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Total()
	}
	return total
}

// TotalsConsistent checks total_with_shipping == total_amount + shipping_price
// and that the stored total matches the line items.
func (o *Order) TotalsConsistent() bool {
	if o == nil {
		return false
	}
	return o.TotalWithShipping == o.TotalAmount+o.ShippingPrice && o.TotalAmount == o.ItemsTotal()
}

func (o *Order) IsFulfilled() bool {
	return o != nil && o.TrackingNumber != ""
}

package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/matchaleaf/storefront/internal/catalog"
	"github.com/matchaleaf/storefront/internal/email"
	"github.com/matchaleaf/storefront/internal/models"
)

// ShopDetails is the storefront identity printed in order emails.
type ShopDetails struct {
	Name    string
	BaseURL string
}

// OrderInfoOverrides provides optional overrides when building order email data.
type OrderInfoOverrides struct {
	TrackingNumber string
	TrackingURL    string
	Carrier        string
	OrderDate      time.Time
}

// BuildOrderInfo builds a consistent OrderInfo payload for email templates.
func BuildOrderInfo(shop ShopDetails, order *models.Order, overrides OrderInfoOverrides) *email.OrderInfo {
	if order == nil {
		order = &models.Order{}
	}

	orderDate := overrides.OrderDate
	if orderDate.IsZero() {
		orderDate = order.CreatedAt
	}
	if orderDate.IsZero() {
		orderDate = time.Now()
	}

	trackingNumber := strings.TrimSpace(overrides.TrackingNumber)
	if trackingNumber == "" {
		trackingNumber = order.TrackingNumber
	}
	carrierName := strings.TrimSpace(overrides.Carrier)
	if carrierName == "" {
		carrierName = order.CarrierName
	}
	if carrierName == "" {
		carrierName = CarrierDisplayName(order.CarrierCode)
	}
	trackingURL := strings.TrimSpace(overrides.TrackingURL)
	if trackingURL == "" {
		trackingURL = BuildTrackingURL(order.CarrierCode, trackingNumber)
	}

	items := make([]email.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		name := item.ProductTitle
		details := item.Options
		if item.VariantTitle != "" {
			details = append([]string{item.VariantTitle}, item.Options...)
		}
		if len(details) > 0 {
			name = fmt.Sprintf("%s (%s)", item.ProductTitle, strings.Join(details, ", "))
		}
		items = append(items, email.OrderItem{
			Name:       name,
			Quantity:   item.Quantity,
			UnitPrice:  formatAmount(item.UnitPrice, order.Currency),
			TotalPrice: formatAmount(item.Total(), order.Currency),
		})
	}

	baseURL := strings.TrimRight(shop.BaseURL, "/")
	cod := order.PaymentMethod == models.PaymentCOD

	return &email.OrderInfo{
		OrderID:        order.ID.String(),
		OrderNumber:    fmt.Sprintf("#%d", order.OrderNumber),
		OrderDate:      orderDate.Format("January 2, 2006"),
		CustomerName:   strings.TrimSpace(order.Customer.Name),
		CustomerEmail:  strings.TrimSpace(order.Customer.Email),
		CustomerPhone:  formatPhone(order.Customer),
		ShopName:       shop.Name,
		ShopURL:        baseURL,
		StatusURL:      orderStatusURL(baseURL, order),
		PaymentMethod:  paymentMethodLabel(order.PaymentMethod),
		CashOnDelivery: cod,
		Items:          items,
		Subtotal:       formatAmount(order.TotalAmount, order.Currency),
		Shipping:       formatAmount(order.ShippingPrice, order.Currency),
		Total:          formatAmount(order.TotalWithShipping, order.Currency),
		ShippingMethod: order.ShippingMethod,
		Destination:    destinationLines(order),
		TrackingNumber: trackingNumber,
		TrackingURL:    trackingURL,
		Carrier:        carrierName,
	}
}

func formatAmount(minor int64, currency string) string {
	amount := catalog.FormatMinor(minor)
	if currency == "" {
		return amount
	}
	return amount + " " + currency
}

func formatPhone(customer models.Customer) string {
	phone := strings.TrimSpace(customer.Phone)
	code := strings.TrimSpace(customer.PhoneCountryCode)
	if code == "" || phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return code + " " + phone
}

func paymentMethodLabel(method models.PaymentMethod) string {
	switch method {
	case models.PaymentCOD:
		return "Cash on delivery"
	case models.PaymentCard:
		return "Card"
	default:
		return string(method)
	}
}

func orderStatusURL(baseURL string, order *models.Order) string {
	if baseURL == "" {
		return ""
	}
	if order.PaymentMethod == models.PaymentCOD {
		return codRedirectURL(baseURL, order.ID.String())
	}
	return fmt.Sprintf("%s/checkout/success?order_id=%s", baseURL, order.ID)
}

func destinationLines(order *models.Order) []string {
	dest := order.Destination
	country := dest.CountryName
	if country == "" {
		country = dest.CountryCode
	}
	cityLine := strings.TrimSpace(strings.Join(nonEmpty(dest.PostalCode, dest.City), " "))

	var lines []string
	switch {
	case !order.Office.IsZero():
		lines = nonEmpty(order.Office.Name, order.Office.Address, strings.TrimSpace(order.Office.City))
		if order.Office.City == "" {
			lines = append(lines, nonEmpty(cityLine)...)
		}
	case dest.EasyboxID != "":
		lines = nonEmpty("easybox "+dest.EasyboxID, dest.Address, cityLine)
	default:
		lines = nonEmpty(dest.Address, cityLine)
	}
	return append(lines, nonEmpty(country)...)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

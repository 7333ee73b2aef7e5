package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matchaleaf/storefront/internal/email"
	"github.com/matchaleaf/storefront/internal/models"
)

type capturingProvider struct {
	mu   sync.Mutex
	sent []*email.Email
}

func (p *capturingProvider) SendEmail(_ context.Context, msg *email.Email) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *capturingProvider) messages() []*email.Email {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*email.Email(nil), p.sent...)
}

var testShop = ShopDetails{Name: "Matcha Leaf", BaseURL: "https://shop.example/"}

func TestBuildOrderInfo(t *testing.T) {
	t.Parallel()

	order := confirmedOrder()
	order.ID = uuid.MustParse("7a0c0e5e-2f1d-4c1e-9f0a-3b6e1d2c4a55")
	order.OrderNumber = 1042

	info := BuildOrderInfo(testShop, order, OrderInfoOverrides{})

	if info.OrderNumber != "#1042" || info.OrderDate != "March 1, 2026" {
		t.Fatalf("unexpected header: %s %s", info.OrderNumber, info.OrderDate)
	}
	if info.Subtotal != "56.00 BGN" || info.Shipping != "5.50 BGN" || info.Total != "61.50 BGN" {
		t.Fatalf("unexpected totals: %s %s %s", info.Subtotal, info.Shipping, info.Total)
	}
	if len(info.Items) != 1 || info.Items[0].Name != "Ceremonial Grade Matcha (30 g tin)" || info.Items[0].TotalPrice != "56.00 BGN" {
		t.Fatalf("unexpected items: %+v", info.Items)
	}
	if info.CustomerPhone != "+359 888123456" || info.PaymentMethod != "Cash on delivery" || !info.CashOnDelivery {
		t.Fatalf("unexpected customer details: %+v", info)
	}
	if info.StatusURL != "https://shop.example/checkout/cod?order_id="+order.ID.String() {
		t.Fatalf("status URL = %q", info.StatusURL)
	}
	wantDest := "Econt Sofia Center|ul. Graf Ignatiev 10|Sofia|Bulgaria"
	if got := strings.Join(info.Destination, "|"); got != wantDest {
		t.Fatalf("destination = %q, want %q", got, wantDest)
	}
	if info.TrackingNumber != "" || info.TrackingURL != "" {
		t.Fatalf("unshipped order has no tracking: %+v", info)
	}
}

func TestBuildOrderInfo_ItemOptions(t *testing.T) {
	t.Parallel()

	order := confirmedOrder()
	order.Items[0].Options = []string{"Gift wrap", "Bamboo scoop"}

	info := BuildOrderInfo(testShop, order, OrderInfoOverrides{})
	if got := info.Items[0].Name; got != "Ceremonial Grade Matcha (30 g tin, Gift wrap, Bamboo scoop)" {
		t.Fatalf("item name = %q", got)
	}
}

func TestBuildOrderInfo_Overrides(t *testing.T) {
	t.Parallel()

	order := confirmedOrder()
	order.PaymentMethod = models.PaymentCard
	order.Office = models.CarrierOffice{}
	order.Destination.Address = "ul. Vitosha 1"
	order.TrackingNumber = "1050000001"

	info := BuildOrderInfo(testShop, order, OrderInfoOverrides{OrderDate: time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC)})
	if info.OrderDate != "April 9, 2026" {
		t.Fatalf("order date = %q", info.OrderDate)
	}
	if info.TrackingURL != "https://www.econt.com/services/track-shipment/1050000001" || info.Carrier != "Econt" {
		t.Fatalf("unexpected tracking: %s %s", info.TrackingURL, info.Carrier)
	}
	if !strings.Contains(info.StatusURL, "/checkout/success?order_id=") {
		t.Fatalf("status URL = %q", info.StatusURL)
	}
	if got := strings.Join(info.Destination, "|"); got != "ul. Vitosha 1|1000 Sofia|Bulgaria" {
		t.Fatalf("destination = %q", got)
	}
}

func TestTemplateEmailSender(t *testing.T) {
	t.Parallel()

	provider := &capturingProvider{}
	sender, err := NewOrderEmailSender(provider, nil, testShop, "orders@shop.example")
	if err != nil {
		t.Fatalf("NewOrderEmailSender returned error: %v", err)
	}

	order := confirmedOrder()
	order.ID = uuid.New()
	order.OrderNumber = 1042
	ctx := context.Background()

	if err := sender.SendOrderPlaced(ctx, order); err != nil {
		t.Fatalf("SendOrderPlaced returned error: %v", err)
	}
	if err := sender.SendOperatorNewOrder(ctx, order); err != nil {
		t.Fatalf("SendOperatorNewOrder returned error: %v", err)
	}

	order.Customer.Email = " "
	if err := sender.SendOrderShipped(ctx, order); err != nil {
		t.Fatalf("SendOrderShipped returned error: %v", err)
	}

	messages := provider.messages()
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0].To != "ivana@example.com" || !strings.Contains(messages[0].Subject, "#1042") {
		t.Fatalf("unexpected customer email: %s %q", messages[0].To, messages[0].Subject)
	}
	if !strings.Contains(messages[0].Text, "61.50 BGN") || messages[0].HTML == "" {
		t.Fatalf("customer email is missing the total")
	}
	if messages[1].To != "orders@shop.example" {
		t.Fatalf("operator email sent to %q", messages[1].To)
	}
}

func TestNewOrderEmailSender_WithoutProvider(t *testing.T) {
	t.Parallel()

	sender, err := NewOrderEmailSender(nil, nil, testShop, "orders@shop.example")
	if err != nil {
		t.Fatalf("NewOrderEmailSender returned error: %v", err)
	}
	if _, ok := sender.(noopOrderEmailSender); !ok {
		t.Fatalf("expected no-op sender, got %T", sender)
	}
	if err := sender.SendOrderPlaced(context.Background(), confirmedOrder()); err != nil {
		t.Fatalf("no-op sender returned error: %v", err)
	}
}

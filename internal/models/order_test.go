package models

import "testing"

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{from: StatusPending, to: StatusPaid, want: true},
		{from: StatusCODPending, to: StatusPaid, want: false},
		{from: StatusPaid, to: StatusShipped, want: true},
		{from: StatusCODPending, to: StatusShipped, want: true},
		{from: StatusPending, to: StatusShipped, want: false},
		{from: StatusShipped, to: StatusDelivered, want: true},
		{from: StatusDelivered, to: StatusShipped, want: false},
		{from: StatusPaid, to: StatusCancelled, want: true},
		{from: StatusShipped, to: StatusCancelled, want: false},
		{from: StatusCancelled, to: StatusPending, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestPaymentMethodInitialStatus(t *testing.T) {
	t.Parallel()

	if got := PaymentCard.InitialStatus(); got != StatusPending {
		t.Fatalf("card initial status = %s, want %s", got, StatusPending)
	}
	if got := PaymentCOD.InitialStatus(); got != StatusCODPending {
		t.Fatalf("cod initial status = %s, want %s", got, StatusCODPending)
	}
}

func TestOrderTotalsConsistent(t *testing.T) {
	t.Parallel()

	order := &Order{
		Items: []LineItem{
			{VariantID: "a", Quantity: 2, UnitPrice: 2800},
			{VariantID: "b", Quantity: 1, UnitPrice: 1450},
		},
		TotalAmount:       7050,
		ShippingPrice:     550,
		TotalWithShipping: 7600,
	}
	if !order.TotalsConsistent() {
		t.Fatalf("expected totals to be consistent")
	}

	order.TotalWithShipping = 7599
	if order.TotalsConsistent() {
		t.Fatalf("expected inconsistent totals to be detected")
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matchaleaf/storefront/internal/models"
)

func TestStatusPoller_Current(t *testing.T) {
	t.Parallel()

	store := newMemoryOrderStore()
	poller := NewStatusPoller(store, PollOptions{}, discardLogger())
	order := confirmedOrder()
	order.TrackingNumber = "1051234567"
	order.SentToFulfillment = true
	order.Status = models.StatusShipped
	store.put(order)

	status, err := poller.Current(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	if !status.Done || status.TrackingNumber != "1051234567" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.TrackingURL != "https://www.econt.com/services/track-shipment/1051234567" {
		t.Fatalf("tracking URL = %q", status.TrackingURL)
	}
	if status.OrderNumber != order.OrderNumber || status.PaymentMethod != "cod" {
		t.Fatalf("unexpected status: %+v", status)
	}

	if _, err := poller.Current(context.Background(), uuid.New()); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("error = %v, want ErrOrderNotFound", err)
	}
}

func TestStatusPoller_Defaults(t *testing.T) {
	t.Parallel()

	defaults := NewStatusPoller(newMemoryOrderStore(), PollOptions{}, discardLogger()).Defaults()
	if defaults.Interval != 2*time.Second || defaults.MaxAttempts != 15 {
		t.Fatalf("unexpected defaults: %+v", defaults)
	}
}

func TestStatusPoller_Poll_StopsWhenTrackingArrives(t *testing.T) {
	t.Parallel()

	store := newMemoryOrderStore()
	poller := NewStatusPoller(store, PollOptions{}, discardLogger())
	order := store.put(confirmedOrder())

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = store.RecordFulfillmentSuccess(context.Background(), order.ID, "MOCK-ECONT-0000000001")
	}()

	status, err := poller.Poll(context.Background(), order.ID, PollOptions{Interval: 10 * time.Millisecond, MaxAttempts: 500})
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if !status.Done || status.TrackingNumber != "MOCK-ECONT-0000000001" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.TrackingURL != "" {
		t.Fatalf("mock tracking numbers have no public URL, got %q", status.TrackingURL)
	}
}

func TestStatusPoller_Poll_KeepsWaitingAfterRetryableFailure(t *testing.T) {
	t.Parallel()

	store := newMemoryOrderStore()
	poller := NewStatusPoller(store, PollOptions{}, discardLogger())
	order := store.put(confirmedOrder())
	if err := store.RecordFulfillmentFailure(context.Background(), order.ID, "carrier request failed"); err != nil {
		t.Fatalf("RecordFulfillmentFailure returned error: %v", err)
	}

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = store.RecordFulfillmentSuccess(context.Background(), order.ID, "1051234567")
	}()

	status, err := poller.Poll(context.Background(), order.ID, PollOptions{Interval: 10 * time.Millisecond, MaxAttempts: 500})
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if !status.Done || status.TrackingNumber != "1051234567" {
		t.Fatalf("expected tracking number from the retry, got %+v", status)
	}
	if status.FulfillmentError != "" {
		t.Fatalf("fulfillment error should be cleared on success, got %q", status.FulfillmentError)
	}
}

func TestStatusPoller_Poll_ReportsFailureWhenAttemptsRunOut(t *testing.T) {
	t.Parallel()

	store := newMemoryOrderStore()
	poller := NewStatusPoller(store, PollOptions{}, discardLogger())
	order := confirmedOrder()
	order.FulfillmentError = "carrier request failed"
	store.put(order)

	status, err := poller.Poll(context.Background(), order.ID, PollOptions{Interval: time.Millisecond, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if status.Done || status.FulfillmentError != "carrier request failed" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStatusPoller_Poll_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	store := newMemoryOrderStore()
	poller := NewStatusPoller(store, PollOptions{}, discardLogger())
	order := store.put(confirmedOrder())

	status, err := poller.Poll(context.Background(), order.ID, PollOptions{Interval: time.Millisecond, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if status.Done || status.Status != models.StatusCODPending {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStatusPoller_Poll_ContextCancelled(t *testing.T) {
	t.Parallel()

	store := newMemoryOrderStore()
	poller := NewStatusPoller(store, PollOptions{}, discardLogger())
	order := store.put(confirmedOrder())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	status, err := poller.Poll(ctx, order.ID, PollOptions{Interval: time.Hour, MaxAttempts: 10})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if status == nil || status.OrderID != order.ID {
		t.Fatalf("expected last status, got %+v", status)
	}
}

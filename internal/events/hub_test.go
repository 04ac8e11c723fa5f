package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestHubDeliversInOrder(t *testing.T) {
	t.Parallel()

	hub := NewHub(HubParams{ObserverBuffer: 8})
	obs := hub.Subscribe()
	defer obs.Close()

	ctx := context.Background()
	productID := uuid.New()
	hub.Publish(ctx, NewStockUpdate(productID, 4))
	hub.Publish(ctx, NewLowStockWarning(productID, 4))

	first := <-obs.C()
	var update StockUpdate
	if err := json.Unmarshal(first, &update); err != nil {
		t.Fatalf("unmarshal first event: %v", err)
	}
	if update.Event != TypeStockUpdate || update.AvailableQty != 4 {
		t.Fatalf("unexpected first event: %+v", update)
	}

	second := <-obs.C()
	var warning LowStockWarning
	if err := json.Unmarshal(second, &warning); err != nil {
		t.Fatalf("unmarshal second event: %v", err)
	}
	if warning.Event != TypeLowStockWarning || warning.Threshold != LowStockThreshold {
		t.Fatalf("unexpected second event: %+v", warning)
	}
}

func TestHubDropsSlowObserver(t *testing.T) {
	t.Parallel()

	hub := NewHub(HubParams{ObserverBuffer: 1})
	slow := hub.Subscribe()
	fast := hub.Subscribe()
	defer fast.Close()

	ctx := context.Background()
	orderID := uuid.New()
	// Fill the slow observer's buffer, then publish one more.
	hub.Publish(ctx, NewOrderCancelled(orderID))
	hub.Publish(ctx, NewOrderCancelled(orderID))

	// Drain fast so it survives future publishes.
	<-fast.C()
	<-fast.C()

	if count := hub.ObserverCount(); count != 1 {
		t.Fatalf("expected slow observer to be dropped, observers=%d", count)
	}

	// Channel must be closed after the buffered event is drained.
	<-slow.C()
	if _, open := <-slow.C(); open {
		t.Fatalf("expected slow observer channel to be closed")
	}
}

func TestObserverCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub(HubParams{ObserverBuffer: 1})
	obs := hub.Subscribe()
	obs.Close()
	obs.Close()

	if count := hub.ObserverCount(); count != 0 {
		t.Fatalf("expected zero observers, got %d", count)
	}
}

func TestBufferFlushPreservesOrder(t *testing.T) {
	t.Parallel()

	hub := NewHub(HubParams{ObserverBuffer: 8})
	obs := hub.Subscribe()
	defer obs.Close()

	var buf Buffer
	orderID := uuid.New()
	userID := uuid.New()
	buf.Add(NewStockUpdate(uuid.New(), 2))
	buf.Add(NewNewOrder(orderID, userID, decimal.NewFromInt(99)))

	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}

	buf.Flush(context.Background(), hub)
	if buf.Len() != 0 {
		t.Fatalf("expected buffer to reset after flush")
	}

	var envelope struct {
		Event Type `json:"event"`
	}
	if err := json.Unmarshal(<-obs.C(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Event != TypeStockUpdate {
		t.Fatalf("expected stock update first, got %s", envelope.Event)
	}
	if err := json.Unmarshal(<-obs.C(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Event != TypeNewOrder {
		t.Fatalf("expected new order second, got %s", envelope.Event)
	}
}

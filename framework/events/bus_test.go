package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// recordingHandler для тестирования
type recordingHandler struct {
	mu        sync.Mutex
	eventType string
	handled   []Event
	err       error
}

func (h *recordingHandler) Handle(ctx context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *recordingHandler) EventType() string {
	return h.eventType
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_PublishToTypeAndWildcard(t *testing.T) {
	bus := NewInMemoryEventBus()
	typed := &recordingHandler{eventType: "product.created"}
	other := &recordingHandler{eventType: "product.stock_order.added"}
	all := &recordingHandler{eventType: WildcardEventType}

	if err := bus.Subscribe("product.created", typed); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := bus.Subscribe("product.stock_order.added", other); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := bus.Subscribe(WildcardEventType, all); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := bus.Publish(context.Background(), NewBaseEvent("product.created", "sku-1")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if typed.count() != 1 {
		t.Errorf("Expected typed handler to receive 1 event, got %d", typed.count())
	}
	if other.count() != 0 {
		t.Errorf("Expected other handler to receive nothing, got %d", other.count())
	}
	if all.count() != 1 {
		t.Errorf("Expected wildcard handler to receive 1 event, got %d", all.count())
	}
}

func TestInMemoryEventBus_DuplicateSubscribe(t *testing.T) {
	bus := NewInMemoryEventBus()
	h := &recordingHandler{eventType: "x"}

	if err := bus.Subscribe("x", h); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := bus.Subscribe("x", h); err == nil {
		t.Error("Expected error on duplicate subscription")
	}
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus()
	h := NewEventHandlerFunc("x", func(ctx context.Context, event Event) error {
		t.Error("handler must not be called after unsubscribe")
		return nil
	})

	_ = bus.Subscribe("x", h)
	if err := bus.Unsubscribe("x", h); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := bus.Publish(context.Background(), NewBaseEvent("x", "agg")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestInMemoryEventBus_HandlerErrorGoesToDLQ(t *testing.T) {
	dlq := &recordingDLQ{}
	bus := NewInMemoryEventBus().WithDeadLetterQueue(dlq)
	boom := errors.New("boom")
	_ = bus.Subscribe("x", &recordingHandler{eventType: "x", err: boom})

	err := bus.Publish(context.Background(), NewBaseEvent("x", "agg"))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom error, got %v", err)
	}
	if len(dlq.reasons) != 1 {
		t.Errorf("Expected 1 DLQ entry, got %d", len(dlq.reasons))
	}
}

func TestInMemoryEventBus_MiddlewareOrder(t *testing.T) {
	var order []string
	bus := NewInMemoryEventBus().
		WithMiddleware(func(ctx context.Context, event Event, next func(ctx context.Context, event Event) error) error {
			order = append(order, "first")
			return next(ctx, event)
		}).
		WithMiddleware(func(ctx context.Context, event Event, next func(ctx context.Context, event Event) error) error {
			order = append(order, "second")
			return next(ctx, event)
		})

	if err := bus.Publish(context.Background(), NewBaseEvent("x", "agg")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Unexpected middleware order: %v", order)
	}
}

func TestInMemoryEventBus_PublishAfterShutdown(t *testing.T) {
	bus := NewInMemoryEventBus()
	if err := bus.Shutdown(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := bus.Publish(context.Background(), NewBaseEvent("x", "agg")); err == nil {
		t.Error("Expected error when publishing to stopped bus")
	}
}

type recordingDLQ struct {
	reasons []string
}

func (d *recordingDLQ) Publish(ctx context.Context, event Event, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

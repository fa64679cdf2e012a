// Package events предоставляет реализацию EventBus.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// WildcardEventType подписка на все типы событий
const WildcardEventType = "*"

// InMemoryEventBus реализация шины событий.
// Handlers вызываются синхронно в порядке подписки: сначала подписчики типа, затем wildcard.
type InMemoryEventBus struct {
	handlers   map[string][]EventHandler
	middleware []EventMiddleware
	dlq        DeadLetterQueue
	mu         sync.RWMutex
	wg         sync.WaitGroup // для отслеживания активных публикаций
	shutdownMu sync.Mutex
	stopped    bool
}

// EventMiddleware middleware для событий
type EventMiddleware func(ctx context.Context, event Event, next func(ctx context.Context, event Event) error) error

// DeadLetterQueue интерфейс для dead letter queue
type DeadLetterQueue interface {
	Publish(ctx context.Context, event Event, reason string) error
}

// NewInMemoryEventBus создает новую шину событий
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers:   make(map[string][]EventHandler),
		middleware: make([]EventMiddleware, 0),
	}
}

// WithMiddleware добавляет middleware к шине
func (b *InMemoryEventBus) WithMiddleware(middleware EventMiddleware) *InMemoryEventBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
	return b
}

// WithDeadLetterQueue устанавливает DLQ
func (b *InMemoryEventBus) WithDeadLetterQueue(dlq DeadLetterQueue) *InMemoryEventBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dlq = dlq
	return b
}

// Publish публикует событие
func (b *InMemoryEventBus) Publish(ctx context.Context, event Event) error {
	b.shutdownMu.Lock()
	if b.stopped {
		b.shutdownMu.Unlock()
		return fmt.Errorf("event bus is stopped")
	}
	b.wg.Add(1)
	b.shutdownMu.Unlock()
	defer b.wg.Done()

	b.mu.RLock()
	middleware := append([]EventMiddleware(nil), b.middleware...)
	dlq := b.dlq
	b.mu.RUnlock()

	next := b.dispatch
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, event Event) error {
			return mw(ctx, event, prevNext)
		}
	}

	err := next(ctx, event)
	if err != nil && dlq != nil {
		_ = dlq.Publish(ctx, event, err.Error())
	}

	return err
}

// dispatch вызывает все handlers события и собирает их ошибки
func (b *InMemoryEventBus) dispatch(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers[event.EventType()])+len(b.handlers[WildcardEventType]))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.handlers[WildcardEventType]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("handler for %s failed: %w", event.EventType(), err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe подписывается на тип события
func (b *InMemoryEventBus) Subscribe(eventType string, handler EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range b.handlers[eventType] {
		if h == handler {
			return fmt.Errorf("handler already subscribed to event type %s", eventType)
		}
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Unsubscribe отписывается от типа события
func (b *InMemoryEventBus) Unsubscribe(eventType string, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	for i, h := range handlers {
		if h == handler {
			b.handlers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("handler not subscribed to event type %s", eventType)
}

// Shutdown корректно завершает работу шины
func (b *InMemoryEventBus) Shutdown(ctx context.Context) error {
	b.shutdownMu.Lock()
	if b.stopped {
		b.shutdownMu.Unlock()
		return nil // Идемпотентный вызов
	}
	b.stopped = true
	b.shutdownMu.Unlock()

	// Ждем завершения всех активных публикаций
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("shutdown timeout after waiting for active publications")
	}
}

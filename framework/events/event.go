// Package events предоставляет базовые интерфейсы для работы с доменными событиями.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event представляет доменное событие
type Event interface {
	// EventID возвращает уникальный идентификатор события
	EventID() string
	// EventType возвращает тип события
	EventType() string
	// OccurredAt возвращает время возникновения события
	OccurredAt() time.Time
	// AggregateID возвращает идентификатор агрегата
	AggregateID() string
	// Metadata возвращает метаданные события
	Metadata() EventMetadata
}

// EventMetadata метаданные события
type EventMetadata map[string]interface{}

// Get получает значение метаданных по ключу
func (m EventMetadata) Get(key string) (interface{}, bool) {
	val, ok := m[key]
	return val, ok
}

// Set устанавливает значение метаданных
func (m EventMetadata) Set(key string, value interface{}) {
	if m == nil {
		return
	}
	m[key] = value
}

func (m EventMetadata) getString(key string) string {
	val, ok := m.Get(key)
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// CorrelationID возвращает correlation ID
func (m EventMetadata) CorrelationID() string {
	return m.getString("correlation_id")
}

// CausationID возвращает causation ID
func (m EventMetadata) CausationID() string {
	return m.getString("causation_id")
}

// BaseEvent базовая реализация события
type BaseEvent struct {
	eventID     string
	eventType   string
	occurredAt  time.Time
	aggregateID string
	metadata    EventMetadata
}

// NewBaseEvent создает новое базовое событие
func NewBaseEvent(eventType, aggregateID string) *BaseEvent {
	return &BaseEvent{
		eventID:     uuid.NewString(),
		eventType:   eventType,
		occurredAt:  time.Now().UTC(),
		aggregateID: aggregateID,
		metadata:    make(EventMetadata),
	}
}

// RestoreBaseEvent восстанавливает базовое событие из хранилища
func RestoreBaseEvent(eventID, eventType, aggregateID string, occurredAt time.Time, metadata map[string]interface{}) *BaseEvent {
	md := make(EventMetadata, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &BaseEvent{
		eventID:     eventID,
		eventType:   eventType,
		occurredAt:  occurredAt,
		aggregateID: aggregateID,
		metadata:    md,
	}
}

// WithMetadata добавляет метаданные к событию
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata.Set(key, value)
	return e
}

// WithCorrelationID устанавливает correlation ID
func (e *BaseEvent) WithCorrelationID(id string) *BaseEvent {
	if id != "" {
		e.metadata.Set("correlation_id", id)
	}
	return e
}

// WithCausationID устанавливает causation ID
func (e *BaseEvent) WithCausationID(id string) *BaseEvent {
	if id != "" {
		e.metadata.Set("causation_id", id)
	}
	return e
}

func (e *BaseEvent) EventID() string {
	return e.eventID
}

func (e *BaseEvent) EventType() string {
	return e.eventType
}

func (e *BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

func (e *BaseEvent) AggregateID() string {
	return e.aggregateID
}

func (e *BaseEvent) Metadata() EventMetadata {
	return e.metadata
}

// EventHandler обработчик доменных событий
type EventHandler interface {
	// Handle обрабатывает событие
	Handle(ctx context.Context, event Event) error
	// EventType возвращает тип события, который обрабатывает этот handler
	EventType() string
}

// EventHandlerFunc адаптер функции к EventHandler
type EventHandlerFunc struct {
	eventType string
	fn        func(ctx context.Context, event Event) error
}

// NewEventHandlerFunc создает handler из функции.
// Возвращается указатель, чтобы handler можно было сравнивать при отписке.
func NewEventHandlerFunc(eventType string, fn func(ctx context.Context, event Event) error) *EventHandlerFunc {
	return &EventHandlerFunc{eventType: eventType, fn: fn}
}

func (f *EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return f.fn(ctx, event)
}

func (f *EventHandlerFunc) EventType() string {
	return f.eventType
}

// EventPublisher публикатор событий
type EventPublisher interface {
	// Publish публикует событие
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber подписчик на события
type EventSubscriber interface {
	// Subscribe подписывается на тип события
	Subscribe(eventType string, handler EventHandler) error
	// Unsubscribe отписывается от типа события
	Unsubscribe(eventType string, handler EventHandler) error
}

// EventBus объединяет Publisher и Subscriber
type EventBus interface {
	EventPublisher
	EventSubscriber
}

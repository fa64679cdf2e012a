// Package events публикует доменные события во внешний message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akriventsev/potter-inventory/framework/events"
	"github.com/akriventsev/potter-inventory/framework/eventsourcing"
	"github.com/akriventsev/potter-inventory/framework/transport"
)

// MessageBusEventConfig конфигурация MessageBusEventAdapter
type MessageBusEventConfig struct {
	Bus           transport.Publisher
	SubjectPrefix string
	RetryPolicy   transport.RetryPolicy
}

// DefaultMessageBusEventConfig возвращает конфигурацию по умолчанию
func DefaultMessageBusEventConfig() MessageBusEventConfig {
	return MessageBusEventConfig{
		SubjectPrefix: "events",
		RetryPolicy:   transport.DefaultRetryPolicy(),
	}
}

// IntegrationEvent формат события во внешнем bus
type IntegrationEvent struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	OccurredAt    time.Time       `json:"occurredAt"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// MessageBusEventAdapter публикует каждое событие в subject <prefix>.<aggregate_type>.<event_type>
type MessageBusEventAdapter struct {
	config MessageBusEventConfig
}

// NewMessageBusEventAdapter создает MessageBusEventAdapter
func NewMessageBusEventAdapter(config MessageBusEventConfig) (*MessageBusEventAdapter, error) {
	if config.Bus == nil {
		return nil, fmt.Errorf("message bus is required")
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "events"
	}
	return &MessageBusEventAdapter{config: config}, nil
}

// Publish публикует событие. Реализует events.EventPublisher.
func (m *MessageBusEventAdapter) Publish(ctx context.Context, event events.Event) error {
	data, err := encodeIntegrationEvent(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.EventID(), err)
	}

	subject := m.Subject(event)
	if err := transport.PublishWithRetry(ctx, m.config.Bus, m.config.RetryPolicy, subject, data, buildHeaders(event)); err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.EventID(), subject, err)
	}
	return nil
}

// Handler возвращает подписчика на все события для in-process шины
func (m *MessageBusEventAdapter) Handler() *events.EventHandlerFunc {
	return events.NewEventHandlerFunc(events.WildcardEventType, m.Publish)
}

// Subject формирует subject для события
func (m *MessageBusEventAdapter) Subject(event events.Event) string {
	return fmt.Sprintf("%s.%s.%s", m.config.SubjectPrefix, aggregateType(event), event.EventType())
}

// encodeIntegrationEvent сериализует событие в IntegrationEvent
func encodeIntegrationEvent(event events.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(IntegrationEvent{
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: aggregateType(event),
		OccurredAt:    event.OccurredAt(),
		CorrelationID: event.Metadata().CorrelationID(),
		Data:          data,
	})
}

func aggregateType(event events.Event) string {
	if value, ok := event.Metadata().Get(eventsourcing.AggregateTypeKey); ok {
		if s, ok := value.(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

// buildHeaders формирует headers из метаданных события
func buildHeaders(event events.Event) map[string]string {
	headers := map[string]string{
		"event-id":     event.EventID(),
		"event-type":   event.EventType(),
		"aggregate-id": event.AggregateID(),
	}
	metadata := event.Metadata()
	if correlationID := metadata.CorrelationID(); correlationID != "" {
		headers["correlation-id"] = correlationID
	}
	if causationID := metadata.CausationID(); causationID != "" {
		headers["causation-id"] = causationID
	}
	return headers
}

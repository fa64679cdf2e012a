package events

import (
	"context"
	"fmt"

	"github.com/akriventsev/potter-inventory/framework/events"
	"github.com/akriventsev/potter-inventory/framework/transport"
)

// DefaultDeadLetterSubject subject по умолчанию для событий, которые не удалось обработать
const DefaultDeadLetterSubject = "events.dlq"

// MessageBusDeadLetterQueue реализует events.DeadLetterQueue поверх message bus.
// Событие публикуется в том же формате, что и MessageBusEventAdapter, с заголовком dlq-reason.
type MessageBusDeadLetterQueue struct {
	bus     transport.Publisher
	subject string
}

// NewMessageBusDeadLetterQueue создает DLQ
func NewMessageBusDeadLetterQueue(bus transport.Publisher, subject string) (*MessageBusDeadLetterQueue, error) {
	if bus == nil {
		return nil, fmt.Errorf("message bus is required")
	}
	if subject == "" {
		subject = DefaultDeadLetterSubject
	}
	return &MessageBusDeadLetterQueue{bus: bus, subject: subject}, nil
}

// Publish отправляет событие в DLQ
func (d *MessageBusDeadLetterQueue) Publish(ctx context.Context, event events.Event, reason string) error {
	data, err := encodeIntegrationEvent(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.EventID(), err)
	}
	headers := buildHeaders(event)
	headers["dlq-reason"] = reason
	if err := d.bus.Publish(ctx, d.subject, data, headers); err != nil {
		return fmt.Errorf("failed to publish event %s to dlq: %w", event.EventID(), err)
	}
	return nil
}

// Subject возвращает subject DLQ
func (d *MessageBusDeadLetterQueue) Subject() string {
	return d.subject
}

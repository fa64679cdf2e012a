package host

import (
	"fmt"

	"github.com/akriventsev/potter-inventory/framework/events"
	"github.com/akriventsev/potter-inventory/framework/eventsourcing"
	"github.com/akriventsev/potter-inventory/internal/product"
)

// AggregateType тип агрегата в хранилище событий
const AggregateType = "product"

// Envelope оборачивает событие продукта в событие фреймворка:
// идентификатор, время, агрегат и метаданные. В хранилище пишется только Payload.
type Envelope struct {
	*events.BaseEvent
	Payload product.Event
}

// NewEnvelope создает конверт для только что выпущенного события
func NewEnvelope(skuID string, payload product.Event) *Envelope {
	base := events.NewBaseEvent(payload.EventType(), skuID).
		WithMetadata("aggregate_type", AggregateType)
	return &Envelope{BaseEvent: base, Payload: payload}
}

// MarshalJSON сериализует только полезную нагрузку
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return product.EncodeEvent(e.Payload)
}

// Payloads извлекает события продукта из конвертов, пропуская чужие события
func Payloads(evts []events.Event) []product.Event {
	result := make([]product.Event, 0, len(evts))
	for _, e := range evts {
		if env, ok := e.(*Envelope); ok && env.Payload != nil {
			result = append(result, env.Payload)
		}
	}
	return result
}

// FoldEnvelope функция свертки для репозитория
func FoldEnvelope(s product.State, event events.Event) product.State {
	env, ok := event.(*Envelope)
	if !ok || env.Payload == nil {
		return s
	}
	return product.Fold(s, env.Payload)
}

// Codec восстанавливает конверты из записей хранилища
type Codec struct{}

// DeserializeEvent реализует eventsourcing.EventDeserializer
func (Codec) DeserializeEvent(record eventsourcing.EventRecord) (events.Event, error) {
	payload, err := product.DecodeEvent(record.EventType, record.Data)
	if err != nil {
		return nil, fmt.Errorf("event %s of %s: %w", record.ID, record.AggregateID, err)
	}
	base := events.RestoreBaseEvent(record.ID, record.EventType, record.AggregateID, record.OccurredAt, record.Metadata)
	return &Envelope{BaseEvent: base, Payload: payload}, nil
}

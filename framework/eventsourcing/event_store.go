// Package eventsourcing предоставляет хранилища событий, снапшоты и fold-репозиторий.
package eventsourcing

import (
	"context"
	"time"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/events"
)

// ErrConcurrencyConflict возникает, когда ожидаемая версия потока не совпадает с текущей.
// Сравнивать через errors.Is.
var ErrConcurrencyConflict = core.Sentinel(core.ErrConcurrencyConflict)

// StoredEvent представляет сохраненное событие с метаданными
type StoredEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	EventData     events.Event
	Metadata      map[string]interface{}
	Version       int64
	Position      int64
	OccurredAt    time.Time
	CreatedAt     time.Time
}

// EventRecord сырая запись события, прочитанная из хранилища
type EventRecord struct {
	ID          string
	AggregateID string
	EventType   string
	Data        []byte
	Metadata    map[string]interface{}
	OccurredAt  time.Time
}

// EventDeserializer восстанавливает событие из записи хранилища
type EventDeserializer interface {
	DeserializeEvent(record EventRecord) (events.Event, error)
}

// EventStore интерфейс для хранения событий
type EventStore interface {
	// AppendEvents атомарно добавляет пакет событий в поток агрегата.
	// Если текущая версия потока не равна expectedVersion, ничего не записывается
	// и возвращается ErrConcurrencyConflict.
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, events []events.Event) error

	// GetEvents возвращает события агрегата с версией >= fromVersion.
	// Для несуществующего потока возвращается пустой результат.
	GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error)

	// GetAllEvents возвращает все события начиная с указанной позиции
	GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error)
}

// AggregateTypeKey ключ метаданных с типом агрегата
const AggregateTypeKey = "aggregate_type"

func getAggregateType(event events.Event) string {
	if metadata := event.Metadata(); metadata != nil {
		if aggType, ok := metadata.Get(AggregateTypeKey); ok {
			if str, ok := aggType.(string); ok {
				return str
			}
		}
	}
	return "unknown"
}

func convertMetadata(metadata events.EventMetadata) map[string]interface{} {
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// decodeRecord восстанавливает событие через десериализатор, если он задан
func decodeRecord(deserializer EventDeserializer, stored *StoredEvent, data []byte) error {
	if deserializer == nil {
		return nil
	}
	event, err := deserializer.DeserializeEvent(EventRecord{
		ID:          stored.ID,
		AggregateID: stored.AggregateID,
		EventType:   stored.EventType,
		Data:        data,
		Metadata:    stored.Metadata,
		OccurredAt:  stored.OccurredAt,
	})
	if err != nil {
		return err
	}
	stored.EventData = event
	return nil
}

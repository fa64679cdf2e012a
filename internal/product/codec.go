package product

import (
	"encoding/json"
	"fmt"
)

// EncodeEvent сериализует событие в JSON. Тип события хранится отдельно,
// его возвращает EventType.
func EncodeEvent(event Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("encode product event: nil event")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode product event %s: %w", event.EventType(), err)
	}
	return data, nil
}

// DecodeEvent восстанавливает событие по типу и JSON
func DecodeEvent(eventType string, data []byte) (Event, error) {
	var (
		event Event
		err   error
	)
	switch eventType {
	case EventTypeCreated:
		event, err = decodeAs[Created](data)
	case EventTypeAddedStockOrder:
		event, err = decodeAs[AddedStockOrder](data)
	case EventTypeUpdatedStockOrder:
		event, err = decodeAs[UpdatedStockOrder](data)
	case EventTypeUpdatedProductsBackOrdered:
		event, err = decodeAs[UpdatedProductsBackOrdered](data)
	case EventTypeCreateStockOrderRequested:
		event, err = decodeAs[CreateStockOrderRequested](data)
	default:
		return nil, fmt.Errorf("decode product event: unknown event type %q", eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode product event %s: %w", eventType, err)
	}
	return event, nil
}

// IsEventType сообщает, относится ли тип к событиям продукта
func IsEventType(eventType string) bool {
	switch eventType {
	case EventTypeCreated,
		EventTypeAddedStockOrder,
		EventTypeUpdatedStockOrder,
		EventTypeUpdatedProductsBackOrdered,
		EventTypeCreateStockOrderRequested:
		return true
	}
	return false
}

func decodeAs[E Event](data []byte) (Event, error) {
	var e E
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

package eventsourcing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/events"
)

// InMemoryEventStoreConfig конфигурация для InMemory Event Store
type InMemoryEventStoreConfig struct {
	MaxEventsPerStream int64
}

// DefaultInMemoryEventStoreConfig возвращает конфигурацию по умолчанию
func DefaultInMemoryEventStoreConfig() InMemoryEventStoreConfig {
	return InMemoryEventStoreConfig{
		MaxEventsPerStream: 10000,
	}
}

// InMemoryEventStore реализация EventStore в памяти для тестирования и разработки
type InMemoryEventStore struct {
	mu        sync.RWMutex
	streams   map[string][]StoredEvent
	allEvents []StoredEvent
	position  int64
	config    InMemoryEventStoreConfig
}

// NewInMemoryEventStore создает новый InMemory Event Store
func NewInMemoryEventStore(config InMemoryEventStoreConfig) *InMemoryEventStore {
	return &InMemoryEventStore{
		streams: make(map[string][]StoredEvent),
		config:  config,
	}
}

func (s *InMemoryEventStore) Name() string {
	return "inmemory-event-store"
}

func (s *InMemoryEventStore) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// AppendEvents добавляет события в поток агрегата
func (s *InMemoryEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evts []events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	currentVersion := int64(0)
	if len(stream) > 0 {
		currentVersion = stream[len(stream)-1].Version
	}

	if expectedVersion != currentVersion {
		return fmt.Errorf("%w: expected %d, got %d", ErrConcurrencyConflict, expectedVersion, currentVersion)
	}

	if s.config.MaxEventsPerStream > 0 {
		newEventCount := int64(len(stream)) + int64(len(evts))
		if newEventCount > s.config.MaxEventsPerStream {
			return fmt.Errorf("max events per stream exceeded: %d (limit: %d)", newEventCount, s.config.MaxEventsPerStream)
		}
	}

	// Пакет собирается целиком до изменения хранилища
	batch := make([]StoredEvent, 0, len(evts))
	now := time.Now()
	for i, event := range evts {
		batch = append(batch, StoredEvent{
			ID:            event.EventID(),
			AggregateID:   aggregateID,
			AggregateType: getAggregateType(event),
			EventType:     event.EventType(),
			EventData:     event,
			Metadata:      convertMetadata(event.Metadata()),
			Version:       expectedVersion + int64(i) + 1,
			Position:      s.position + int64(i) + 1,
			OccurredAt:    event.OccurredAt(),
			CreatedAt:     now,
		})
	}

	s.position += int64(len(batch))
	s.streams[aggregateID] = append(stream, batch...)
	s.allEvents = append(s.allEvents, batch...)
	return nil
}

// GetEvents возвращает события агрегата начиная с указанной версии
func (s *InMemoryEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []StoredEvent
	for _, event := range s.streams[aggregateID] {
		if event.Version >= fromVersion {
			result = append(result, event)
		}
	}
	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции
func (s *InMemoryEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	s.mu.RLock()
	snapshot := make([]StoredEvent, 0, len(s.allEvents))
	for _, event := range s.allEvents {
		if event.Position >= fromPosition {
			snapshot = append(snapshot, event)
		}
	}
	s.mu.RUnlock()

	ch := make(chan StoredEvent, 100)
	go func() {
		defer close(ch)
		for _, event := range snapshot {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Clear очищает все события (для тестов)
func (s *InMemoryEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string][]StoredEvent)
	s.allEvents = nil
	s.position = 0
}

// InMemorySnapshotStore реализация SnapshotStore в памяти
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewInMemorySnapshotStore создает новый InMemory Snapshot Store
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{
		snapshots: make(map[string]Snapshot),
	}
}

// SaveSnapshot сохраняет снапшот
func (s *InMemorySnapshotStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// GetSnapshot возвращает последний снапшот или nil
func (s *InMemorySnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, exists := s.snapshots[aggregateID]
	if !exists {
		return nil, nil
	}
	return &snapshot, nil
}

// DeleteSnapshots удаляет снапшоты старше указанной версии
func (s *InMemorySnapshotStore) DeleteSnapshots(ctx context.Context, aggregateID string, beforeVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot, exists := s.snapshots[aggregateID]; exists && snapshot.Version < beforeVersion {
		delete(s.snapshots, aggregateID)
	}
	return nil
}

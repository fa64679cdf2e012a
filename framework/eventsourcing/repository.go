package eventsourcing

import (
	"context"
	"fmt"
	"time"

	"github.com/akriventsev/potter-inventory/framework/events"
)

// FoldFunc применяет сохраненное событие к состоянию
type FoldFunc[S any] func(state S, event events.Event) S

// RepositoryConfig конфигурация для Event Sourced репозитория
type RepositoryConfig struct {
	AggregateType    string
	UseSnapshots     bool
	SnapshotStrategy SnapshotStrategy
	Serializer       SnapshotSerializer
	// OnSnapshotError вызывается, если снапшот не удалось прочитать или сохранить.
	// Ошибки снапшотов не прерывают загрузку и сохранение.
	OnSnapshotError func(aggregateID string, err error)
}

// DefaultRepositoryConfig возвращает конфигурацию по умолчанию
func DefaultRepositoryConfig() RepositoryConfig {
	return RepositoryConfig{
		UseSnapshots:     true,
		SnapshotStrategy: NewFrequencySnapshotStrategy(100),
		Serializer:       NewJSONSnapshotSerializer(),
	}
}

// Repository generic репозиторий, восстанавливающий состояние сверткой событий
type Repository[S any] struct {
	eventStore    EventStore
	snapshotStore SnapshotStore
	config        RepositoryConfig
	initial       func() S
	fold          FoldFunc[S]
}

// NewRepository создает репозиторий. initial возвращает состояние пустого потока.
func NewRepository[S any](
	eventStore EventStore,
	snapshotStore SnapshotStore,
	config RepositoryConfig,
	initial func() S,
	fold FoldFunc[S],
) *Repository[S] {
	if config.Serializer == nil {
		config.Serializer = NewJSONSnapshotSerializer()
	}
	if config.SnapshotStrategy == nil {
		config.SnapshotStrategy = NewFrequencySnapshotStrategy(100)
	}
	if snapshotStore == nil {
		config.UseSnapshots = false
	}

	return &Repository[S]{
		eventStore:    eventStore,
		snapshotStore: snapshotStore,
		config:        config,
		initial:       initial,
		fold:          fold,
	}
}

// Load восстанавливает состояние и текущую версию потока.
// Если есть снапшот, сворачиваются только события после него.
// Снапшот, версия которого больше версии потока, отбрасывается.
func (r *Repository[S]) Load(ctx context.Context, aggregateID string) (S, int64, error) {
	var zero S

	if r.config.UseSnapshots {
		if snapState, snapVersion, ok := r.loadSnapshot(ctx, aggregateID); ok {
			// Событие с версией снапшота подтверждает, что поток до нее дошел
			stored, err := r.eventStore.GetEvents(ctx, aggregateID, snapVersion)
			if err != nil {
				return zero, 0, fmt.Errorf("failed to get events: %w", err)
			}
			if len(stored) > 0 && stored[0].Version == snapVersion {
				state, version := r.foldStored(snapState, snapVersion, stored[1:])
				return state, version, nil
			}
			r.snapshotError(aggregateID, fmt.Errorf("snapshot version %d is ahead of the event stream", snapVersion))
			// Иначе устаревший снапшот подхватится, когда поток снова дойдет до его версии
			if err := r.snapshotStore.DeleteSnapshots(ctx, aggregateID, snapVersion+1); err != nil {
				r.snapshotError(aggregateID, fmt.Errorf("failed to delete snapshot: %w", err))
			}
		}
	}

	stored, err := r.eventStore.GetEvents(ctx, aggregateID, 1)
	if err != nil {
		return zero, 0, fmt.Errorf("failed to get events: %w", err)
	}
	state, version := r.foldStored(r.initial(), 0, stored)
	return state, version, nil
}

// foldStored применяет события к состоянию и возвращает версию последнего из них
func (r *Repository[S]) foldStored(state S, version int64, stored []StoredEvent) (S, int64) {
	for _, event := range stored {
		if event.EventData != nil {
			state = r.fold(state, event.EventData)
		}
		version = event.Version
	}
	return state, version
}

// Save добавляет пакет событий и при необходимости сохраняет снапшот состояния.
// state состояние после применения пакета. Возвращает новую версию потока.
func (r *Repository[S]) Save(ctx context.Context, aggregateID string, expectedVersion int64, state S, evts []events.Event) (int64, error) {
	if len(evts) == 0 {
		return expectedVersion, nil
	}

	if err := r.eventStore.AppendEvents(ctx, aggregateID, expectedVersion, evts); err != nil {
		return expectedVersion, fmt.Errorf("failed to append events: %w", err)
	}

	newVersion := expectedVersion + int64(len(evts))
	if r.config.UseSnapshots && r.config.SnapshotStrategy.ShouldCreateSnapshot(aggregateID, expectedVersion, newVersion) {
		if err := r.createSnapshot(ctx, aggregateID, newVersion, state); err != nil {
			r.snapshotError(aggregateID, err)
		}
	}

	return newVersion, nil
}

// History возвращает все события потока
func (r *Repository[S]) History(ctx context.Context, aggregateID string) ([]StoredEvent, error) {
	stored, err := r.eventStore.GetEvents(ctx, aggregateID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return stored, nil
}

// Initial возвращает состояние пустого потока
func (r *Repository[S]) Initial() S {
	return r.initial()
}

// Fold применяет событие к состоянию функцией репозитория
func (r *Repository[S]) Fold(state S, event events.Event) S {
	return r.fold(state, event)
}

func (r *Repository[S]) loadSnapshot(ctx context.Context, aggregateID string) (S, int64, bool) {
	var zero S
	snapshot, err := r.snapshotStore.GetSnapshot(ctx, aggregateID)
	if err != nil {
		r.snapshotError(aggregateID, fmt.Errorf("failed to get snapshot: %w", err))
		return zero, 0, false
	}
	if snapshot == nil {
		return zero, 0, false
	}

	state := r.initial()
	if err := r.config.Serializer.Deserialize(snapshot.State, &state); err != nil {
		// Поврежденный снапшот игнорируется, состояние собирается с начала потока
		r.snapshotError(aggregateID, fmt.Errorf("failed to deserialize snapshot: %w", err))
		return zero, 0, false
	}
	return state, snapshot.Version, true
}

func (r *Repository[S]) createSnapshot(ctx context.Context, aggregateID string, version int64, state S) error {
	data, err := r.config.Serializer.Serialize(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	return r.snapshotStore.SaveSnapshot(ctx, Snapshot{
		AggregateID:   aggregateID,
		AggregateType: r.config.AggregateType,
		Version:       version,
		State:         data,
		Metadata:      make(map[string]interface{}),
		CreatedAt:     time.Now().UTC(),
	})
}

func (r *Repository[S]) snapshotError(aggregateID string, err error) {
	if r.config.OnSnapshotError != nil {
		r.config.OnSnapshotError(aggregateID, err)
	}
}

package eventsourcing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/potter-inventory/framework/events"
)

// Projection обработчик глобального потока событий.
// HandleEvent может быть вызван повторно для уже обработанного события.
type Projection interface {
	Name() string
	HandleEvent(ctx context.Context, event StoredEvent) error
}

// ProjectionConfig конфигурация ProjectionRunner
type ProjectionConfig struct {
	// PollInterval период опроса хранилища между явными Trigger
	PollInterval time.Duration
	// GapTimeout сколько ждать пропущенную позицию, прежде чем считать ее дырой.
	// Позиции выделяются до коммита, поэтому более ранняя транзакция может
	// зафиксироваться позже более поздней.
	GapTimeout time.Duration
	// OnError вызывается при ошибке прохода; проход повторяется позже
	OnError func(projectionName string, err error)
}

// DefaultProjectionConfig возвращает конфигурацию по умолчанию
func DefaultProjectionConfig() ProjectionConfig {
	return ProjectionConfig{
		PollInterval: 5 * time.Second,
		GapTimeout:   30 * time.Second,
	}
}

// ProjectionRunner доставляет проекции события из EventStore.GetAllEvents,
// сохраняя позицию после каждого успешно обработанного события.
// Ошибка обработки останавливает проход без сдвига позиции, поэтому
// доставка не реже одного раза.
type ProjectionRunner struct {
	projection  Projection
	eventStore  EventStore
	checkpoints CheckpointStore
	config      ProjectionConfig
	trigger     chan struct{}

	mu          sync.Mutex
	gapPosition int64
	gapSeen     time.Time
	now         func() time.Time
}

// NewProjectionRunner создает ProjectionRunner
func NewProjectionRunner(projection Projection, eventStore EventStore, checkpoints CheckpointStore, config ProjectionConfig) *ProjectionRunner {
	defaults := DefaultProjectionConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.GapTimeout < 0 {
		config.GapTimeout = 0
	}
	return &ProjectionRunner{
		projection:  projection,
		eventStore:  eventStore,
		checkpoints: checkpoints,
		config:      config,
		trigger:     make(chan struct{}, 1),
		now:         time.Now,
	}
}

// Run выполняет проходы до отмены контекста: по таймеру и по Trigger
func (r *ProjectionRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil && r.config.OnError != nil {
			r.config.OnError(r.projection.Name(), err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.trigger:
		}
	}
}

// Trigger просит Run выполнить внеочередной проход. Не блокирует.
func (r *ProjectionRunner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// TriggerHandler handler шины, который вызывает Trigger на событие eventType
func (r *ProjectionRunner) TriggerHandler(eventType string) events.EventHandler {
	return events.NewEventHandlerFunc(eventType, func(ctx context.Context, event events.Event) error {
		r.Trigger()
		return nil
	})
}

// RunOnce обрабатывает все события после сохраненной позиции.
// Возвращает число обработанных событий.
func (r *ProjectionRunner) RunOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := r.projection.Name()
	checkpoint, err := r.checkpoints.GetCheckpoint(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("projection %s: %w", name, err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := r.eventStore.GetAllEvents(readCtx, checkpoint+1)
	if err != nil {
		return 0, fmt.Errorf("projection %s: %w", name, err)
	}

	processed := 0
	for event := range stream {
		if event.Position > checkpoint+1 && !r.gapSettled(checkpoint+1) {
			return processed, nil
		}
		if err := r.projection.HandleEvent(ctx, event); err != nil {
			return processed, fmt.Errorf("projection %s at position %d: %w", name, event.Position, err)
		}
		if err := r.checkpoints.SaveCheckpoint(ctx, name, event.Position); err != nil {
			return processed, fmt.Errorf("projection %s: %w", name, err)
		}
		checkpoint = event.Position
		processed++
	}
	if err := ctx.Err(); err != nil {
		return processed, err
	}
	return processed, nil
}

// gapSettled сообщает, ждали ли позицию position дольше GapTimeout
func (r *ProjectionRunner) gapSettled(position int64) bool {
	now := r.now()
	if r.gapPosition != position {
		r.gapPosition = position
		r.gapSeen = now
	}
	return now.Sub(r.gapSeen) >= r.config.GapTimeout
}

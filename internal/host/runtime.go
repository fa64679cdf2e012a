// Package host исполняет команды продукта: сериализует их по skuId,
// восстанавливает состояние из хранилища событий, атомарно сохраняет
// выпущенный пакет событий и раздает его подписчикам.
package host

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/events"
	"github.com/akriventsev/potter-inventory/framework/eventsourcing"
	"github.com/akriventsev/potter-inventory/framework/metrics"
	"github.com/akriventsev/potter-inventory/framework/observability"
	"github.com/akriventsev/potter-inventory/internal/product"
)

// Repository репозиторий состояний продукта
type Repository = eventsourcing.Repository[product.State]

// NewRepository создает репозиторий продуктов поверх хранилищ
func NewRepository(store eventsourcing.EventStore, snapshots eventsourcing.SnapshotStore, config eventsourcing.RepositoryConfig) *Repository {
	config.AggregateType = AggregateType
	return eventsourcing.NewRepository(store, snapshots, config, product.EmptyState, FoldEnvelope)
}

// HistoryEntry событие потока и состояние после него
type HistoryEntry struct {
	Version    int64         `json:"version"`
	EventID    string        `json:"eventId"`
	EventType  string        `json:"eventType"`
	OccurredAt time.Time     `json:"occurredAt"`
	Event      product.Event `json:"event"`
	State      product.State `json:"state"`
}

// Runtime исполнитель команд продукта
type Runtime struct {
	aggregate *product.Aggregate
	repo      *Repository
	bus       events.EventPublisher
	locker    *KeyedLocker
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option настройка Runtime
type Option func(*Runtime)

// WithEventBus задает шину, в которую публикуются сохраненные события
func WithEventBus(bus events.EventPublisher) Option {
	return func(r *Runtime) { r.bus = bus }
}

// WithLogger задает логгер
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics задает сборщик метрик
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// NewRuntime создает Runtime
func NewRuntime(aggregate *product.Aggregate, repo *Repository, opts ...Option) *Runtime {
	r := &Runtime{
		aggregate: aggregate,
		repo:      repo,
		locker:    NewKeyedLocker(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute выполняет команду. Команды одного skuId выполняются строго по очереди,
// разных skuId параллельно. Пакет событий сохраняется целиком или не сохраняется вовсе.
// Возвращает состояние после команды.
func (r *Runtime) Execute(ctx context.Context, cmd product.Command) (product.State, error) {
	skuID := cmd.AggregateID()
	start := time.Now()

	if r.metrics != nil {
		r.metrics.IncrementActiveCommands(ctx)
		defer r.metrics.DecrementActiveCommands(ctx)
	}

	var result product.State
	err := observability.TraceCommand(ctx, cmd.CommandName(), skuID, func(ctx context.Context) error {
		var err error
		result, err = r.execute(ctx, skuID, cmd)
		return err
	})

	if r.metrics != nil {
		r.metrics.RecordCommand(ctx, cmd.CommandName(), time.Since(start), err == nil)
	}
	if err != nil {
		r.logger.Warn("command rejected",
			zap.String("sku_id", skuID),
			zap.String("command", cmd.CommandName()),
			zap.String("code", core.CodeOf(err)),
			zap.Error(err),
		)
		return product.State{}, err
	}
	return result, nil
}

func (r *Runtime) execute(ctx context.Context, skuID string, cmd product.Command) (product.State, error) {
	unlock := r.locker.Lock(skuID)
	defer unlock()

	state, version, err := r.repo.Load(ctx, skuID)
	if err != nil {
		return product.State{}, fmt.Errorf("load product %s: %w", skuID, err)
	}

	r.logger.Debug("handling command",
		zap.String("sku_id", skuID),
		zap.String("command", cmd.CommandName()),
		zap.Int64("version", version),
		zap.Any("state", state),
		zap.Any("payload", cmd),
	)

	emitted, err := r.aggregate.Handle(state, cmd)
	if err != nil {
		return product.State{}, err
	}
	if len(emitted) == 0 {
		return state, nil
	}

	correlationID := observability.CorrelationID(ctx)
	envelopes := make([]events.Event, 0, len(emitted))
	for _, e := range emitted {
		env := NewEnvelope(skuID, e)
		env.WithCorrelationID(correlationID).WithMetadata("command", cmd.CommandName())
		envelopes = append(envelopes, env)
	}

	next := product.FoldAll(state, emitted...)
	newVersion, err := r.repo.Save(ctx, skuID, version, next, envelopes)
	if err != nil {
		return product.State{}, fmt.Errorf("save product %s: %w", skuID, err)
	}

	eventTypes := make([]string, 0, len(emitted))
	for _, e := range emitted {
		eventTypes = append(eventTypes, e.EventType())
		if r.metrics != nil {
			r.metrics.RecordEvent(ctx, e.EventType())
		}
	}
	r.logger.Info("command handled",
		zap.String("sku_id", skuID),
		zap.String("command", cmd.CommandName()),
		zap.Int64("version", newVersion),
		zap.Strings("events", eventTypes),
		zap.Int("available", next.Available),
		zap.Int("back_ordered", next.BackOrdered),
	)

	r.publish(ctx, skuID, envelopes)
	return next, nil
}

// publish раздает сохраненные события. События уже зафиксированы,
// поэтому ошибки подписчиков только логируются, а отмена запроса
// не прерывает доставку.
func (r *Runtime) publish(ctx context.Context, skuID string, envelopes []events.Event) {
	if r.bus == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, env := range envelopes {
		if err := r.bus.Publish(ctx, env); err != nil {
			r.logger.Error("event subscriber failed",
				zap.String("sku_id", skuID),
				zap.String("event_id", env.EventID()),
				zap.String("event_type", env.EventType()),
				zap.Error(err),
			)
		}
	}
}

// Get возвращает текущее состояние продукта или ошибку NOT_FOUND
func (r *Runtime) Get(ctx context.Context, skuID string) (product.State, error) {
	start := time.Now()
	state, err := observability.TraceQuery(ctx, "GetProduct", skuID, func(ctx context.Context) (product.State, error) {
		state, _, err := r.repo.Load(ctx, skuID)
		if err != nil {
			return product.State{}, fmt.Errorf("load product %s: %w", skuID, err)
		}
		return r.aggregate.Query(state)
	})
	if r.metrics != nil {
		r.metrics.RecordQuery(ctx, "GetProduct", time.Since(start), err == nil)
	}
	return state, err
}

// Replay возвращает историю событий продукта с состоянием после каждого события
func (r *Runtime) Replay(ctx context.Context, skuID string) ([]HistoryEntry, error) {
	start := time.Now()
	history, err := observability.TraceQuery(ctx, "ReplayProduct", skuID, func(ctx context.Context) ([]HistoryEntry, error) {
		stored, err := r.repo.History(ctx, skuID)
		if err != nil {
			return nil, fmt.Errorf("load history of %s: %w", skuID, err)
		}
		if len(stored) == 0 {
			return nil, core.NewError(core.ErrNotFound, "Product not found")
		}

		state := r.repo.Initial()
		entries := make([]HistoryEntry, 0, len(stored))
		for _, se := range stored {
			env, ok := se.EventData.(*Envelope)
			if !ok {
				continue
			}
			state = product.Fold(state, env.Payload)
			entries = append(entries, HistoryEntry{
				Version:    se.Version,
				EventID:    se.ID,
				EventType:  se.EventType,
				OccurredAt: se.OccurredAt,
				Event:      env.Payload,
				State:      state,
			})
		}
		return entries, nil
	})
	if r.metrics != nil {
		r.metrics.RecordQuery(ctx, "ReplayProduct", time.Since(start), err == nil)
	}
	return history, err
}

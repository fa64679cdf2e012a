package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-inventory/framework/adapters/messagebus"
	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/eventsourcing"
	"github.com/akriventsev/potter-inventory/framework/migrations"
	"github.com/akriventsev/potter-inventory/framework/transport"
	"github.com/akriventsev/potter-inventory/internal/config"
	"github.com/akriventsev/potter-inventory/internal/host"
	"github.com/akriventsev/potter-inventory/internal/notify"
	schema "github.com/akriventsev/potter-inventory/migrations"
)

// stores хранилища событий и снапшотов, выбранные конфигурацией
type stores struct {
	events      eventsourcing.EventStore
	snapshots   eventsourcing.SnapshotStore
	checkpoints eventsourcing.CheckpointStore
	closers     []core.Lifecycle
	redis       redis.UniversalClient
}

func newStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	s := &stores{}
	codec := host.Codec{}

	switch cfg.EventStore {
	case "postgres":
		pgConfig := eventsourcing.DefaultPostgresEventStoreConfig()
		pgConfig.DSN = cfg.Database.DSN

		if err := applyMigrations(ctx, cfg.Database.DSN, logger); err != nil {
			logger.Warn("failed to apply migrations", zap.Error(err))
		}

		pool, err := eventsourcing.NewPostgresPool(ctx, pgConfig)
		if err != nil {
			return nil, core.Wrap(err, core.ErrInitializationFailed, "connect postgres")
		}
		store := eventsourcing.NewPostgresEventStore(pool, pgConfig, codec)
		s.events = store
		s.checkpoints = eventsourcing.NewPostgresCheckpointStore(pool, pgConfig)
		s.closers = append(s.closers, store)
		if cfg.SnapshotStore == "postgres" {
			s.snapshots = eventsourcing.NewPostgresSnapshotStore(pool, pgConfig)
		}
	case "mongodb":
		mongoConfig := eventsourcing.DefaultMongoDBEventStoreConfig()
		mongoConfig.URI = cfg.MongoDB.URI
		mongoConfig.Database = cfg.MongoDB.Database
		store, err := eventsourcing.NewMongoDBEventStore(ctx, mongoConfig, codec)
		if err != nil {
			return nil, core.Wrap(err, core.ErrInitializationFailed, "connect mongodb")
		}
		s.events = store
		s.checkpoints = eventsourcing.NewMongoDBCheckpointStore(store.Database())
		s.closers = append(s.closers, store)
	default:
		s.events = eventsourcing.NewInMemoryEventStore(eventsourcing.DefaultInMemoryEventStoreConfig())
		s.checkpoints = eventsourcing.NewInMemoryCheckpointStore()
	}

	switch cfg.SnapshotStore {
	case "inmemory":
		s.snapshots = eventsourcing.NewInMemorySnapshotStore()
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, core.Wrap(err, core.ErrInitializationFailed, "connect redis")
		}
		s.redis = client
		s.snapshots = eventsourcing.NewRedisSnapshotStore(client, eventsourcing.DefaultRedisSnapshotStoreConfig())
	}

	logger.Info("stores configured",
		zap.String("event_store", cfg.EventStore),
		zap.String("snapshot_store", cfg.SnapshotStore),
	)
	return s, nil
}

func applyMigrations(ctx context.Context, dsn string, logger *zap.Logger) error {
	db, err := migrations.OpenDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrations.RunMigrations(ctx, db, schema.FS)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.Int("count", applied))
	return nil
}

func (s *stores) repository(cfg *config.Config, logger *zap.Logger) *host.Repository {
	repoConfig := eventsourcing.DefaultRepositoryConfig()
	repoConfig.SnapshotStrategy = snapshotStrategy(cfg)
	repoConfig.OnSnapshotError = func(aggregateID string, err error) {
		logger.Warn("snapshot failed", zap.String("sku_id", aggregateID), zap.Error(err))
	}
	return host.NewRepository(s.events, s.snapshots, repoConfig)
}

func snapshotStrategy(cfg *config.Config) eventsourcing.SnapshotStrategy {
	switch cfg.SnapshotStrategy {
	case "timebased":
		return eventsourcing.NewTimeBasedSnapshotStrategy(cfg.SnapshotInterval)
	case "hybrid":
		return eventsourcing.NewHybridSnapshotStrategy(cfg.SnapshotFrequency, cfg.SnapshotInterval)
	default:
		return eventsourcing.NewFrequencySnapshotStrategy(cfg.SnapshotFrequency)
	}
}

// reorderRelay доставляет запросы на пополнение из журнала событий
func (s *stores) reorderRelay(notifier *notify.ReorderNotifier, cfg *config.Config, logger *zap.Logger) *eventsourcing.ProjectionRunner {
	relayConfig := eventsourcing.DefaultProjectionConfig()
	relayConfig.PollInterval = cfg.RelayInterval
	relayConfig.OnError = func(name string, err error) {
		logger.Warn("relay pass failed, will retry", zap.String("projection", name), zap.Error(err))
	}
	return eventsourcing.NewProjectionRunner(notifier, s.events, s.checkpoints, relayConfig)
}

// healthChecks возвращает проверки для /readyz
func (s *stores) healthChecks() map[string]core.HealthCheckable {
	checks := make(map[string]core.HealthCheckable)
	if check, ok := s.events.(core.HealthCheckable); ok {
		checks["event-store"] = check
	}
	if s.redis != nil {
		checks["snapshot-store"] = redisPing{s.redis}
	}
	return checks
}

type redisPing struct {
	client redis.UniversalClient
}

func (r redisPing) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (s *stores) close(ctx context.Context, logger *zap.Logger) {
	for _, closer := range s.closers {
		if err := closer.Stop(ctx); err != nil {
			logger.Warn("store shutdown", zap.Error(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// newMessageBus создает и запускает адаптер, в который публикуются запросы на пополнение
func newMessageBus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (messagebus.Adapter, error) {
	var busConfig interface{}
	switch cfg.MessageBus {
	case "nats":
		natsConfig := messagebus.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		busConfig = natsConfig
	case "kafka":
		kafkaConfig := messagebus.DefaultKafkaConfig()
		kafkaConfig.Brokers = cfg.Kafka.Brokers
		busConfig = kafkaConfig
	case "redis":
		redisConfig := messagebus.DefaultRedisConfig()
		redisConfig.Addr = cfg.Redis.Addr
		busConfig = redisConfig
	}

	adapter, err := messagebus.NewAdapter(cfg.MessageBus, busConfig)
	if err != nil {
		return nil, fmt.Errorf("create message bus: %w", err)
	}
	if err := adapter.Start(ctx); err != nil {
		return nil, core.Wrap(err, core.ErrInitializationFailed, "start message bus")
	}

	// Без внешнего брокера запросы на пополнение только логируются
	if subscriber, ok := adapter.(transport.Subscriber); ok && cfg.MessageBus == "inmemory" {
		err := subscriber.Subscribe(ctx, cfg.ReorderSubject, func(ctx context.Context, msg *transport.Message) error {
			logger.Info("stock order request", zap.String("subject", msg.Subject), zap.ByteString("payload", msg.Data))
			return nil
		})
		if err != nil {
			_ = adapter.Stop(ctx)
			return nil, fmt.Errorf("subscribe %s: %w", cfg.ReorderSubject, err)
		}
	}

	logger.Info("message bus started", zap.String("type", cfg.MessageBus), zap.String("adapter", adapter.Name()))
	return adapter, nil
}

package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStoreConfig конфигурация для Redis Snapshot Store
type RedisSnapshotStoreConfig struct {
	KeyPrefix string
	// TTL время жизни снапшота, 0 без ограничения
	TTL time.Duration
}

// DefaultRedisSnapshotStoreConfig возвращает конфигурацию по умолчанию
func DefaultRedisSnapshotStoreConfig() RedisSnapshotStoreConfig {
	return RedisSnapshotStoreConfig{
		KeyPrefix: "snapshot:",
	}
}

// RedisSnapshotStore хранит последний снапшот агрегата в Redis в виде JSON
type RedisSnapshotStore struct {
	client redis.UniversalClient
	config RedisSnapshotStoreConfig
}

// NewRedisSnapshotStore создает Redis Snapshot Store
func NewRedisSnapshotStore(client redis.UniversalClient, config RedisSnapshotStoreConfig) *RedisSnapshotStore {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "snapshot:"
	}
	return &RedisSnapshotStore{client: client, config: config}
}

func (s *RedisSnapshotStore) key(aggregateID string) string {
	return s.config.KeyPrefix + aggregateID
}

// SaveSnapshot сохраняет снапшот
func (s *RedisSnapshotStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snapshot.AggregateID), data, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot возвращает последний снапшот или nil
func (s *RedisSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(aggregateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteSnapshots удаляет снапшот, если его версия меньше beforeVersion
func (s *RedisSnapshotStore) DeleteSnapshots(ctx context.Context, aggregateID string, beforeVersion int64) error {
	snapshot, err := s.GetSnapshot(ctx, aggregateID)
	if err != nil || snapshot == nil {
		return err
	}
	if snapshot.Version >= beforeVersion {
		return nil
	}
	if err := s.client.Del(ctx, s.key(aggregateID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

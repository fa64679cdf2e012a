package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akriventsev/potter-inventory/framework/core"
)

// RedisConfig конфигурация для Redis адаптера
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MaxRetries   int
	StreamMaxLen int64 // Максимальная длина stream (0 = без ограничений)
	StreamPrefix string
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MaxRetries:   3,
		StreamMaxLen: 10000,
		StreamPrefix: "stream:",
	}
}

// RedisAdapter публикует сообщения в Redis Streams
type RedisAdapter struct {
	config  RedisConfig
	client  redis.UniversalClient
	owned   bool
	mu      sync.RWMutex
	running bool
}

// NewRedisAdapter создает Redis адаптер с собственным клиентом
func NewRedisAdapter(config RedisConfig) (*RedisAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: config.MaxRetries,
	})
	return &RedisAdapter{config: config, client: client, owned: true}, nil
}

// NewRedisAdapterFromClient создает Redis адаптер поверх существующего клиента
func NewRedisAdapterFromClient(client redis.UniversalClient, config RedisConfig) *RedisAdapter {
	return &RedisAdapter{config: config, client: client}
}

// Start проверяет подключение к Redis
func (r *RedisAdapter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.running = true
	return nil
}

// Stop закрывает собственный клиент
func (r *RedisAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	if r.owned {
		return r.client.Close()
	}
	return nil
}

func (r *RedisAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// HealthCheck проверяет доступность Redis
func (r *RedisAdapter) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) Name() string {
	return "redis-adapter"
}

func (r *RedisAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

func (r *RedisAdapter) streamName(subject string) string {
	return r.config.StreamPrefix + subject
}

// Publish добавляет сообщение в stream (XADD)
func (r *RedisAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	values := map[string]interface{}{
		"data": string(data),
	}
	if len(headers) > 0 {
		headersJSON, err := json.Marshal(headers)
		if err != nil {
			return fmt.Errorf("failed to marshal headers: %w", err)
		}
		values["headers"] = string(headersJSON)
	}

	args := &redis.XAddArgs{
		Stream: r.streamName(subject),
		Values: values,
	}
	if r.config.StreamMaxLen > 0 {
		args.MaxLen = r.config.StreamMaxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

package messagebus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akriventsev/potter-inventory/framework/core"
)

// KafkaConfig конфигурация для Kafka адаптера
type KafkaConfig struct {
	Brokers      []string
	Compression  string // none, gzip, snappy, lz4, zstd
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0, 1, -1 (all)
	MaxAttempts  int
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Compression:  "snappy",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		MaxAttempts:  3,
	}
}

// KafkaAdapter публикует сообщения в Kafka: subject используется как топик
type KafkaAdapter struct {
	config  KafkaConfig
	writer  *kafka.Writer
	mu      sync.RWMutex
	running bool
}

// NewKafkaAdapter создает новый Kafka адаптер
func NewKafkaAdapter(config KafkaConfig) (*KafkaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	return &KafkaAdapter{
		config: config,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
			MaxAttempts:            config.MaxAttempts,
			BatchSize:              config.BatchSize,
			BatchTimeout:           config.BatchTimeout,
			Compression:            getCompression(config.Compression),
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// getCompression преобразует строку в kafka.Compression
func getCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

func (k *KafkaAdapter) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running = true
	return nil
}

// Stop сбрасывает буфер writer и закрывает его
func (k *KafkaAdapter) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.running {
		return nil
	}
	k.running = false
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

func (k *KafkaAdapter) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// HealthCheck проверяет доступность хотя бы одного брокера
func (k *KafkaAdapter) HealthCheck(ctx context.Context) error {
	var lastErr error
	for _, broker := range k.config.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (k *KafkaAdapter) Name() string {
	return "kafka-adapter"
}

func (k *KafkaAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в топик subject.
// Ключом сообщения служит заголовок sku-id или aggregate-id, чтобы сообщения одного SKU
// попадали в одну партицию.
func (k *KafkaAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: subject,
		Value: data,
	}
	if key := partitionKey(headers); key != "" {
		msg.Key = []byte(key)
	}
	if len(headers) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(headers))
		for key, value := range headers {
			msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func partitionKey(headers map[string]string) string {
	if key := headers["sku-id"]; key != "" {
		return key
	}
	return headers["aggregate-id"]
}

package messagebus

import (
	"fmt"
	"sync"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/transport"
)

// Adapter адаптер message bus с управляемым жизненным циклом
type Adapter interface {
	transport.Publisher
	core.Lifecycle
	core.Component
	core.HealthCheckable
}

// AdapterCreator создает адаптер из конфигурации
type AdapterCreator func(config interface{}) (Adapter, error)

// MessageBusFactory фабрика адаптеров по имени типа
type MessageBusFactory struct {
	creators map[string]AdapterCreator
	mu       sync.RWMutex
}

// NewMessageBusFactory создает фабрику с зарегистрированными inmemory, nats, kafka и redis
func NewMessageBusFactory() *MessageBusFactory {
	factory := &MessageBusFactory{creators: make(map[string]AdapterCreator)}

	_ = factory.Register("inmemory", func(config interface{}) (Adapter, error) {
		switch cfg := config.(type) {
		case nil:
			return NewInMemoryAdapter(DefaultInMemoryConfig()), nil
		case InMemoryConfig:
			return NewInMemoryAdapter(cfg), nil
		default:
			return nil, fmt.Errorf("invalid in-memory config type: %T", config)
		}
	})

	_ = factory.Register("nats", func(config interface{}) (Adapter, error) {
		switch cfg := config.(type) {
		case NATSConfig:
			return NewNATSAdapter(cfg)
		case string:
			natsConfig := DefaultNATSConfig()
			natsConfig.URL = cfg
			return NewNATSAdapter(natsConfig)
		default:
			return nil, fmt.Errorf("invalid NATS config type: %T", config)
		}
	})

	_ = factory.Register("kafka", func(config interface{}) (Adapter, error) {
		cfg, ok := config.(KafkaConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Kafka config type: %T", config)
		}
		return NewKafkaAdapter(cfg)
	})

	_ = factory.Register("redis", func(config interface{}) (Adapter, error) {
		cfg, ok := config.(RedisConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Redis config type: %T", config)
		}
		return NewRedisAdapter(cfg)
	})

	return factory
}

// Register регистрирует создателя адаптера
func (f *MessageBusFactory) Register(name string, creator AdapterCreator) error {
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}
	f.creators[name] = creator
	return nil
}

// Create создает адаптер указанного типа
func (f *MessageBusFactory) Create(busType string, config interface{}) (Adapter, error) {
	f.mu.RLock()
	creator, ok := f.creators[busType]
	f.mu.RUnlock()

	if !ok {
		return nil, core.NewError(core.ErrInvalidConfig, fmt.Sprintf("unknown message bus type: %s", busType))
	}
	return creator(config)
}

var defaultFactory = NewMessageBusFactory()

// NewAdapter создает адаптер через фабрику по умолчанию
func NewAdapter(busType string, config interface{}) (Adapter, error) {
	return defaultFactory.Create(busType, config)
}

// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/transport"
)

// InMemoryConfig конфигурация для InMemory адаптера
type InMemoryConfig struct {
	// EnableOrdering синхронная доставка в порядке публикации
	EnableOrdering bool
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{
		EnableOrdering: true,
	}
}

// InMemoryAdapter реализация MessageBus в памяти
type InMemoryAdapter struct {
	config      InMemoryConfig
	subscribers map[string][]transport.MessageHandler
	mu          sync.RWMutex
	running     bool
	wg          sync.WaitGroup
}

// NewInMemoryAdapter создает новый InMemory адаптер
func NewInMemoryAdapter(config InMemoryConfig) *InMemoryAdapter {
	return &InMemoryAdapter{
		config:      config,
		subscribers: make(map[string][]transport.MessageHandler),
	}
}

func (i *InMemoryAdapter) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.running = true
	return nil
}

// Stop останавливает адаптер и дожидается асинхронных обработчиков
func (i *InMemoryAdapter) Stop(ctx context.Context) error {
	i.mu.Lock()
	i.running = false
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *InMemoryAdapter) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.running
}

func (i *InMemoryAdapter) HealthCheck(ctx context.Context) error {
	if !i.IsRunning() {
		return fmt.Errorf("inmemory adapter is not running")
	}
	return nil
}

func (i *InMemoryAdapter) Name() string {
	return "inmemory-adapter"
}

func (i *InMemoryAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение всем подписчикам subject, включая wildcard-подписки
func (i *InMemoryAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	i.mu.RLock()
	var handlers []transport.MessageHandler
	for pattern, h := range i.subscribers {
		if matchSubject(subject, pattern) {
			handlers = append(handlers, h...)
		}
	}
	i.mu.RUnlock()

	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	msg := &transport.Message{
		Subject: subject,
		Data:    append([]byte(nil), data...),
		Headers: copied,
	}

	if !i.config.EnableOrdering {
		for _, handler := range handlers {
			i.wg.Add(1)
			go func(h transport.MessageHandler) {
				defer i.wg.Done()
				_ = h(ctx, msg)
			}(handler)
		}
		return nil
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("in-memory delivery to %s failed: %w", subject, errors.Join(errs...))
	}
	return nil
}

// Subscribe подписывается на subject
func (i *InMemoryAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subscribers[subject] = append(i.subscribers[subject], handler)
	return nil
}

// Unsubscribe отписывается от subject
func (i *InMemoryAdapter) Unsubscribe(subject string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.subscribers, subject)
	return nil
}

// GetSubscriberCount возвращает количество подписчиков для subject (для тестирования)
func (i *InMemoryAdapter) GetSubscriberCount(subject string) int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.subscribers[subject])
}

// matchSubject проверяет соответствие subject с wildcard паттерном.
// Поддерживает NATS-style wildcards: * (один токен) и > (все оставшиеся токены).
func matchSubject(subject, pattern string) bool {
	if subject == pattern {
		return true
	}
	subjectParts := strings.Split(subject, ".")
	patternParts := strings.Split(pattern, ".")

	for idx, part := range patternParts {
		if part == ">" {
			return idx < len(subjectParts)
		}
		if idx >= len(subjectParts) {
			return false
		}
		if part != "*" && part != subjectParts[idx] {
			return false
		}
	}
	return len(patternParts) == len(subjectParts)
}

package messagebus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/transport"
)

// NATSConfig конфигурация для NATS адаптера
type NATSConfig struct {
	URL               string
	Name              string
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionTimeout time.Duration
	Token             string
	Username          string
	Password          string
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               nats.DefaultURL,
		Name:              "product-service",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		ConnectionTimeout: 5 * time.Second,
	}
}

// NATSAdapter реализация MessageBus через NATS
type NATSAdapter struct {
	config  NATSConfig
	conn    *nats.Conn
	subs    map[string]*nats.Subscription
	mu      sync.RWMutex
	running bool
}

// NewNATSAdapter создает NATS адаптер. Подключение выполняется в Start.
func NewNATSAdapter(config NATSConfig) (*NATSAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid nats config: %w", err)
	}
	return &NATSAdapter{
		config: config,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// NewNATSAdapterFromConn создает NATS адаптер из существующего подключения
func NewNATSAdapterFromConn(conn *nats.Conn) *NATSAdapter {
	return &NATSAdapter{
		config:  DefaultNATSConfig(),
		conn:    conn,
		subs:    make(map[string]*nats.Subscription),
		running: true,
	}
}

// Start подключается к NATS
func (n *NATSAdapter) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}

	opts := []nats.Option{
		nats.Name(n.config.Name),
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(n.config.ConnectionTimeout),
	}
	if n.config.Token != "" {
		opts = append(opts, nats.Token(n.config.Token))
	}
	if n.config.Username != "" && n.config.Password != "" {
		opts = append(opts, nats.UserInfo(n.config.Username, n.config.Password))
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.conn = conn
	n.running = true
	return nil
}

// Stop отписывается и закрывает соединение после drain
func (n *NATSAdapter) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	for subject, sub := range n.subs {
		_ = sub.Unsubscribe()
		delete(n.subs, subject)
	}

	if n.conn != nil && n.conn.IsConnected() {
		_ = n.conn.Drain()
	}
	if n.conn != nil {
		n.conn.Close()
	}

	n.running = false
	return nil
}

func (n *NATSAdapter) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// HealthCheck проверяет, что соединение с NATS установлено
func (n *NATSAdapter) HealthCheck(ctx context.Context) error {
	conn, err := n.connection()
	if err != nil {
		return err
	}
	if !conn.IsConnected() {
		return fmt.Errorf("nats connection status: %s", conn.Status())
	}
	return nil
}

func (n *NATSAdapter) Name() string {
	return "nats-adapter"
}

func (n *NATSAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

func (n *NATSAdapter) connection() (*nats.Conn, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.conn == nil {
		return nil, fmt.Errorf("nats adapter is not connected")
	}
	return n.conn, nil
}

// Publish публикует сообщение в subject
func (n *NATSAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	conn, err := n.connection()
	if err != nil {
		return err
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe подписывается на subject
func (n *NATSAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	conn, err := n.connection()
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		headers := make(map[string]string, len(msg.Header))
		for k := range msg.Header {
			headers[k] = msg.Header.Get(k)
		}
		_ = handler(ctx, &transport.Message{
			Subject: msg.Subject,
			Data:    msg.Data,
			Headers: headers,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.mu.Lock()
	n.subs[subject] = sub
	n.mu.Unlock()
	return nil
}

// Unsubscribe отписывается от subject
func (n *NATSAdapter) Unsubscribe(subject string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, ok := n.subs[subject]
	if !ok {
		return nil
	}
	delete(n.subs, subject)
	return sub.Unsubscribe()
}

// Package notify публикует запросы на пополнение склада во внешний message bus.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-inventory/framework/events"
	"github.com/akriventsev/potter-inventory/framework/eventsourcing"
	"github.com/akriventsev/potter-inventory/framework/metrics"
	"github.com/akriventsev/potter-inventory/framework/transport"
	"github.com/akriventsev/potter-inventory/internal/host"
	"github.com/akriventsev/potter-inventory/internal/product"
)

// DefaultSubject subject (топик, stream) запросов на пополнение
const DefaultSubject = "inventory.stock-orders.requested"

// Заголовки сообщения
const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderSkuID         = "sku-id"
	HeaderCorrelationID = "correlation-id"
)

// StockOrderRequest сообщение о необходимости оформить заказ на пополнение
type StockOrderRequest struct {
	StockOrderID  string    `json:"stockOrderId"`
	SkuID         string    `json:"skuId"`
	SkuName       string    `json:"skuName"`
	QuantityTotal int       `json:"quantityTotal"`
	RequestedAt   time.Time `json:"requestedAt"`
}

// DefaultName имя notifier как проекции, под ним хранится позиция доставки
const DefaultName = "reorder-notifier"

// Config конфигурация ReorderNotifier
type Config struct {
	Name          string
	Subject       string
	TransportName string
	RetryPolicy   transport.RetryPolicy
}

// ReorderNotifier проекция, которая публикует CreateStockOrderRequested
// из журнала событий. Запускается через eventsourcing.ProjectionRunner,
// поэтому каждый запрос доставляется не реже одного раза.
type ReorderNotifier struct {
	publisher transport.Publisher
	config    Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewReorderNotifier создает ReorderNotifier. metrics может быть nil.
func NewReorderNotifier(publisher transport.Publisher, config Config, logger *zap.Logger, m *metrics.Metrics) *ReorderNotifier {
	if config.Name == "" {
		config.Name = DefaultName
	}
	if config.Subject == "" {
		config.Subject = DefaultSubject
	}
	if config.TransportName == "" {
		config.TransportName = "unknown"
	}
	if config.RetryPolicy == nil {
		config.RetryPolicy = transport.DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReorderNotifier{
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   m,
	}
}

// Name реализует eventsourcing.Projection
func (n *ReorderNotifier) Name() string {
	return n.config.Name
}

// HandleEvent реализует eventsourcing.Projection
func (n *ReorderNotifier) HandleEvent(ctx context.Context, event eventsourcing.StoredEvent) error {
	if event.EventType != product.EventTypeCreateStockOrderRequested || event.EventData == nil {
		return nil
	}
	return n.Handle(ctx, event.EventData)
}

// Handle публикует StockOrderRequest для события CreateStockOrderRequested.
// Остальные события игнорируются.
func (n *ReorderNotifier) Handle(ctx context.Context, event events.Event) error {
	env, ok := event.(*host.Envelope)
	if !ok {
		return nil
	}
	requested, ok := env.Payload.(product.CreateStockOrderRequested)
	if !ok {
		return nil
	}

	if n.metrics != nil {
		n.metrics.RecordReorder(ctx, requested.SkuID)
	}

	data, err := json.Marshal(StockOrderRequest{
		StockOrderID:  requested.StockOrderID,
		SkuID:         requested.SkuID,
		SkuName:       requested.SkuName,
		QuantityTotal: requested.QuantityTotal,
		RequestedAt:   env.OccurredAt(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stock order request: %w", err)
	}

	headers := map[string]string{
		HeaderEventID:   env.EventID(),
		HeaderEventType: env.EventType(),
		HeaderSkuID:     requested.SkuID,
	}
	if correlationID := env.Metadata().CorrelationID(); correlationID != "" {
		headers[HeaderCorrelationID] = correlationID
	}

	err = transport.PublishWithRetry(ctx, n.publisher, n.config.RetryPolicy, n.config.Subject, data, headers)
	if n.metrics != nil {
		n.metrics.RecordPublish(ctx, n.config.TransportName, n.config.Subject, err == nil)
	}
	if err != nil {
		n.logger.Error("failed to publish stock order request",
			zap.String("sku_id", requested.SkuID),
			zap.String("stock_order_id", requested.StockOrderID),
			zap.String("subject", n.config.Subject),
			zap.Error(err),
		)
		return fmt.Errorf("publish stock order request %s: %w", requested.StockOrderID, err)
	}

	n.logger.Info("stock order requested",
		zap.String("sku_id", requested.SkuID),
		zap.String("stock_order_id", requested.StockOrderID),
		zap.Int("quantity", requested.QuantityTotal),
	)
	return nil
}

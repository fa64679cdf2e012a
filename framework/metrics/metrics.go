// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName имя meter сервиса
const MeterName = "potter-inventory"

// Metrics сборщик метрик приложения
type Metrics struct {
	meter           metric.Meter
	commandsTotal   metric.Int64Counter
	queriesTotal    metric.Int64Counter
	eventsTotal     metric.Int64Counter
	reordersTotal   metric.Int64Counter
	publishTotal    metric.Int64Counter
	commandDuration metric.Float64Histogram
	queryDuration   metric.Float64Histogram
	errorsTotal     metric.Int64Counter
	activeCommands  metric.Int64UpDownCounter
}

// NewMetrics создает сборщик метрик на глобальном MeterProvider
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider создает сборщик метрик на указанном MeterProvider
func NewMetricsWithProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(MeterName)
	m := &Metrics{meter: meter}

	var err error
	if m.commandsTotal, err = meter.Int64Counter(
		"commands_total",
		metric.WithDescription("Total number of commands processed"),
	); err != nil {
		return nil, err
	}
	if m.queriesTotal, err = meter.Int64Counter(
		"queries_total",
		metric.WithDescription("Total number of queries processed"),
	); err != nil {
		return nil, err
	}
	if m.eventsTotal, err = meter.Int64Counter(
		"events_total",
		metric.WithDescription("Total number of events committed"),
	); err != nil {
		return nil, err
	}
	if m.reordersTotal, err = meter.Int64Counter(
		"stock_reorders_total",
		metric.WithDescription("Total number of stock orders requested by the reorder policy"),
	); err != nil {
		return nil, err
	}
	if m.publishTotal, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published to the message bus"),
	); err != nil {
		return nil, err
	}
	if m.commandDuration, err = meter.Float64Histogram(
		"command_duration_seconds",
		metric.WithDescription("Command processing duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.queryDuration, err = meter.Float64Histogram(
		"query_duration_seconds",
		metric.WithDescription("Query processing duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.errorsTotal, err = meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	); err != nil {
		return nil, err
	}
	if m.activeCommands, err = meter.Int64UpDownCounter(
		"active_commands",
		metric.WithDescription("Number of active commands being processed"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCommand записывает метрику команды
func (m *Metrics) RecordCommand(ctx context.Context, commandName string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("command", commandName),
		attribute.Bool("success", success),
	}

	m.commandsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.commandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "command"),
			attribute.String("command", commandName),
		))
	}
}

// RecordQuery записывает метрику запроса
func (m *Metrics) RecordQuery(ctx context.Context, queryName string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("query", queryName),
		attribute.Bool("success", success),
	}

	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordEvent записывает метрику сохраненного события
func (m *Metrics) RecordEvent(ctx context.Context, eventType string) {
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventType)))
}

// RecordReorder записывает дозаказ по SKU
func (m *Metrics) RecordReorder(ctx context.Context, skuID string) {
	m.reordersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("sku_id", skuID)))
}

// RecordPublish записывает метрику публикации в message bus
func (m *Metrics) RecordPublish(ctx context.Context, transportName, subject string, success bool) {
	m.publishTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transportName),
		attribute.String("subject", subject),
		attribute.Bool("success", success),
	))
	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", "transport"),
			attribute.String("transport", transportName),
		))
	}
}

// IncrementActiveCommands увеличивает счетчик активных команд
func (m *Metrics) IncrementActiveCommands(ctx context.Context) {
	m.activeCommands.Add(ctx, 1)
}

// DecrementActiveCommands уменьшает счетчик активных команд
func (m *Metrics) DecrementActiveCommands(ctx context.Context) {
	m.activeCommands.Add(ctx, -1)
}

package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	// ExporterType prometheus или none
	ExporterType  string
	ResourceAttrs map[string]string
}

// Provider MeterProvider вместе с HTTP handler для выдачи метрик
type Provider struct {
	MeterProvider *metric.MeterProvider
	handler       http.Handler
}

// Handler возвращает HTTP handler метрик в формате Prometheus
func (p *Provider) Handler() http.Handler {
	if p.handler == nil {
		return http.NotFoundHandler()
	}
	return p.handler
}

// Shutdown корректно завершает работу метрик
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}

// SetupMetrics настраивает экспорт метрик и устанавливает глобальный MeterProvider
func SetupMetrics(config *MetricsConfig) (*Provider, error) {
	if config == nil {
		config = &MetricsConfig{ExporterType: "prometheus"}
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(buildResourceAttributes(config.ResourceAttrs)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []metric.Option{metric.WithResource(res)}
	var handler http.Handler

	switch config.ExporterType {
	case "prometheus":
		// Отдельный registry, чтобы повторная настройка не конфликтовала с глобальным
		registry := promclient.NewRegistry()
		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, metric.WithReader(exporter))
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", config.ExporterType)
	}

	provider := metric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &Provider{MeterProvider: provider, handler: handler}, nil
}

// buildResourceAttributes строит resource attributes
func buildResourceAttributes(attrs map[string]string) []attribute.KeyValue {
	result := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, attribute.String(k, v))
	}
	return result
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	eventadapters "github.com/akriventsev/potter-inventory/framework/adapters/events"
	"github.com/akriventsev/potter-inventory/framework/events"
	"github.com/akriventsev/potter-inventory/framework/metrics"
	"github.com/akriventsev/potter-inventory/framework/observability"
	"github.com/akriventsev/potter-inventory/framework/transport"
	"github.com/akriventsev/potter-inventory/internal/api"
	"github.com/akriventsev/potter-inventory/internal/config"
	"github.com/akriventsev/potter-inventory/internal/host"
	"github.com/akriventsev/potter-inventory/internal/logging"
	"github.com/akriventsev/potter-inventory/internal/notify"
	"github.com/akriventsev/potter-inventory/internal/product"
)

const serviceName = "product-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := observability.NewTracingManager(observability.TracingConfig{
		Enabled:          cfg.Tracing.Exporter != "none",
		ServiceName:      serviceName,
		Exporter:         cfg.Tracing.Exporter,
		ExporterEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:     1.0,
		Environment:      cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	_ = tracing.Start(ctx)

	metricsProvider, err := metrics.SetupMetrics(&metrics.MetricsConfig{
		ExporterType:  "prometheus",
		ResourceAttrs: map[string]string{"service.name": serviceName, "deployment.environment": cfg.Environment},
	})
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}
	m, err := metrics.NewMetricsWithProvider(metricsProvider.MeterProvider)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	storage, err := newStores(ctx, cfg, logger)
	if err != nil {
		return err
	}

	adapter, err := newMessageBus(ctx, cfg, logger)
	if err != nil {
		return err
	}

	dlq, err := eventadapters.NewMessageBusDeadLetterQueue(adapter, cfg.DeadLetterSubject)
	if err != nil {
		return fmt.Errorf("create dead letter queue: %w", err)
	}
	bus := events.NewInMemoryEventBus().
		WithMiddleware(observability.EventTracingMiddleware()).
		WithDeadLetterQueue(dlq)
	notifier := notify.NewReorderNotifier(adapter, notify.Config{
		Subject:       cfg.ReorderSubject,
		TransportName: cfg.MessageBus,
	}, logger.Named("notify"), m)
	relay := storage.reorderRelay(notifier, cfg, logger.Named("relay"))
	if err := bus.Subscribe(product.EventTypeCreateStockOrderRequested, relay.TriggerHandler(product.EventTypeCreateStockOrderRequested)); err != nil {
		return fmt.Errorf("register reorder relay: %w", err)
	}
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		_ = relay.Run(relayCtx)
	}()
	if cfg.PublishEvents {
		forwarder, err := eventadapters.NewMessageBusEventAdapter(eventadapters.MessageBusEventConfig{
			Bus:           adapter,
			SubjectPrefix: cfg.EventsSubjectPrefix,
			RetryPolicy:   transport.DefaultRetryPolicy(),
		})
		if err != nil {
			return fmt.Errorf("create event forwarder: %w", err)
		}
		if err := bus.Subscribe(events.WildcardEventType, forwarder.Handler()); err != nil {
			return fmt.Errorf("register event forwarder: %w", err)
		}
	}

	aggregate := product.NewAggregate(product.WithStockOrderSize(cfg.ReorderQuantity))
	runtime := host.NewRuntime(aggregate, storage.repository(cfg, logger),
		host.WithEventBus(bus),
		host.WithLogger(logger.Named("host")),
		host.WithMetrics(m),
	)

	healthChecks := storage.healthChecks()
	healthChecks["message-bus"] = adapter

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.NewRouter(api.RouterConfig{
			Service:        runtime,
			Logger:         logger.Named("http"),
			MetricsHandler: metricsProvider.Handler(),
			ServiceName:    serviceName,
			HealthChecks:   healthChecks,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, healthServer := api.NewGRPCServer()
	grpcListener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server started", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc server started", zap.String("addr", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	api.SetServing(healthServer, true)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	api.SetServing(healthServer, false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	if err := bus.Shutdown(shutdownCtx); err != nil {
		logger.Warn("event bus shutdown", zap.Error(err))
	}
	stopRelay()
	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		logger.Warn("relay shutdown", zap.Error(shutdownCtx.Err()))
	}
	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.Warn("message bus shutdown", zap.Error(err))
	}
	storage.close(shutdownCtx, logger)
	if err := metricsProvider.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown", zap.Error(err))
	}
	if err := tracing.Stop(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}

	logger.Info("service stopped")
	return runErr
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/observability"
)

const readinessTimeout = 2 * time.Second

// RouterConfig зависимости HTTP роутера
type RouterConfig struct {
	Service        Service
	Logger         *zap.Logger
	MetricsHandler http.Handler
	ServiceName    string
	// HealthChecks компоненты, проверяемые в /readyz, по имени
	HealthChecks map[string]core.HealthCheckable
}

// NewRouter создает gin роутер с маршрутами продукта, /healthz, /readyz и /metrics
func NewRouter(config RouterConfig) *gin.Engine {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = observability.TracerName
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		observability.CorrelationIDMiddleware(),
		observability.HTTPTracingMiddleware(serviceName),
		requestLogger(logger),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", readiness(config.HealthChecks, logger))
	if config.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(config.MetricsHandler))
	}

	h := NewHandler(config.Service, logger)
	products := router.Group("/product/:skuId")
	{
		products.GET("", h.GetProduct)
		products.GET("/events", h.GetEvents)
		products.PUT("/create", h.CreateProduct)
		products.PUT("/add-stock-order", h.AddStockOrder)
		products.PUT("/update-stock-order", h.UpdateStockOrder)
		products.PUT("/update-units-back-ordered", h.UpdateUnitsBackOrdered)
	}

	return router
}

func readiness(checks map[string]core.HealthCheckable, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		failed := gin.H{}
		for name, check := range checks {
			if err := check.HealthCheck(ctx); err != nil {
				logger.Warn("readiness check failed", zap.String("component", name), zap.Error(err))
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

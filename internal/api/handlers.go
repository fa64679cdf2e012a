// Package api HTTP и gRPC поверхность product-service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/akriventsev/potter-inventory/framework/core"
	"github.com/akriventsev/potter-inventory/framework/observability"
	"github.com/akriventsev/potter-inventory/internal/host"
	"github.com/akriventsev/potter-inventory/internal/product"
)

// Service операции над продуктами, которые обслуживает API
type Service interface {
	Execute(ctx context.Context, cmd product.Command) (product.State, error)
	Get(ctx context.Context, skuID string) (product.State, error)
	Replay(ctx context.Context, skuID string) ([]host.HistoryEntry, error)
}

// Handler HTTP handlers продуктов
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создает Handler
func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

type createProductRequest struct {
	SkuID          string          `json:"skuId"`
	SkuName        string          `json:"skuName"`
	SkuDescription string          `json:"skuDescription"`
	SkuPrice       decimal.Decimal `json:"skuPrice"`
}

type addStockOrderRequest struct {
	StockOrderID  string `json:"stockOrderId"`
	QuantityTotal int    `json:"quantityTotal"`
}

type updateStockOrderRequest struct {
	StockOrderID    string `json:"stockOrderId"`
	QuantityOrdered int    `json:"quantityOrdered"`
}

type updateBackOrderedRequest struct {
	BackOrderedLot product.BackOrderedLot `json:"backOrderedLot"`
}

// CreateProduct PUT /product/:skuId/create
func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	skuID := c.Param("skuId")
	if req.SkuID != "" && req.SkuID != skuID {
		writeError(c, core.NewError(core.ErrInvalidArgument, "skuId in body does not match path"))
		return
	}

	h.execute(c, product.CreateProduct{
		SkuID:          skuID,
		SkuName:        req.SkuName,
		SkuDescription: req.SkuDescription,
		SkuPrice:       req.SkuPrice,
	})
}

// AddStockOrder PUT /product/:skuId/add-stock-order
func (h *Handler) AddStockOrder(c *gin.Context) {
	var req addStockOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.execute(c, product.AddStockOrder{
		StockOrderID:  req.StockOrderID,
		SkuID:         c.Param("skuId"),
		QuantityTotal: req.QuantityTotal,
	})
}

// UpdateStockOrder PUT /product/:skuId/update-stock-order
func (h *Handler) UpdateStockOrder(c *gin.Context) {
	var req updateStockOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.execute(c, product.UpdateStockOrder{
		StockOrderID:    req.StockOrderID,
		SkuID:           c.Param("skuId"),
		QuantityOrdered: req.QuantityOrdered,
	})
}

// UpdateUnitsBackOrdered PUT /product/:skuId/update-units-back-ordered
func (h *Handler) UpdateUnitsBackOrdered(c *gin.Context) {
	var req updateBackOrderedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.execute(c, product.UpdateProductsBackOrdered{
		SkuID:          c.Param("skuId"),
		BackOrderedLot: req.BackOrderedLot,
	})
}

// GetProduct GET /product/:skuId
func (h *Handler) GetProduct(c *gin.Context) {
	state, err := h.service.Get(c.Request.Context(), c.Param("skuId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetEvents GET /product/:skuId/events
func (h *Handler) GetEvents(c *gin.Context) {
	history, err := h.service.Replay(c.Request.Context(), c.Param("skuId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) execute(c *gin.Context, cmd product.Command) {
	if _, err := h.service.Execute(c.Request.Context(), cmd); err != nil {
		if toStatus(err).Code() == codes.Internal {
			h.logger.Error("command failed",
				zap.String("sku_id", cmd.AggregateID()),
				zap.String("command", cmd.CommandName()),
				zap.Error(err),
			)
		}
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, "OK")
}

// requestLogger логирует каждый запрос
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("correlation_id", observability.CorrelationID(c.Request.Context())),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Error(c.Errors.Last().Err))
		}
		logger.Info("http request", fields...)
	}
}

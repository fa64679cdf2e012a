package product

import "github.com/shopspring/decimal"

// Типы событий продукта
const (
	EventTypeCreated                    = "product.created"
	EventTypeAddedStockOrder            = "product.stock_order.added"
	EventTypeUpdatedStockOrder          = "product.stock_order.updated"
	EventTypeUpdatedProductsBackOrdered = "product.back_ordered.updated"
	EventTypeCreateStockOrderRequested  = "product.stock_order.requested"
)

// Event закрытое множество событий продукта.
// Реализации объявлены только в этом пакете, Fold обрабатывает каждую из них.
type Event interface {
	EventType() string
	isProductEvent()
}

// Created продукт создан или его описание перезаписано
type Created struct {
	SkuID          string          `json:"skuId"`
	SkuName        string          `json:"skuName"`
	SkuDescription string          `json:"skuDescription"`
	SkuPrice       decimal.Decimal `json:"skuPrice"`
}

// AddedStockOrder добавлен заказ на пополнение
type AddedStockOrder struct {
	StockOrderID  string `json:"stockOrderId"`
	SkuID         string `json:"skuId"`
	QuantityTotal int    `json:"quantityTotal"`
}

// UpdatedStockOrder изменено заказанное количество по заказу на пополнение
type UpdatedStockOrder struct {
	StockOrderID    string `json:"stockOrderId"`
	SkuID           string `json:"skuId"`
	QuantityOrdered int    `json:"quantityOrdered"`
}

// UpdatedProductsBackOrdered обновлена партия отложенного спроса
type UpdatedProductsBackOrdered struct {
	SkuID          string         `json:"skuId"`
	BackOrderedLot BackOrderedLot `json:"backOrderedLot"`
}

// CreateStockOrderRequested уведомление для внешних потребителей:
// нужно оформить заказ на пополнение. На состояние не влияет.
type CreateStockOrderRequested struct {
	StockOrderID  string `json:"stockOrderId"`
	SkuID         string `json:"skuId"`
	SkuName       string `json:"skuName"`
	QuantityTotal int    `json:"quantityTotal"`
}

func (Created) EventType() string { return EventTypeCreated }
func (AddedStockOrder) EventType() string { return EventTypeAddedStockOrder }
func (UpdatedStockOrder) EventType() string { return EventTypeUpdatedStockOrder }
func (UpdatedProductsBackOrdered) EventType() string { return EventTypeUpdatedProductsBackOrdered }
func (CreateStockOrderRequested) EventType() string { return EventTypeCreateStockOrderRequested }

func (Created) isProductEvent() {}
func (AddedStockOrder) isProductEvent() {}
func (UpdatedStockOrder) isProductEvent() {}
func (UpdatedProductsBackOrdered) isProductEvent() {}
func (CreateStockOrderRequested) isProductEvent() {}

package product

import "github.com/shopspring/decimal"

// Command закрытое множество команд продукта. Команды не сохраняются.
type Command interface {
	// CommandName имя команды для логов и метрик
	CommandName() string
	// AggregateID идентификатор агрегата (skuId), по которому хост маршрутизирует команду
	AggregateID() string
	isProductCommand()
}

// CreateProduct создает продукт или перезаписывает его описание и цену
type CreateProduct struct {
	SkuID          string          `json:"skuId"`
	SkuName        string          `json:"skuName"`
	SkuDescription string          `json:"skuDescription"`
	SkuPrice       decimal.Decimal `json:"skuPrice"`
}

// AddStockOrder регистрирует новый заказ на пополнение
type AddStockOrder struct {
	StockOrderID  string `json:"stockOrderId"`
	SkuID         string `json:"skuId"`
	QuantityTotal int    `json:"quantityTotal"`
}

// UpdateStockOrder фиксирует заказанное из заказа на пополнение количество
type UpdateStockOrder struct {
	StockOrderID    string `json:"stockOrderId"`
	SkuID           string `json:"skuId"`
	QuantityOrdered int    `json:"quantityOrdered"`
}

// UpdateProductsBackOrdered заменяет партию отложенного спроса
type UpdateProductsBackOrdered struct {
	SkuID          string         `json:"skuId"`
	BackOrderedLot BackOrderedLot `json:"backOrderedLot"`
}

func (CreateProduct) CommandName() string { return "CreateProduct" }
func (AddStockOrder) CommandName() string { return "AddStockOrder" }
func (UpdateStockOrder) CommandName() string { return "UpdateStockOrder" }
func (UpdateProductsBackOrdered) CommandName() string { return "UpdateProductsBackOrdered" }

func (c CreateProduct) AggregateID() string { return c.SkuID }
func (c AddStockOrder) AggregateID() string { return c.SkuID }
func (c UpdateStockOrder) AggregateID() string { return c.SkuID }
func (c UpdateProductsBackOrdered) AggregateID() string { return c.SkuID }

func (CreateProduct) isProductCommand() {}
func (AddStockOrder) isProductCommand() {}
func (UpdateStockOrder) isProductCommand() {}
func (UpdateProductsBackOrdered) isProductCommand() {}

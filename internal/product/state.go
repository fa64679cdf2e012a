// Package product реализует event-sourced агрегат складского товара (SKU):
// валидацию команд, вывод состояния из истории событий и политику дозаказа.
//
// Пакет не выполняет I/O и не содержит блокировок: все функции чистые,
// сериализацию команд по идентификатору обеспечивает хост (internal/host).
package product

import "github.com/shopspring/decimal"

// StockOrder заказ на пополнение, дающий QuantityAvailable доступных единиц
type StockOrder struct {
	StockOrderID      string `json:"stockOrderId"`
	QuantityTotal     int    `json:"quantityTotal"`
	QuantityOrdered   int    `json:"quantityOrdered"`
	QuantityAvailable int    `json:"quantityAvailable"`
}

// BackOrderedLot неудовлетворенный спрос, ожидающий поставки
type BackOrderedLot struct {
	BackOrderedLotID    string `json:"backOrderedLotId"`
	QuantityBackOrdered int    `json:"quantityBackOrdered"`
}

// State производное состояние товара. Изменяется только через Fold.
type State struct {
	SkuID           string           `json:"skuId"`
	SkuName         string           `json:"skuName"`
	SkuDescription  string           `json:"skuDescription"`
	SkuPrice        decimal.Decimal  `json:"skuPrice"`
	Available       int              `json:"available"`
	BackOrdered     int              `json:"backOrdered"`
	StockOrders     []StockOrder     `json:"stockOrders"`
	BackOrderedLots []BackOrderedLot `json:"backOrderedLots"`
}

// EmptyState возвращает состояние еще не созданного агрегата
func EmptyState() State {
	return State{
		StockOrders:     []StockOrder{},
		BackOrderedLots: []BackOrderedLot{},
	}
}

// IsEmpty сообщает, что агрегат еще не создан
func (s State) IsEmpty() bool {
	return s.SkuID == ""
}

// stockOrderIndex возвращает позицию заказа или -1
func (s State) stockOrderIndex(stockOrderID string) int {
	for i, so := range s.StockOrders {
		if so.StockOrderID == stockOrderID {
			return i
		}
	}
	return -1
}

func sumAvailable(orders []StockOrder) int {
	total := 0
	for _, so := range orders {
		total += so.QuantityAvailable
	}
	return total
}

func sumBackOrdered(lots []BackOrderedLot) int {
	total := 0
	for _, lot := range lots {
		total += lot.QuantityBackOrdered
	}
	return total
}

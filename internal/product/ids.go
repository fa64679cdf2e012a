package product

import (
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator выдает идентификаторы заказов на пополнение, создаваемых политикой дозаказа
type IDGenerator interface {
	NewStockOrderID(skuID string) string
}

// IDGeneratorFunc адаптер функции к IDGenerator
type IDGeneratorFunc func(skuID string) string

func (f IDGeneratorFunc) NewStockOrderID(skuID string) string {
	return f(skuID)
}

// UUIDGenerator формирует идентификатор вида "<skuId>-<uuid>"
type UUIDGenerator struct{}

func (UUIDGenerator) NewStockOrderID(skuID string) string {
	return fmt.Sprintf("%s-%s", skuID, uuid.NewString())
}

package product

import "github.com/akriventsev/potter-inventory/framework/core"

// Ошибки агрегата. Сравнивать через errors.Is: сравнение идет по коду.
var (
	ErrInvalidArgument = core.Sentinel(core.ErrInvalidArgument)
	ErrNotFound        = core.Sentinel(core.ErrNotFound)
)

const (
	msgSkuIDRequired   = "Cannot create Product without skuId"
	msgProductNotFound = "Product not found"
)

func invalidArgument(message string) error {
	return core.NewError(core.ErrInvalidArgument, message)
}

func notFound(message string) error {
	return core.NewError(core.ErrNotFound, message)
}

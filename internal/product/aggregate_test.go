package product

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-inventory/framework/core"
)

func fixedIDs(ids ...string) IDGenerator {
	i := 0
	return IDGeneratorFunc(func(skuID string) string {
		id := ids[i]
		i++
		return id
	})
}

// handleAndFold выполняет команду и применяет полученные события
func handleAndFold(t *testing.T, a *Aggregate, s State, cmd Command) (State, []Event) {
	t.Helper()
	events, err := a.Handle(s, cmd)
	require.NoError(t, err)
	return FoldAll(s, events...), events
}

func productWithStock(t *testing.T, a *Aggregate, quantityTotal int) State {
	t.Helper()
	s, _ := handleAndFold(t, a, EmptyState(), CreateProduct{SkuID: "sku-1", SkuName: "Widget", SkuPrice: decimal.RequireFromString("9.99")})
	s, _ = handleAndFold(t, a, s, AddStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityTotal: quantityTotal})
	return s
}

func TestAggregate_CreateValidation(t *testing.T) {
	a := NewAggregate()

	events, err := a.Handle(EmptyState(), CreateProduct{SkuID: ""})
	require.Error(t, err)
	assert.Nil(t, events)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, core.ErrInvalidArgument, core.CodeOf(err))
	assert.Contains(t, err.Error(), "Cannot create Product without skuId")

	s, events := handleAndFold(t, a, EmptyState(), CreateProduct{SkuID: "sku-1", SkuName: "Widget", SkuDescription: "A widget", SkuPrice: decimal.RequireFromString("1.25")})
	require.Len(t, events, 1)
	assert.IsType(t, Created{}, events[0])
	assert.False(t, s.IsEmpty())
	assert.Zero(t, s.Available)
	assert.Zero(t, s.BackOrdered)
}

func TestAggregate_QueryEmptyState(t *testing.T) {
	a := NewAggregate()

	_, err := a.Query(EmptyState())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, core.ErrNotFound, core.CodeOf(err))

	s := productWithStock(t, a, 10)
	got, err := a.Query(s)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestAggregate_AddStockOrder(t *testing.T) {
	a := NewAggregate()
	s := productWithStock(t, a, 30)

	events, err := a.Handle(s, AddStockOrder{StockOrderID: "so-2", SkuID: "sku-1", QuantityTotal: 5})
	require.NoError(t, err)
	assert.Equal(t, []Event{AddedStockOrder{StockOrderID: "so-2", SkuID: "sku-1", QuantityTotal: 5}}, events)
	assert.Equal(t, 35, FoldAll(s, events...).Available)
}

func TestAggregate_ReorderOnStockUpdate(t *testing.T) {
	a := NewAggregate(WithIDGenerator(fixedIDs("sku-1-reorder")))
	s := productWithStock(t, a, 100)

	next, events := handleAndFold(t, a, s, UpdateStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityOrdered: 60})

	assert.Equal(t, []Event{
		UpdatedStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityOrdered: 60},
		AddedStockOrder{StockOrderID: "sku-1-reorder", SkuID: "sku-1", QuantityTotal: 100},
		CreateStockOrderRequested{StockOrderID: "sku-1-reorder", SkuID: "sku-1", SkuName: "Widget", QuantityTotal: 100},
	}, events)
	assert.Equal(t, 140, next.Available)
	assertInvariants(t, next)
}

func TestAggregate_NoReorderAtThreshold(t *testing.T) {
	a := NewAggregate(WithIDGenerator(IDGeneratorFunc(func(string) string {
		t.Fatal("id generator must not be called")
		return ""
	})))
	s := productWithStock(t, a, 100)

	for _, ordered := range []int{30, 50} {
		events, err := a.Handle(s, UpdateStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityOrdered: ordered})
		require.NoError(t, err)
		require.Len(t, events, 1, "quantityOrdered=%d", ordered)
		assert.IsType(t, UpdatedStockOrder{}, events[0])
	}
}

func TestAggregate_ReorderOnBackOrder(t *testing.T) {
	a := NewAggregate(WithIDGenerator(fixedIDs("sku-1-reorder")))
	s := productWithStock(t, a, 50)
	require.Equal(t, 50, s.Available)

	next, events := handleAndFold(t, a, s, UpdateProductsBackOrdered{
		SkuID:          "sku-1",
		BackOrderedLot: BackOrderedLot{BackOrderedLotID: "lot-1", QuantityBackOrdered: 60},
	})

	require.Len(t, events, 3)
	assert.IsType(t, UpdatedProductsBackOrdered{}, events[0])
	assert.Equal(t, AddedStockOrder{StockOrderID: "sku-1-reorder", SkuID: "sku-1", QuantityTotal: 100}, events[1])
	assert.Equal(t, CreateStockOrderRequested{StockOrderID: "sku-1-reorder", SkuID: "sku-1", SkuName: "Widget", QuantityTotal: 100}, events[2])
	assert.Equal(t, 150, next.Available)
	assert.Equal(t, 60, next.BackOrdered)
}

func TestAggregate_NoReorderWhenBackOrderCovered(t *testing.T) {
	a := NewAggregate()
	s := productWithStock(t, a, 50)

	events, err := a.Handle(s, UpdateProductsBackOrdered{
		SkuID:          "sku-1",
		BackOrderedLot: BackOrderedLot{BackOrderedLotID: "lot-1", QuantityBackOrdered: 50},
	})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAggregate_StockOrderSizeOption(t *testing.T) {
	a := NewAggregate(WithStockOrderSize(20), WithIDGenerator(fixedIDs("r-1")))
	assert.Equal(t, 20, a.StockOrderSize())
	assert.Equal(t, 10, a.ReorderThreshold())

	s := productWithStock(t, a, 20)
	next, events := handleAndFold(t, a, s, UpdateStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityOrdered: 11})
	require.Len(t, events, 3)
	assert.Equal(t, 29, next.Available)

	assert.Equal(t, DefaultStockOrderSize, NewAggregate(WithStockOrderSize(0)).StockOrderSize())
}

func TestAggregate_DefaultIDFormat(t *testing.T) {
	a := NewAggregate()
	s := productWithStock(t, a, 100)

	events, err := a.Handle(s, UpdateStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityOrdered: 90})
	require.NoError(t, err)
	require.Len(t, events, 3)

	added := events[1].(AddedStockOrder)
	assert.True(t, strings.HasPrefix(added.StockOrderID, "sku-1-"))
	assert.Len(t, added.StockOrderID, len("sku-1-")+36)
	assert.Equal(t, added.StockOrderID, events[2].(CreateStockOrderRequested).StockOrderID)

	again, err := a.Handle(s, UpdateStockOrder{StockOrderID: "so-1", SkuID: "sku-1", QuantityOrdered: 90})
	require.NoError(t, err)
	assert.NotEqual(t, added.StockOrderID, again[1].(AddedStockOrder).StockOrderID)
}

// Повторный CreateProduct не отклоняется и не сбрасывает количества.
func TestAggregate_RecreateIsAccepted(t *testing.T) {
	a := NewAggregate()
	s := productWithStock(t, a, 40)

	next, events := handleAndFold(t, a, s, CreateProduct{SkuID: "sku-1", SkuName: "Gadget", SkuPrice: decimal.RequireFromString("2")})
	require.Len(t, events, 1)
	assert.Equal(t, "Gadget", next.SkuName)
	assert.Equal(t, 40, next.Available)
}

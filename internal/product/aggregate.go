package product

import "fmt"

// DefaultStockOrderSize размер заказа на пополнение, создаваемого политикой дозаказа.
// Порог дозаказа равен половине размера.
const DefaultStockOrderSize = 100

// Aggregate обработчик команд продукта.
// Собственного состояния не хранит: состояние передает хост, собрав его через Fold.
type Aggregate struct {
	ids            IDGenerator
	stockOrderSize int
}

// Option настройка Aggregate
type Option func(*Aggregate)

// WithIDGenerator подменяет генератор идентификаторов заказов на пополнение
func WithIDGenerator(ids IDGenerator) Option {
	return func(a *Aggregate) {
		if ids != nil {
			a.ids = ids
		}
	}
}

// WithStockOrderSize задает размер заказа на пополнение
func WithStockOrderSize(size int) Option {
	return func(a *Aggregate) {
		if size > 0 {
			a.stockOrderSize = size
		}
	}
}

// NewAggregate создает обработчик команд
func NewAggregate(opts ...Option) *Aggregate {
	a := &Aggregate{
		ids:            UUIDGenerator{},
		stockOrderSize: DefaultStockOrderSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StockOrderSize возвращает размер заказа на пополнение
func (a *Aggregate) StockOrderSize() int {
	return a.stockOrderSize
}

// ReorderThreshold возвращает порог доступного остатка, ниже которого создается дозаказ
func (a *Aggregate) ReorderThreshold() int {
	return a.stockOrderSize / 2
}

// Handle выбирает обработчик по типу команды и возвращает пакет событий,
// который хост должен сохранить целиком
func (a *Aggregate) Handle(state State, cmd Command) ([]Event, error) {
	switch c := cmd.(type) {
	case CreateProduct:
		return single(a.HandleCreate(state, c))
	case AddStockOrder:
		return single(a.HandleAddStockOrder(state, c))
	case UpdateStockOrder:
		return a.HandleUpdateStockOrder(state, c)
	case UpdateProductsBackOrdered:
		return a.HandleUpdateBackOrdered(state, c)
	default:
		return nil, invalidArgument(fmt.Sprintf("unsupported command %T", cmd))
	}
}

// HandleCreate создает продукт. Повторное создание разрешено и только перезаписывает
// описание и цену, количества сохраняются.
func (a *Aggregate) HandleCreate(state State, cmd CreateProduct) (Event, error) {
	if cmd.SkuID == "" {
		return nil, invalidArgument(msgSkuIDRequired)
	}
	return Created{
		SkuID:          cmd.SkuID,
		SkuName:        cmd.SkuName,
		SkuDescription: cmd.SkuDescription,
		SkuPrice:       cmd.SkuPrice,
	}, nil
}

// HandleAddStockOrder регистрирует заказ на пополнение
func (a *Aggregate) HandleAddStockOrder(state State, cmd AddStockOrder) (Event, error) {
	return AddedStockOrder{
		StockOrderID:  cmd.StockOrderID,
		SkuID:         cmd.SkuID,
		QuantityTotal: cmd.QuantityTotal,
	}, nil
}

// HandleUpdateStockOrder обновляет заказ и дозаказывает, если доступный остаток
// после обновления опускается ниже порога
func (a *Aggregate) HandleUpdateStockOrder(state State, cmd UpdateStockOrder) ([]Event, error) {
	event := UpdatedStockOrder{
		StockOrderID:    cmd.StockOrderID,
		SkuID:           cmd.SkuID,
		QuantityOrdered: cmd.QuantityOrdered,
	}
	next := Fold(state, event)
	if next.Available < a.ReorderThreshold() {
		return a.withReorder(next, event), nil
	}
	return []Event{event}, nil
}

// HandleUpdateBackOrdered обновляет партию отложенного спроса и дозаказывает,
// если отложенный спрос превышает доступный остаток
func (a *Aggregate) HandleUpdateBackOrdered(state State, cmd UpdateProductsBackOrdered) ([]Event, error) {
	event := UpdatedProductsBackOrdered{
		SkuID:          cmd.SkuID,
		BackOrderedLot: cmd.BackOrderedLot,
	}
	next := Fold(state, event)
	if next.BackOrdered > next.Available {
		return a.withReorder(next, event), nil
	}
	return []Event{event}, nil
}

// Query возвращает текущее состояние созданного продукта
func (a *Aggregate) Query(state State) (State, error) {
	if state.IsEmpty() {
		return State{}, notFound(msgProductNotFound)
	}
	return state, nil
}

// withReorder дополняет основное событие заказом на пополнение и уведомлением о нем.
// next состояние после основного события.
func (a *Aggregate) withReorder(next State, primary Event) []Event {
	stockOrderID := a.ids.NewStockOrderID(next.SkuID)
	return []Event{
		primary,
		AddedStockOrder{
			StockOrderID:  stockOrderID,
			SkuID:         next.SkuID,
			QuantityTotal: a.stockOrderSize,
		},
		CreateStockOrderRequested{
			StockOrderID:  stockOrderID,
			SkuID:         next.SkuID,
			SkuName:       next.SkuName,
			QuantityTotal: a.stockOrderSize,
		},
	}
}

func single(event Event, err error) ([]Event, error) {
	if err != nil {
		return nil, err
	}
	return []Event{event}, nil
}

package product

// Fold применяет одно событие к состоянию и возвращает новое состояние.
// Функция чистая и тотальная: входное состояние не изменяется,
// неизвестные события оставляют состояние без изменений.
func Fold(s State, event Event) State {
	switch e := event.(type) {
	case Created:
		return onCreated(s, e)
	case AddedStockOrder:
		return onAddedStockOrder(s, e)
	case UpdatedStockOrder:
		return onUpdatedStockOrder(s, e)
	case UpdatedProductsBackOrdered:
		return onUpdatedProductsBackOrdered(s, e)
	case CreateStockOrderRequested:
		return s
	default:
		return s
	}
}

// FoldAll последовательно применяет события к состоянию
func FoldAll(s State, events ...Event) State {
	for _, e := range events {
		s = Fold(s, e)
	}
	return s
}

// onCreated перезаписывает описание; количества и коллекции сохраняются.
// Количества пересчитываются из коллекций, поэтому у пустого состояния они нулевые.
func onCreated(s State, e Created) State {
	next := s.clone()
	next.Available = sumAvailable(next.StockOrders)
	next.BackOrdered = sumBackOrdered(next.BackOrderedLots)
	next.SkuID = e.SkuID
	next.SkuName = e.SkuName
	next.SkuDescription = e.SkuDescription
	next.SkuPrice = e.SkuPrice
	return next
}

func onAddedStockOrder(s State, e AddedStockOrder) State {
	if s.stockOrderIndex(e.StockOrderID) >= 0 {
		return s
	}
	next := s.clone()
	next.adoptSkuID(e.SkuID)
	next.StockOrders = append(next.StockOrders, StockOrder{
		StockOrderID:      e.StockOrderID,
		QuantityTotal:     e.QuantityTotal,
		QuantityOrdered:   0,
		QuantityAvailable: e.QuantityTotal,
	})
	next.StockOrders = dropExhausted(next.StockOrders)
	next.Available = sumAvailable(next.StockOrders)
	return next
}

func onUpdatedStockOrder(s State, e UpdatedStockOrder) State {
	next := s.clone()
	next.adoptSkuID(e.SkuID)
	if i := next.stockOrderIndex(e.StockOrderID); i >= 0 {
		so := next.StockOrders[i]
		so.QuantityOrdered = e.QuantityOrdered
		so.QuantityAvailable = so.QuantityTotal - e.QuantityOrdered
		next.StockOrders[i] = so
	}
	next.StockOrders = dropExhausted(next.StockOrders)
	next.Available = sumAvailable(next.StockOrders)
	return next
}

func onUpdatedProductsBackOrdered(s State, e UpdatedProductsBackOrdered) State {
	next := s.clone()
	next.adoptSkuID(e.SkuID)
	lots := make([]BackOrderedLot, 0, len(next.BackOrderedLots)+1)
	for _, lot := range next.BackOrderedLots {
		if lot.BackOrderedLotID != e.BackOrderedLot.BackOrderedLotID {
			lots = append(lots, lot)
		}
	}
	if e.BackOrderedLot.QuantityBackOrdered > 0 {
		lots = append(lots, e.BackOrderedLot)
	}
	next.BackOrderedLots = lots
	next.BackOrdered = sumBackOrdered(lots)
	return next
}

// adoptSkuID устанавливает идентификатор только у еще не созданного агрегата:
// после установки skuId не меняется
func (s *State) adoptSkuID(skuID string) {
	if s.SkuID == "" {
		s.SkuID = skuID
	}
}

// dropExhausted удаляет заказы без доступного остатка
func dropExhausted(orders []StockOrder) []StockOrder {
	kept := orders[:0]
	for _, so := range orders {
		if so.QuantityAvailable > 0 {
			kept = append(kept, so)
		}
	}
	return kept
}

// clone копирует состояние вместе с коллекциями
func (s State) clone() State {
	next := s
	next.StockOrders = append(make([]StockOrder, 0, len(s.StockOrders)+1), s.StockOrders...)
	next.BackOrderedLots = append(make([]BackOrderedLot, 0, len(s.BackOrderedLots)+1), s.BackOrderedLots...)
	return next
}

package models

// OrderSide — сторона ордера у брокера.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// OrderKind — тип ордера.
type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
	OrderStop   OrderKind = "stop"
)

// OrderStatus — статус у брокера. Локальная копия — только кеш,
// источник правды всегда брокер.
type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderSubmitted       OrderStatus = "submitted"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderRejected        OrderStatus = "rejected"
)

// Terminal — ордер больше не изменится.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCanceled || s == OrderRejected
}

type Order struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Kind      OrderKind
	Qty       float64
	LimitPx   float64 // для limit
	StopPx    float64 // для stop
	Status    OrderStatus
	FilledQty float64
	FilledPx  float64 // средняя цена исполнения
}

// OrderSpec — заявка на создание ордера.
type OrderSpec struct {
	Symbol string
	Side   OrderSide
	Kind   OrderKind
	Qty    float64
	LimitPx float64
	StopPx  float64

	// Для не-крипты брокер умеет атомарный bracket: SL/TP одним ордером.
	Bracket  bool
	BrStopPx float64
	BrTakePx float64
}

package models

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether the venue will never change this status again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

// Order — the venue's view of an order, as reported by the trading gateway.
type Order struct {
	ID          int64
	Symbol      string
	Side        OrderSide
	Status      OrderStatus
	Price       float64
	OrigQty     float64
	ExecutedQty float64
}

// SymbolFilters — venue-published price/quantity quantization and bounds.
type SymbolFilters struct {
	PriceStep float64
	MinPrice  float64
	MaxPrice  float64
	QtyStep   float64
	MinQty    float64
	MaxQty    float64
}

package order

import "time"

// Trade 是一次成交的不可变记录，生成后不再修改。
// Commission 仅记录，不参与资金和盈亏计算。
type Trade struct {
	ID         string
	OrderID    string
	Symbol     string
	Side       Side
	Quantity   float64
	Price      float64
	Commission float64
	Timestamp  time.Time
}

// NewTrade records a fill of the full order quantity at the executed price.
func NewTrade(o *Order, price, commission float64, ts time.Time) Trade {
	return Trade{
		ID:         generateID("TRD", ts),
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Price:      price,
		Commission: commission,
		Timestamp:  ts,
	}
}

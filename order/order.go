package order

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is a known value.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite 返回反方向，平仓时使用。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Type is the execution style of an order.
type Type string

const (
	TypeMarket    Type = "market"
	TypeLimit     Type = "limit"
	TypeStop      Type = "stop"
	TypeStopLimit Type = "stop_limit"
)

// Valid reports whether the type is a known value.
func (t Type) Valid() bool {
	switch t {
	case TypeMarket, TypeLimit, TypeStop, TypeStopLimit:
		return true
	default:
		return false
	}
}

// NeedsPrice 判断该类型是否必须携带限价。
func (t Type) NeedsPrice() bool { return t == TypeLimit || t == TypeStopLimit }

// Status represents order lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal 判断是否是终态，终态订单不再变更。
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// CanCancel 判断当前状态下是否可以撤单。
func (s Status) CanCancel() bool { return s == StatusPending }

// Order holds one simulated order.
// Price 仅对 limit/stop_limit 有意义，StopPrice 仅对 stop/stop_limit 有意义。
type Order struct {
	ID              string
	Symbol          string
	Side            Side
	Type            Type
	Quantity        float64
	Price           float64
	StopPrice       float64
	Status          Status
	FilledQuantity  float64
	AvgPrice        float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExchangeOrderID string
}

// New 构造 pending 状态的新订单并分配 ID。
func New(symbol string, side Side, typ Type, qty, price, stopPrice float64, ts time.Time) *Order {
	return &Order{
		ID:        generateID("ORD", ts),
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Quantity:  qty,
		Price:     price,
		StopPrice: stopPrice,
		Status:    StatusPending,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

var idSeq uint64

// generateID 时间戳拼接进程内序号，同一纳秒内也不会碰撞。
// 序号定宽零填充，同一时间戳下的 ID 字典序就是下单先后序，
// 引擎的触发扫描靠这一点保证同口行情内先下先成交。
func generateID(prefix string, ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s-%s-%012d",
		prefix, ts.UTC().Format("20060102150405.000000000"), atomic.AddUint64(&idSeq, 1))
}

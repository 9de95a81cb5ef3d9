package inventory

import (
	"fmt"
	"sync/atomic"
	"time"
)

// PositionSide 持仓方向。
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// Position 维护单个交易对的净仓位。
// Quantity 在持仓存续期间恒大于 0，归零时由持有方删除记录。
type Position struct {
	ID            string
	Symbol        string
	Side          PositionSide
	Quantity      float64
	EntryPrice    float64 // 数量加权平均入场价
	MarkPrice     float64
	UnrealizedPnL float64
	RealizedPnL   float64
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

// Open 以首笔成交建仓。buy 开多，sell 开空。
func Open(symbol string, buy bool, qty, price float64, ts time.Time) *Position {
	side := Long
	if !buy {
		side = Short
	}
	return &Position{
		ID:         generateID(ts),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: price,
		MarkPrice:  price,
		OpenedAt:   ts,
		UpdatedAt:  ts,
	}
}

// Apply 将一笔成交净入仓位。
// 同向：加权平均成本并增加数量。
// 反向且数量小于持仓：按比例减仓，返回已实现盈亏。
// 反向且数量不小于持仓：全部平掉并返回 closed=true，超出部分丢弃，不反向开仓。
func (p *Position) Apply(buy bool, qty, price float64, ts time.Time) (realized float64, closed bool) {
	sameDirection := (buy && p.Side == Long) || (!buy && p.Side == Short)
	p.UpdatedAt = ts

	if sameDirection {
		totalValue := p.EntryPrice*p.Quantity + price*qty
		p.Quantity += qty
		p.EntryPrice = totalValue / p.Quantity
		p.Mark(price)
		return 0, false
	}

	if qty >= p.Quantity {
		realized = p.pnlAt(price, p.Quantity)
		p.RealizedPnL += realized
		p.Quantity = 0
		p.UnrealizedPnL = 0
		return realized, true
	}

	realized = p.pnlAt(price, qty)
	p.RealizedPnL += realized
	p.Quantity -= qty
	p.Mark(price)
	return realized, false
}

// Mark 按最新价格重估未实现盈亏，不改变数量。
func (p *Position) Mark(price float64) {
	p.MarkPrice = price
	p.UnrealizedPnL = p.pnlAt(price, p.Quantity)
}

// pnlAt 计算给定数量在 price 价位的盈亏。
func (p *Position) pnlAt(price, qty float64) float64 {
	if p.Side == Long {
		return (price - p.EntryPrice) * qty
	}
	return (p.EntryPrice - price) * qty
}

var idSeq uint64

func generateID(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("POS-%s-%06d",
		ts.UTC().Format("20060102150405.000000000"), atomic.AddUint64(&idSeq, 1))
}

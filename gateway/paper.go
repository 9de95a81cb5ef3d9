package gateway

import (
	"context"
	"fmt"

	"github.com/alkrab112-web/neon-trader-v7/internal/engine"
	"github.com/alkrab112-web/neon-trader-v7/inventory"
	"github.com/alkrab112-web/neon-trader-v7/order"
)

// PaperAdapter 把模拟引擎挂到场所能力面上，所有操作落在内存账本。
type PaperAdapter struct {
	eng *engine.PaperEngine
}

var _ Adapter = (*PaperAdapter)(nil)

func NewPaperAdapter(eng *engine.PaperEngine) *PaperAdapter {
	return &PaperAdapter{eng: eng}
}

func (p *PaperAdapter) Venue() Venue { return VenuePaper }

func (p *PaperAdapter) Balance(ctx context.Context) (float64, error) {
	return p.eng.AccountSummary().CurrentBalance, nil
}

func (p *PaperAdapter) Positions(ctx context.Context) ([]inventory.Position, error) {
	return p.eng.Positions(), nil
}

func (p *PaperAdapter) PlaceMarketOrder(ctx context.Context, symbol string, side order.Side, qty float64) (string, error) {
	return p.eng.PlaceOrder(engine.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     order.TypeMarket,
		Quantity: qty,
	})
}

func (p *PaperAdapter) PlaceLimitOrder(ctx context.Context, symbol string, side order.Side, qty, price float64) (string, error) {
	return p.eng.PlaceOrder(engine.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     order.TypeLimit,
		Quantity: qty,
		Price:    price,
	})
}

// CancelOrder 撤单。订单号全局唯一，symbol 只为对齐接口。
func (p *PaperAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return p.eng.CancelOrder(orderID)
}

func (p *PaperAdapter) Price(ctx context.Context, symbol string) (float64, error) {
	price, ok := p.eng.LastPrice(symbol)
	if !ok {
		return 0, fmt.Errorf("%w: %s", engine.ErrNoMarketData, symbol)
	}
	return price, nil
}

func (p *PaperAdapter) TestConnection(ctx context.Context) error {
	if !p.eng.Running() {
		return fmt.Errorf("%w: %s", engine.ErrEngineStopped, p.eng.AccountID())
	}
	return nil
}

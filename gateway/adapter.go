package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/alkrab112-web/neon-trader-v7/internal/engine"
	"github.com/alkrab112-web/neon-trader-v7/inventory"
	"github.com/alkrab112-web/neon-trader-v7/order"
)

// Venue 交易场所标签。
type Venue string

const (
	VenuePaper   Venue = "paper"
	VenueBybit   Venue = "bybit"
	VenueBinance Venue = "binance"
	VenueForex   Venue = "forex"
	VenueStocks  Venue = "stocks"
)

var (
	// ErrUnsupportedVenue 该场所没有可用实现
	ErrUnsupportedVenue = errors.New("venue not supported")
	// ErrUnknownAdapter 账户没有挂载适配器
	ErrUnknownAdapter = errors.New("no adapter for account")
)

// Adapter 统一的场所能力面。目前只有纸面交易有真实实现，
// 其余场所返回 ErrUnsupportedVenue 而不是 panic。
type Adapter interface {
	Venue() Venue
	Balance(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]inventory.Position, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side order.Side, qty float64) (string, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side order.Side, qty, price float64) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	Price(ctx context.Context, symbol string) (float64, error)
	TestConnection(ctx context.Context) error
}

// Supported 报告场所是否有真实实现。
func Supported(v Venue) bool { return v == VenuePaper }

// NewAdapter 按场所构建适配器。纸面场所包装给定引擎，
// 其余场所一律给 unsupported 变体。
func NewAdapter(v Venue, eng *engine.PaperEngine) (Adapter, error) {
	if v == VenuePaper {
		if eng == nil {
			return nil, errors.New("paper adapter requires an engine")
		}
		return NewPaperAdapter(eng), nil
	}
	return Unsupported(v), nil
}

// Unsupported 返回一个所有调用都报 ErrUnsupportedVenue 的适配器。
func Unsupported(v Venue) Adapter { return unsupported{venue: v} }

type unsupported struct{ venue Venue }

func (u unsupported) Venue() Venue { return u.venue }

func (u unsupported) err() error {
	return fmt.Errorf("%w: %s", ErrUnsupportedVenue, u.venue)
}

func (u unsupported) Balance(context.Context) (float64, error) { return 0, u.err() }

func (u unsupported) Positions(context.Context) ([]inventory.Position, error) {
	return nil, u.err()
}

func (u unsupported) PlaceMarketOrder(context.Context, string, order.Side, float64) (string, error) {
	return "", u.err()
}

func (u unsupported) PlaceLimitOrder(context.Context, string, order.Side, float64, float64) (string, error) {
	return "", u.err()
}

func (u unsupported) CancelOrder(context.Context, string, string) error { return u.err() }

func (u unsupported) Price(context.Context, string) (float64, error) { return 0, u.err() }

func (u unsupported) TestConnection(context.Context) error { return u.err() }

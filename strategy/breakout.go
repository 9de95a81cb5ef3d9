package strategy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alkrab112-web/neon-trader-v7/order"
)

// Signal 一次方向性交易建议，止损止盈已按风险回报比折算。
type Signal struct {
	Symbol     string
	Side       order.Side
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64
	Reason     string
	Timestamp  time.Time
}

// Config 通道突破参数。
type Config struct {
	Period     int     // 回看窗口长度
	RiskReward float64 // 止盈距离 = 止损距离 * RiskReward
}

// DefaultConfig returns the stock breakout parameters.
func DefaultConfig() Config {
	return Config{Period: 20, RiskReward: 2.0}
}

// Breakout 维护每个交易对最近 Period 个价格的滚动窗口，
// 价格突破窗口高点给买入信号、跌破低点给卖出信号。
// 只读自身窗口，不碰账本，也不下单。
type Breakout struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string][]float64
}

func NewBreakout(cfg Config) (*Breakout, error) {
	if cfg.Period <= 0 {
		return nil, errors.New("breakout: period must be positive")
	}
	if cfg.RiskReward <= 0 {
		return nil, errors.New("breakout: risk reward must be positive")
	}
	return &Breakout{
		cfg:     cfg,
		windows: make(map[string][]float64),
	}, nil
}

// UpdatePrice 追加一个观测价，窗口超过 Period 时丢弃最旧的。
func (b *Breakout) UpdatePrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := append(b.windows[symbol], price)
	if len(w) > b.cfg.Period {
		w = w[1:]
	}
	b.windows[symbol] = w
}

// Signal 用当前价对照已有窗口求信号，不修改窗口。
// 窗口不足 Period 个样本时返回 false。
func (b *Breakout) Signal(symbol string, price float64) (*Signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.windows[symbol]
	if len(w) < b.cfg.Period {
		return nil, false
	}
	hi, lo := w[0], w[0]
	for _, p := range w[1:] {
		if p > hi {
			hi = p
		}
		if p < lo {
			lo = p
		}
	}

	switch {
	case price > hi:
		return &Signal{
			Symbol:     symbol,
			Side:       order.SideBuy,
			EntryPrice: price,
			StopLoss:   lo,
			TakeProfit: price + (price-lo)*b.cfg.RiskReward,
			Confidence: clampConfidence((price - hi) / hi),
			Reason:     fmt.Sprintf("price %.4f broke above %d-period high %.4f", price, b.cfg.Period, hi),
			Timestamp:  time.Now().UTC(),
		}, true
	case price < lo:
		return &Signal{
			Symbol:     symbol,
			Side:       order.SideSell,
			EntryPrice: price,
			StopLoss:   hi,
			TakeProfit: price - (hi-price)*b.cfg.RiskReward,
			Confidence: clampConfidence((lo - price) / lo),
			Reason:     fmt.Sprintf("price %.4f broke below %d-period low %.4f", price, b.cfg.Period, lo),
			Timestamp:  time.Now().UTC(),
		}, true
	default:
		return nil, false
	}
}

// Reset 丢弃指定交易对的窗口。
func (b *Breakout) Reset(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, symbol)
}

// Window 返回窗口拷贝，只用于观测。
func (b *Breakout) Window(symbol string) []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.windows[symbol]
	out := make([]float64, len(w))
	copy(out, w)
	return out
}

// clampConfidence 把突破幅度映射到 [0.3, 0.9]，既不报满分也不报零分。
func clampConfidence(strength float64) float64 {
	c := strength * 100
	if c < 0.3 {
		return 0.3
	}
	if c > 0.9 {
		return 0.9
	}
	return c
}

package sim

import (
	"math/rand"
	"time"

	"github.com/alkrab112-web/neon-trader-v7/market"
)

// Source 逐条产出行情，耗尽后返回 false。
type Source interface {
	Next() (market.Tick, bool)
}

// WalkConfig 随机游走行情源的参数，零值字段取默认。
type WalkConfig struct {
	Symbol     string
	Seed       int64
	Ticks      int
	StartPrice float64
	Volatility float64 // 单步最大相对波动
	Start      time.Time
	Step       time.Duration
}

// RandomWalk 种子驱动的随机游走，同一种子产出同一序列。
type RandomWalk struct {
	cfg   WalkConfig
	rng   *rand.Rand
	price float64
	ts    time.Time
	count int
}

func NewRandomWalk(cfg WalkConfig) *RandomWalk {
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.Ticks <= 0 {
		cfg.Ticks = 1000
	}
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 50000
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.002
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.Step <= 0 {
		cfg.Step = time.Minute
	}
	return &RandomWalk{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		price: cfg.StartPrice,
		ts:    cfg.Start,
	}
}

func (w *RandomWalk) Next() (market.Tick, bool) {
	if w.count >= w.cfg.Ticks {
		return market.Tick{}, false
	}
	w.count++
	w.price *= 1 + (w.rng.Float64()*2-1)*w.cfg.Volatility
	w.ts = w.ts.Add(w.cfg.Step)
	return market.Tick{Symbol: w.cfg.Symbol, Price: w.price, Ts: w.ts}, true
}

// SliceSource 按固定间隔回放给定的价格序列。
type SliceSource struct {
	symbol string
	prices []float64
	ts     time.Time
	step   time.Duration
	idx    int
}

func NewSliceSource(symbol string, start time.Time, step time.Duration, prices []float64) *SliceSource {
	if step <= 0 {
		step = time.Minute
	}
	return &SliceSource{symbol: symbol, prices: prices, ts: start, step: step}
}

func (s *SliceSource) Next() (market.Tick, bool) {
	if s.idx >= len(s.prices) {
		return market.Tick{}, false
	}
	price := s.prices[s.idx]
	s.idx++
	s.ts = s.ts.Add(s.step)
	return market.Tick{Symbol: s.symbol, Price: price, Ts: s.ts}, true
}

package registry_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
	"github.com/alkrab112-web/neon-trader-v7/internal/engine"
	"github.com/alkrab112-web/neon-trader-v7/internal/registry"
	"github.com/alkrab112-web/neon-trader-v7/inventory"
	"github.com/alkrab112-web/neon-trader-v7/market"
	"github.com/alkrab112-web/neon-trader-v7/order"
	"github.com/alkrab112-web/neon-trader-v7/risk"
	"github.com/alkrab112-web/neon-trader-v7/strategy"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newRegistry(t *testing.T, cfg registry.Config) (*registry.Registry, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: baseTime}
	r, err := registry.New(cfg, registry.Components{Logger: logger.Nop(), Clock: clk})
	require.NoError(t, err)
	return r, clk
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     registry.Config
		wantErr bool
	}{
		{"负初始资金", registry.Config{InitialBalance: -1}, true},
		{"负手续费", registry.Config{TradeCommission: -0.1}, true},
		{"未知策略", registry.Config{StrategyKind: "momentum"}, true},
		{"非法策略参数", registry.Config{Strategy: strategy.Config{Period: -1, RiskReward: 2}}, true},
		{"零值配置走默认", registry.Config{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.New(tc.cfg, registry.Components{Logger: logger.Nop()})
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetOrCreateReusesEngine(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})

	e1, err := r.GetOrCreate("alice")
	require.NoError(t, err)
	assert.True(t, e1.Running())
	assert.Equal(t, "alice", e1.AccountID())

	e2, err := r.GetOrCreate("alice")
	require.NoError(t, err)
	assert.Same(t, e1, e2)

	e3, err := r.GetOrCreate("bob")
	require.NoError(t, err)
	assert.NotSame(t, e1, e3)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"alice", "bob"}, r.Accounts())
}

func TestGetOrCreateEmptyAccount(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})
	_, err := r.GetOrCreate("")
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestEvict(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})
	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)

	require.NoError(t, r.Evict("alice"))
	assert.False(t, e.Running())
	assert.Equal(t, 0, r.Len())

	assert.ErrorIs(t, r.Evict("alice"), registry.ErrUnknownAccount)
}

func TestReset(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{InitialBalance: 5000})
	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)

	e.UpdateMarketPrice("BTCUSDT", 100, baseTime)
	_, err = e.PlaceOrder(engine.OrderRequest{Symbol: "BTCUSDT", Side: order.SideBuy, Type: order.TypeMarket, Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, 4900.0, e.AccountSummary().CurrentBalance)

	fresh, err := r.Reset("alice")
	require.NoError(t, err)
	assert.False(t, e.Running())
	assert.True(t, fresh.Running())
	assert.Equal(t, 5000.0, fresh.AccountSummary().CurrentBalance)
	assert.Empty(t, fresh.Positions())

	// 未注册账户 Reset 等同创建
	other, err := r.Reset("carol")
	require.NoError(t, err)
	assert.True(t, other.Running())
	assert.Equal(t, 2, r.Len())
}

func TestEvictIdle(t *testing.T) {
	r, clk := newRegistry(t, registry.Config{})
	_, err := r.GetOrCreate("alice")
	require.NoError(t, err)
	_, err = r.GetOrCreate("bob")
	require.NoError(t, err)

	clk.advance(30 * time.Minute)
	_, err = r.GetOrCreate("alice") // 刷新 alice 的最近访问时间
	require.NoError(t, err)

	clk.advance(31 * time.Minute)
	assert.Equal(t, 1, r.EvictIdle(time.Hour))
	assert.Equal(t, []string{"alice"}, r.Accounts())
}

func TestBroadcastDoesNotRefreshIdle(t *testing.T) {
	r, clk := newRegistry(t, registry.Config{})
	_, err := r.GetOrCreate("alice")
	require.NoError(t, err)

	clk.advance(2 * time.Hour)
	r.Broadcast(market.Tick{Symbol: "BTCUSDT", Price: 100, Ts: clk.Now()})
	r.SampleEquity(clk.Now())

	assert.Equal(t, 1, r.EvictIdle(time.Hour))
	assert.Equal(t, 0, r.Len())
}

func TestBroadcastRoutesTicks(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})
	a, err := r.GetOrCreate("alice")
	require.NoError(t, err)
	b, err := r.GetOrCreate("bob")
	require.NoError(t, err)

	r.Broadcast(market.Tick{Symbol: "BTCUSDT", Price: 50000, Ts: baseTime})

	pa, ok := a.LastPrice("BTCUSDT")
	require.True(t, ok)
	pb, ok := b.LastPrice("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 50000.0, pa)
	assert.Equal(t, 50000.0, pb)
}

func TestBroadcastAutoExecute(t *testing.T) {
	r, clk := newRegistry(t, registry.Config{
		AutoExecute: true,
		Strategy:    strategy.Config{Period: 3, RiskReward: 2},
	})
	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)

	// 前三条只填窗口：窗口未满不出信号
	for _, p := range []float64{10, 12, 11} {
		execs := r.Broadcast(market.Tick{Symbol: "BTCUSDT", Price: p, Ts: clk.Now()})
		assert.Empty(t, execs)
	}

	// 13 突破窗口高点 12；信号在价格并入窗口前求值
	execs := r.Broadcast(market.Tick{Symbol: "BTCUSDT", Price: 13, Ts: clk.Now()})
	require.Len(t, execs, 1)

	exec := execs[0]
	assert.Equal(t, "alice", exec.AccountID)
	assert.Equal(t, order.SideBuy, exec.Signal.Side)
	assert.Equal(t, 13.0, exec.Signal.EntryPrice)
	assert.Equal(t, 10.0, exec.Signal.StopLoss)
	assert.Equal(t, 19.0, exec.Signal.TakeProfit)
	assert.NotEmpty(t, exec.EntryOrderID)
	assert.NotEmpty(t, exec.StopOrderID)
	assert.NotEmpty(t, exec.TargetOrderID)

	// 10000 * 0.005 = 50 风险额度，单位风险 |13-10| = 3
	assert.InDelta(t, 50.0/3.0, exec.Quantity, 1e-9)

	positions := e.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, inventory.Long, positions[0].Side)
	assert.InDelta(t, 50.0/3.0, positions[0].Quantity, 1e-9)
	assert.Equal(t, 13.0, positions[0].EntryPrice)

	// 括号单挂起：反向的止损与止盈
	pending := e.Orders(order.StatusPending)
	require.Len(t, pending, 2)
	for _, o := range pending {
		assert.Equal(t, order.SideSell, o.Side)
	}
}

func TestSignalPullPath(t *testing.T) {
	r, clk := newRegistry(t, registry.Config{Strategy: strategy.Config{Period: 3, RiskReward: 2}})
	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)

	for _, p := range []float64{10, 12, 11} {
		r.Broadcast(market.Tick{Symbol: "BTCUSDT", Price: p, Ts: clk.Now()})
	}

	// 窗口内的最新价不构成突破
	_, ok := r.Signal("alice", "BTCUSDT")
	assert.False(t, ok)

	// 引擎先收到一条突破价，窗口尚未并入时查询可见信号
	e.UpdateMarketPrice("BTCUSDT", 13, clk.Now())
	sig, ok := r.Signal("alice", "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, order.SideBuy, sig.Side)
	assert.Equal(t, 13.0, sig.EntryPrice)

	// 没有行情的交易对没有信号
	_, ok = r.Signal("alice", "ETHUSDT")
	assert.False(t, ok)
}

func TestExecuteSignal(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})
	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)
	e.UpdateMarketPrice("BTCUSDT", 100, baseTime)

	sig := &strategy.Signal{
		Symbol:     "BTCUSDT",
		Side:       order.SideBuy,
		EntryPrice: 100,
		StopLoss:   95,
		TakeProfit: 110,
	}
	exec, err := r.ExecuteSignal("alice", sig)
	require.NoError(t, err)

	// 10000 * 0.005 / |100-95| = 10
	assert.Equal(t, 10.0, exec.Quantity)

	positions := e.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, 10.0, positions[0].Quantity)
	require.Len(t, e.Orders(order.StatusPending), 2)

	// 价格到达止盈，限价卖单成交平仓
	e.UpdateMarketPrice("BTCUSDT", 110, baseTime.Add(time.Minute))
	assert.Empty(t, e.Positions())

	sum := e.AccountSummary()
	assert.InDelta(t, 100.0, sum.RealizedPnL, 1e-9)
	assert.InDelta(t, 10100.0, sum.CurrentBalance, 1e-9)

	// 止损括号单仍然挂着
	assert.Len(t, e.Orders(order.StatusPending), 1)
}

func TestExecuteSignalDegenerateSize(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})
	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)
	e.UpdateMarketPrice("BTCUSDT", 100, baseTime)

	sig := &strategy.Signal{Symbol: "BTCUSDT", Side: order.SideBuy, EntryPrice: 100, StopLoss: 100, TakeProfit: 110}
	_, err = r.ExecuteSignal("alice", sig)
	assert.Error(t, err)
	assert.Empty(t, e.Orders(""))

	_, err = r.ExecuteSignal("alice", nil)
	assert.Error(t, err)
}

func TestExecuteSignalEntryRejected(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})
	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)

	sig := &strategy.Signal{Symbol: "ETHUSDT", Side: order.SideBuy, EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	_, err = r.ExecuteSignal("alice", sig)
	assert.ErrorIs(t, err, engine.ErrNoMarketData)

	// 入场被拒时不再挂括号单
	assert.Empty(t, e.Orders(order.StatusPending))
}

func TestPerformance(t *testing.T) {
	r, clk := newRegistry(t, registry.Config{InitialBalance: 10000})

	_, err := r.Performance("ghost")
	assert.ErrorIs(t, err, registry.ErrUnknownAccount)

	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)

	e.UpdateMarketPrice("BTCUSDT", 100, clk.Now())
	_, err = e.PlaceOrder(engine.OrderRequest{Symbol: "BTCUSDT", Side: order.SideBuy, Type: order.TypeMarket, Quantity: 1})
	require.NoError(t, err)
	e.UpdateMarketPrice("BTCUSDT", 120, clk.Now())
	_, err = e.PlaceOrder(engine.OrderRequest{Symbol: "BTCUSDT", Side: order.SideSell, Type: order.TypeMarket, Quantity: 1})
	require.NoError(t, err)

	r.SampleEquity(clk.Now())
	report, err := r.Performance("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", report.Account)
	assert.Equal(t, 2, report.TotalTrades)
	assert.Equal(t, 1, report.WinningTrades)
	assert.InDelta(t, 20.0, report.RealizedPnL, 1e-9)
	assert.InDelta(t, 10020.0, report.FinalEquity, 1e-9)
}

func TestSetLimitsAppliesToAllAccounts(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})
	e, err := r.GetOrCreate("alice")
	require.NoError(t, err)
	e.UpdateMarketPrice("BTCUSDT", 100, baseTime)
	e.UpdateMarketPrice("ETHUSDT", 10, baseTime)

	limits := risk.DefaultLimits()
	limits.MaxPositions = 1
	r.SetLimits(limits)

	_, err = e.PlaceOrder(engine.OrderRequest{Symbol: "BTCUSDT", Side: order.SideBuy, Type: order.TypeMarket, Quantity: 1})
	require.NoError(t, err)
	_, err = e.PlaceOrder(engine.OrderRequest{Symbol: "ETHUSDT", Side: order.SideBuy, Type: order.TypeMarket, Quantity: 1})
	assert.ErrorIs(t, err, risk.ErrPositionLimit)

	// 新账户拿到更新后的模板
	b, err := r.GetOrCreate("bob")
	require.NoError(t, err)
	b.UpdateMarketPrice("BTCUSDT", 100, baseTime)
	b.UpdateMarketPrice("ETHUSDT", 10, baseTime)
	_, err = b.PlaceOrder(engine.OrderRequest{Symbol: "BTCUSDT", Side: order.SideBuy, Type: order.TypeMarket, Quantity: 1})
	require.NoError(t, err)
	_, err = b.PlaceOrder(engine.OrderRequest{Symbol: "ETHUSDT", Side: order.SideBuy, Type: order.TypeMarket, Quantity: 1})
	assert.ErrorIs(t, err, risk.ErrPositionLimit)
}

func TestStopAll(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})
	a, err := r.GetOrCreate("alice")
	require.NoError(t, err)
	b, err := r.GetOrCreate("bob")
	require.NoError(t, err)

	r.StopAll()
	assert.False(t, a.Running())
	assert.False(t, b.Running())
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentGetOrCreate(t *testing.T) {
	r, _ := newRegistry(t, registry.Config{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.GetOrCreate("alice"); err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
}

func TestConcurrentBroadcastAndRegistration(t *testing.T) {
	r, clk := newRegistry(t, registry.Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			r.Broadcast(market.Tick{Symbol: "BTCUSDT", Price: 100 + float64(i), Ts: clk.Now()})
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			account := fmt.Sprintf("account-%d", n)
			if _, err := r.GetOrCreate(account); err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			r.SampleEquity(clk.Now())
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, r.Len())
}

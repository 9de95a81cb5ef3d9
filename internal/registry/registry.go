package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/alert"
	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
	"github.com/alkrab112-web/neon-trader-v7/infrastructure/monitor"
	"github.com/alkrab112-web/neon-trader-v7/internal/engine"
	"github.com/alkrab112-web/neon-trader-v7/market"
	"github.com/alkrab112-web/neon-trader-v7/order"
	"github.com/alkrab112-web/neon-trader-v7/posttrade"
	"github.com/alkrab112-web/neon-trader-v7/risk"
	"github.com/alkrab112-web/neon-trader-v7/strategy"
)

// ErrUnknownAccount 账户未注册
var ErrUnknownAccount = errors.New("unknown account")

// Config 新账户的初始参数模板
type Config struct {
	InitialBalance  float64
	TradeCommission float64
	Limits          risk.Limits     // 零值取 DefaultLimits
	StrategyKind    string          // 零值取 breakout
	Strategy        strategy.Config // 零值取 DefaultConfig
	AutoExecute     bool            // Broadcast 中信号直接执行
	SampleInterval  time.Duration   // 权益采样间隔，用于夏普年化
	MaxSamples      int
}

// Components 所有账户共享的基础设施
type Components struct {
	Logger  *logger.Logger
	Monitor *monitor.Monitor
	Alerts  *alert.Manager
	Clock   risk.Clock
}

// SignalExecution 一次信号执行的结果
type SignalExecution struct {
	AccountID     string
	Signal        strategy.Signal
	Quantity      float64
	EntryOrderID  string
	StopOrderID   string // 止损括号单，可能为空
	TargetOrderID string // 止盈括号单，可能为空
}

// entry 单个账户的全套组件。风控管理器按账户独立，日内盈亏互不串台。
type entry struct {
	engine   *engine.PaperEngine
	risk     *risk.Manager
	strat    strategy.Generator
	tracker  *posttrade.Tracker
	lastUsed atomic.Int64 // unix 纳秒
}

// Registry 按账户持有引擎、风控、策略与绩效组件，负责创建、复用与回收。
// 互斥锁只保护账户表本身，引擎调用全部发生在锁外。
type Registry struct {
	mu      sync.RWMutex
	cfg     Config
	log     *logger.Logger
	mon     *monitor.Monitor
	alerts  *alert.Manager
	clock   risk.Clock
	factory *strategy.Factory
	entries map[string]*entry
}

// New 创建注册表。配置在这里一次性校验，之后按账户的创建不再失败。
func New(cfg Config, comp Components) (*Registry, error) {
	if cfg.InitialBalance < 0 {
		return nil, fmt.Errorf("initial balance must be >= 0, got %.2f", cfg.InitialBalance)
	}
	if cfg.TradeCommission < 0 {
		return nil, fmt.Errorf("trade commission must be >= 0, got %.8f", cfg.TradeCommission)
	}
	if cfg.StrategyKind == "" {
		cfg.StrategyKind = string(strategy.KindBreakout)
	}
	if cfg.Strategy == (strategy.Config{}) {
		cfg.Strategy = strategy.DefaultConfig()
	}
	if cfg.Limits == (risk.Limits{}) {
		cfg.Limits = risk.DefaultLimits()
	}

	factory := strategy.NewFactory()
	if _, err := factory.Create(cfg.StrategyKind, cfg.Strategy); err != nil {
		return nil, fmt.Errorf("strategy config: %w", err)
	}

	if comp.Logger == nil {
		comp.Logger = logger.Nop()
	}
	if comp.Clock == nil {
		comp.Clock = risk.NowUTC
	}

	return &Registry{
		cfg:     cfg,
		log:     comp.Logger,
		mon:     comp.Monitor,
		alerts:  comp.Alerts,
		clock:   comp.Clock,
		factory: factory,
		entries: make(map[string]*entry),
	}, nil
}

// GetOrCreate 返回该账户的引擎，首次访问时创建并启动。
func (r *Registry) GetOrCreate(accountID string) (*engine.PaperEngine, error) {
	ent, err := r.getOrCreate(accountID)
	if err != nil {
		return nil, err
	}
	return ent.engine, nil
}

func (r *Registry) getOrCreate(accountID string) (*entry, error) {
	now := r.clock.Now().UnixNano()

	r.mu.RLock()
	ent, ok := r.entries[accountID]
	r.mu.RUnlock()
	if ok {
		ent.lastUsed.Store(now)
		return ent, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ent, ok = r.entries[accountID]; ok {
		ent.lastUsed.Store(now)
		return ent, nil
	}

	ent, err := r.newEntryLocked(accountID)
	if err != nil {
		return nil, err
	}
	r.entries[accountID] = ent
	r.log.Info("account registered",
		zap.String("account", accountID),
		zap.Int("accounts", len(r.entries)))
	return ent, nil
}

// newEntryLocked 组装一个账户的全套组件。调用方必须持有写锁。
func (r *Registry) newEntryLocked(accountID string) (*entry, error) {
	initial := r.cfg.InitialBalance
	if initial == 0 {
		initial = engine.DefaultInitialBalance
	}

	tracker := posttrade.NewTracker(posttrade.Config{
		Account:        accountID,
		InitialBalance: initial,
		MaxSamples:     r.cfg.MaxSamples,
		SampleInterval: r.cfg.SampleInterval,
	})
	rm := risk.NewManager(r.cfg.Limits)

	eng, err := engine.New(engine.Config{
		AccountID:       accountID,
		InitialBalance:  r.cfg.InitialBalance,
		TradeCommission: r.cfg.TradeCommission,
	}, engine.Components{
		Risk:    rm,
		Logger:  r.log,
		Monitor: r.mon,
		Alerts:  r.alerts,
		Fills:   tracker,
		Clock:   r.clock,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.Start(); err != nil {
		return nil, err
	}

	gen, err := r.factory.Create(r.cfg.StrategyKind, r.cfg.Strategy)
	if err != nil {
		return nil, err
	}

	ent := &entry{engine: eng, risk: rm, strat: gen, tracker: tracker}
	ent.lastUsed.Store(r.clock.Now().UnixNano())
	return ent, nil
}

// Evict 停止并移除账户。
func (r *Registry) Evict(accountID string) error {
	r.mu.Lock()
	ent, ok := r.entries[accountID]
	if ok {
		delete(r.entries, accountID)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	_ = ent.engine.Stop()
	r.log.Info("account evicted", zap.String("account", accountID))
	return nil
}

// Reset 重建账户：旧引擎停机丢弃，新引擎以初始资金重新开始。
// 账户不存在时直接创建。
func (r *Registry) Reset(accountID string) (*engine.PaperEngine, error) {
	r.mu.Lock()
	old, ok := r.entries[accountID]
	if ok {
		delete(r.entries, accountID)
	}
	r.mu.Unlock()
	if ok {
		_ = old.engine.Stop()
	}

	ent, err := r.getOrCreate(accountID)
	if err != nil {
		return nil, err
	}
	r.log.Info("account reset", zap.String("account", accountID))
	return ent.engine, nil
}

// EvictIdle 回收超过 olderThan 未被访问的账户，返回回收数量。
// 行情广播与权益采样不算访问，不会阻止闲置回收。
func (r *Registry) EvictIdle(olderThan time.Duration) int {
	cutoff := r.clock.Now().Add(-olderThan).UnixNano()

	r.mu.Lock()
	var ids []string
	var victims []*entry
	for id, ent := range r.entries {
		if ent.lastUsed.Load() < cutoff {
			ids = append(ids, id)
			victims = append(victims, ent)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for i, ent := range victims {
		_ = ent.engine.Stop()
		r.log.Info("idle account evicted", zap.String("account", ids[i]))
	}
	return len(victims)
}

// Broadcast 把一条行情送达所有账户的引擎与策略窗口。
// 信号按价格并入窗口前的旧窗口求值，突破当口即可触发；
// 开启 AutoExecute 时信号直接执行并返回执行结果。
func (r *Registry) Broadcast(tick market.Tick) []SignalExecution {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ents := make([]*entry, len(ids))
	for i, id := range ids {
		ents[i] = r.entries[id]
	}
	r.mu.RUnlock()

	var execs []SignalExecution
	for i, ent := range ents {
		ent.engine.UpdateMarketPrice(tick.Symbol, tick.Price, tick.Ts)

		sig, ok := ent.strat.Signal(tick.Symbol, tick.Price)
		ent.strat.UpdatePrice(tick.Symbol, tick.Price)
		if !ok {
			continue
		}

		if r.mon != nil {
			r.mon.RecordSignal(ids[i], string(sig.Side))
		}
		r.log.LogSignal(ids[i], tick.Symbol, map[string]interface{}{
			"side":        string(sig.Side),
			"entry_price": sig.EntryPrice,
			"stop_loss":   sig.StopLoss,
			"take_profit": sig.TakeProfit,
			"confidence":  sig.Confidence,
			"reason":      sig.Reason,
		})

		if !r.cfg.AutoExecute {
			continue
		}
		exec, err := r.execute(ids[i], ent, sig)
		if err != nil {
			r.log.Warn("signal execution skipped",
				zap.String("account", ids[i]),
				zap.String("symbol", tick.Symbol),
				zap.Error(err))
			continue
		}
		execs = append(execs, *exec)
	}
	return execs
}

// Signal 用该账户引擎的最新行情价查询策略信号。
func (r *Registry) Signal(accountID, symbol string) (*strategy.Signal, bool) {
	ent, err := r.getOrCreate(accountID)
	if err != nil {
		return nil, false
	}
	price, ok := ent.engine.LastPrice(symbol)
	if !ok {
		return nil, false
	}
	return ent.strat.Signal(symbol, price)
}

// ExecuteSignal 按固定风险比例给信号定尺寸并市价入场，
// 入场成交后以相同数量挂反向的止损与止盈括号单。
func (r *Registry) ExecuteSignal(accountID string, sig *strategy.Signal) (*SignalExecution, error) {
	if sig == nil {
		return nil, errors.New("nil signal")
	}
	ent, err := r.getOrCreate(accountID)
	if err != nil {
		return nil, err
	}
	return r.execute(accountID, ent, sig)
}

// execute 信号执行主路径。括号单失败只记日志，不回滚已成交的入场单。
func (r *Registry) execute(accountID string, ent *entry, sig *strategy.Signal) (*SignalExecution, error) {
	balance := ent.engine.AccountSummary().CurrentBalance
	qty := ent.risk.PositionSize(balance, sig.EntryPrice, sig.StopLoss)
	if qty <= 0 {
		return nil, fmt.Errorf("no tradable size for %s (balance %.2f, entry %.4f, stop %.4f)",
			sig.Symbol, balance, sig.EntryPrice, sig.StopLoss)
	}

	entryID, err := ent.engine.PlaceOrder(engine.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     sig.Side,
		Type:     order.TypeMarket,
		Quantity: qty,
	})
	if err != nil {
		return nil, fmt.Errorf("entry order: %w", err)
	}

	exec := &SignalExecution{
		AccountID:    accountID,
		Signal:       *sig,
		Quantity:     qty,
		EntryOrderID: entryID,
	}

	bracket := sig.Side.Opposite()
	stopID, err := ent.engine.PlaceOrder(engine.OrderRequest{
		Symbol:    sig.Symbol,
		Side:      bracket,
		Type:      order.TypeStop,
		Quantity:  qty,
		StopPrice: sig.StopLoss,
	})
	if err != nil {
		r.log.Warn("stop-loss bracket rejected",
			zap.String("account", accountID),
			zap.String("symbol", sig.Symbol),
			zap.Error(err))
	} else {
		exec.StopOrderID = stopID
	}

	targetID, err := ent.engine.PlaceOrder(engine.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     bracket,
		Type:     order.TypeLimit,
		Quantity: qty,
		Price:    sig.TakeProfit,
	})
	if err != nil {
		r.log.Warn("take-profit bracket rejected",
			zap.String("account", accountID),
			zap.String("symbol", sig.Symbol),
			zap.Error(err))
	} else {
		exec.TargetOrderID = targetID
	}

	r.log.LogOrder("signal_executed", accountID, entryID, map[string]interface{}{
		"symbol":   sig.Symbol,
		"side":     string(sig.Side),
		"quantity": qty,
		"stop":     exec.StopOrderID,
		"target":   exec.TargetOrderID,
	})
	return exec, nil
}

// SampleEquity 为所有账户采样一次总权益。
func (r *Registry) SampleEquity(ts time.Time) {
	r.mu.RLock()
	ents := make([]*entry, 0, len(r.entries))
	for _, ent := range r.entries {
		ents = append(ents, ent)
	}
	r.mu.RUnlock()

	for _, ent := range ents {
		sum := ent.engine.AccountSummary()
		ent.tracker.SampleEquity(sum.TotalEquity, ts)
	}
}

// Performance 返回账户绩效报告。
func (r *Registry) Performance(accountID string) (posttrade.Report, error) {
	r.mu.RLock()
	ent, ok := r.entries[accountID]
	r.mu.RUnlock()
	if !ok {
		return posttrade.Report{}, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	return ent.tracker.Report(), nil
}

// SetLimits 热更新风控参数：应用到所有在册账户，并作为新账户的模板。
func (r *Registry) SetLimits(l risk.Limits) {
	r.mu.Lock()
	r.cfg.Limits = l
	ents := make([]*entry, 0, len(r.entries))
	for _, ent := range r.entries {
		ents = append(ents, ent)
	}
	r.mu.Unlock()

	for _, ent := range ents {
		ent.risk.SetLimits(l)
	}
	r.log.Info("risk limits updated",
		zap.Float64("max_risk_per_trade", l.MaxRiskPerTrade),
		zap.Float64("max_daily_loss", l.MaxDailyLoss),
		zap.Int("max_positions", l.MaxPositions))
}

// Accounts 返回已注册账户，已排序。
func (r *Registry) Accounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len 返回当前账户数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// StopAll 停止并清空所有账户，进程退出前调用。
func (r *Registry) StopAll() {
	r.mu.Lock()
	ents := make([]*entry, 0, len(r.entries))
	for _, ent := range r.entries {
		ents = append(ents, ent)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, ent := range ents {
		_ = ent.engine.Stop()
	}
}

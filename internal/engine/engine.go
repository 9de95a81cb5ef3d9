package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/alert"
	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
	"github.com/alkrab112-web/neon-trader-v7/infrastructure/monitor"
	"github.com/alkrab112-web/neon-trader-v7/inventory"
	"github.com/alkrab112-web/neon-trader-v7/market"
	"github.com/alkrab112-web/neon-trader-v7/order"
	"github.com/alkrab112-web/neon-trader-v7/risk"
)

const (
	// DefaultInitialBalance 默认初始资金
	DefaultInitialBalance = 10000.0
	// DefaultTradeLimit 成交查询默认条数
	DefaultTradeLimit = 100
)

// Config 引擎配置
type Config struct {
	AccountID       string  // 账户标识
	InitialBalance  float64 // 初始资金，0 取默认值
	TradeCommission float64 // 每笔成交记录的手续费，只记账不扣减
}

// Components 引擎依赖组件
type Components struct {
	Risk    *risk.Manager    // 必填，下单前校验与日内盈亏累计
	Logger  *logger.Logger   // 缺省为 Nop
	Monitor *monitor.Monitor // 可选，Prometheus 指标
	Alerts  *alert.Manager   // 可选，风控告警
	Fills   FillSink         // 可选，成交旁路消费（绩效统计等）
	Clock   risk.Clock       // 缺省为 UTC 实时钟
}

// FillSink 接收成交回报。realized 为该笔成交净出的已实现盈亏。
type FillSink interface {
	OnFill(t order.Trade, realized float64)
}

// OrderRequest 下单请求
type OrderRequest struct {
	Symbol    string
	Side      order.Side
	Type      order.Type
	Quantity  float64
	Price     float64 // limit/stop_limit 的限价
	StopPrice float64 // stop/stop_limit 的触发价
}

// AccountSummary 账户快照
type AccountSummary struct {
	AccountID      string
	InitialBalance float64
	CurrentBalance float64
	UnrealizedPnL  float64
	RealizedPnL    float64
	TotalEquity    float64 // CurrentBalance + UnrealizedPnL
	OpenPositions  int
	PendingOrders  int
	TotalTrades    int
}

// PaperEngine 单账户模拟交易引擎。
// 一把互斥锁覆盖全部状态变更：下单、撤单、平仓、行情落账以及内部成交记账，
// 查询走同一把锁并返回深拷贝，快照不会观察到半笔成交。
type PaperEngine struct {
	cfg Config

	riskMgr *risk.Manager
	log     *logger.Logger
	mon     *monitor.Monitor
	alerts  *alert.Manager
	fills   FillSink
	clock   risk.Clock

	mu          sync.Mutex
	running     bool
	balance     float64
	realizedPnL float64
	orders      map[string]*order.Order
	positions   map[string]*inventory.Position // symbol -> 净仓位，每个交易对至多一个
	trades      []order.Trade                  // 按成交先后追加
	prices      *market.Table
}

// New 创建引擎
func New(cfg Config, comp Components) (*PaperEngine, error) {
	if cfg.AccountID == "" {
		return nil, errors.New("account id is required")
	}
	if cfg.InitialBalance < 0 {
		return nil, fmt.Errorf("initial balance must be >= 0, got %.2f", cfg.InitialBalance)
	}
	if cfg.InitialBalance == 0 {
		cfg.InitialBalance = DefaultInitialBalance
	}
	if cfg.TradeCommission < 0 {
		return nil, fmt.Errorf("trade commission must be >= 0, got %.8f", cfg.TradeCommission)
	}
	if comp.Risk == nil {
		return nil, errors.New("risk manager is required")
	}
	if comp.Logger == nil {
		comp.Logger = logger.Nop()
	}
	if comp.Clock == nil {
		comp.Clock = risk.NowUTC
	}

	return &PaperEngine{
		cfg:       cfg,
		riskMgr:   comp.Risk,
		log:       comp.Logger,
		mon:       comp.Monitor,
		alerts:    comp.Alerts,
		fills:     comp.Fills,
		clock:     comp.Clock,
		balance:   cfg.InitialBalance,
		orders:    make(map[string]*order.Order),
		positions: make(map[string]*inventory.Position),
		prices:    market.NewTable(),
	}, nil
}

// Start 启动引擎，重复启动返回错误。
func (e *PaperEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("engine already running (account: %s)", e.cfg.AccountID)
	}
	e.running = true
	e.log.Info("paper engine started",
		zap.String("account", e.cfg.AccountID),
		zap.Float64("balance", e.balance))
	return nil
}

// Stop 停止引擎，之后的下单被拒绝。幂等。
func (e *PaperEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false
	e.log.Info("paper engine stopped",
		zap.String("account", e.cfg.AccountID),
		zap.Float64("balance", e.balance),
		zap.Int("open_positions", len(e.positions)))
	return nil
}

// Running 返回引擎运行状态。
func (e *PaperEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// AccountID 返回账户标识。
func (e *PaperEngine) AccountID() string { return e.cfg.AccountID }

// PlaceOrder 校验并登记一笔订单。
// 市价单立即按该交易对最近一条行情成交；limit/stop/stop_limit 挂起等待触发。
// 风控拒绝的订单不入簿；无行情的市价单入簿并置为 rejected，返回错误。
func (e *PaperEngine) PlaceOrder(req OrderRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placeLocked(req)
}

// placeLocked 下单主路径。调用方必须持有 e.mu。
func (e *PaperEngine) placeLocked(req OrderRequest) (string, error) {
	if !e.running {
		return "", fmt.Errorf("%w: account %s", ErrEngineStopped, e.cfg.AccountID)
	}
	if req.Symbol == "" {
		return "", errors.New("symbol is required")
	}
	if !req.Side.Valid() {
		return "", fmt.Errorf("invalid order side %q", req.Side)
	}
	if !req.Type.Valid() {
		return "", fmt.Errorf("invalid order type %q", req.Type)
	}

	now := e.clock.Now()
	o := order.New(req.Symbol, req.Side, req.Type, req.Quantity, req.Price, req.StopPrice, now)

	if err := e.riskMgr.ValidateOrder(o, e.balance, len(e.positions)); err != nil {
		e.rejectByRiskLocked(o, err)
		return "", err
	}

	e.orders[o.ID] = o
	if e.mon != nil {
		e.mon.RecordOrderPlaced(e.cfg.AccountID)
	}
	e.log.LogOrder("placed", e.cfg.AccountID, o.ID, map[string]interface{}{
		"symbol":   o.Symbol,
		"side":     string(o.Side),
		"type":     string(o.Type),
		"quantity": o.Quantity,
		"price":    o.Price,
	})

	if o.Type == order.TypeMarket {
		tick, ok := e.prices.Last(o.Symbol)
		if !ok {
			o.Status = order.StatusRejected
			o.UpdatedAt = now
			if e.mon != nil {
				e.mon.RecordOrderRejected(e.cfg.AccountID)
			}
			e.log.LogOrder("rejected", e.cfg.AccountID, o.ID, map[string]interface{}{
				"symbol": o.Symbol,
				"reason": "no market data",
			})
			e.updateGaugesLocked()
			return "", fmt.Errorf("%w: %s", ErrNoMarketData, o.Symbol)
		}
		e.fillLocked(o, tick.Price, now)
	}

	e.updateGaugesLocked()
	return o.ID, nil
}

// rejectByRiskLocked 风控拒单的记录与告警。订单不入簿。
func (e *PaperEngine) rejectByRiskLocked(o *order.Order, cause error) {
	if e.mon != nil {
		e.mon.RecordOrderRejected(e.cfg.AccountID)
	}
	e.log.LogRisk("order_rejected", e.cfg.AccountID, map[string]interface{}{
		"symbol":   o.Symbol,
		"side":     string(o.Side),
		"type":     string(o.Type),
		"quantity": o.Quantity,
		"reason":   cause.Error(),
	})
	if e.alerts == nil {
		return
	}
	if errors.Is(cause, risk.ErrDailyLossLimit) {
		e.alerts.SendError(e.cfg.AccountID, "daily loss limit reached, new orders blocked", map[string]interface{}{
			"daily_pnl": e.riskMgr.DailyPnL(),
		})
	} else {
		e.alerts.SendWarning(e.cfg.AccountID, "order rejected by risk checks", map[string]interface{}{
			"reason": cause.Error(),
		})
	}
}

// CancelOrder 撤单。仅 pending 状态可撤，已终态返回 ErrAlreadyTerminal。
func (e *PaperEngine) CancelOrder(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if !o.Status.CanCancel() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, o.Status)
	}

	o.Status = order.StatusCancelled
	o.UpdatedAt = e.clock.Now()
	if e.mon != nil {
		e.mon.RecordOrderCancelled(e.cfg.AccountID)
	}
	e.log.LogOrder("cancelled", e.cfg.AccountID, id, map[string]interface{}{
		"symbol": o.Symbol,
	})
	e.updateGaugesLocked()
	return nil
}

// ClosePosition 以市价平掉指定仓位，qty<=0 表示全平。
// 平仓单与普通订单走同一条风控与成交路径，因此也会产生常规 Trade。
func (e *PaperEngine) ClosePosition(positionID string, qty float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pos *inventory.Position
	for _, p := range e.positions {
		if p.ID == positionID {
			pos = p
			break
		}
	}
	if pos == nil {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}

	if qty <= 0 {
		qty = pos.Quantity
	}
	if qty > pos.Quantity {
		return fmt.Errorf("%w: close %.8f, position %.8f", ErrOverClose, qty, pos.Quantity)
	}

	side := order.SideSell
	if pos.Side == inventory.Short {
		side = order.SideBuy
	}

	_, err := e.placeLocked(OrderRequest{
		Symbol:   pos.Symbol,
		Side:     side,
		Type:     order.TypeMarket,
		Quantity: qty,
	})
	return err
}

// UpdateMarketPrice 行情入口。对该交易对依次执行：
// 更新行情表、重估持仓、扫描并成交触发条件成立的挂单。
// 锁保证同一交易对前一条 tick 完全落账后才处理下一条。
func (e *PaperEngine) UpdateMarketPrice(symbol string, price float64, ts time.Time) {
	start := time.Now()
	if ts.IsZero() {
		ts = e.clock.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.prices.Update(market.Tick{Symbol: symbol, Price: price, Ts: ts})

	if pos, ok := e.positions[symbol]; ok {
		pos.Mark(price)
		pos.UpdatedAt = ts
	}

	for _, o := range e.triggeredLocked(symbol, price) {
		e.fillLocked(o, price, ts)
	}

	if e.mon != nil {
		e.mon.RecordTick(symbol)
		e.mon.ObserveTickApply(time.Since(start).Seconds())
	}
	e.updateGaugesLocked()
}

// triggeredLocked 返回触发条件成立的挂单，按下单先后排序保证成交顺序确定。
// limit buy: price <= 限价；limit sell: price >= 限价；
// stop buy: price >= 触发价；stop sell: price <= 触发价。
// stop_limit 接受挂单但从不自动触发。
func (e *PaperEngine) triggeredLocked(symbol string, price float64) []*order.Order {
	var hits []*order.Order
	for _, o := range e.orders {
		if o.Symbol != symbol || o.Status != order.StatusPending {
			continue
		}
		switch o.Type {
		case order.TypeLimit:
			if (o.Side == order.SideBuy && price <= o.Price) ||
				(o.Side == order.SideSell && price >= o.Price) {
				hits = append(hits, o)
			}
		case order.TypeStop:
			if (o.Side == order.SideBuy && price >= o.StopPrice) ||
				(o.Side == order.SideSell && price <= o.StopPrice) {
				hits = append(hits, o)
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	return hits
}

// fillLocked 以 price 全量成交订单并完成记账。调用方必须持有 e.mu。
// 订单置终态、追加 Trade、仓位净入、余额增减、已实现盈亏喂给风控，
// 整个序列在锁内一次完成，不存在半笔成交。
func (e *PaperEngine) fillLocked(o *order.Order, price float64, ts time.Time) {
	o.Status = order.StatusFilled
	o.FilledQuantity = o.Quantity
	o.AvgPrice = price
	o.UpdatedAt = ts

	t := order.NewTrade(o, price, e.cfg.TradeCommission, ts)
	e.trades = append(e.trades, t)

	buy := o.Side == order.SideBuy
	var realized float64
	if pos, ok := e.positions[o.Symbol]; ok {
		var closed bool
		realized, closed = pos.Apply(buy, o.Quantity, price, ts)
		if closed {
			delete(e.positions, o.Symbol)
		}
	} else {
		e.positions[o.Symbol] = inventory.Open(o.Symbol, buy, o.Quantity, price, ts)
	}

	value := o.Quantity * price
	if buy {
		e.balance -= value
	} else {
		e.balance += value
	}

	e.realizedPnL += realized
	if realized != 0 {
		e.riskMgr.UpdateDailyPnL(realized)
	}

	if e.mon != nil {
		e.mon.RecordOrderFilled(e.cfg.AccountID)
		e.mon.RecordTrade(e.cfg.AccountID, value)
	}
	e.log.LogTrade(e.cfg.AccountID, t.ID, map[string]interface{}{
		"order_id":     o.ID,
		"symbol":       o.Symbol,
		"side":         string(o.Side),
		"quantity":     o.Quantity,
		"price":        price,
		"realized_pnl": realized,
	})
	if e.fills != nil {
		e.fills.OnFill(t, realized)
	}
}

// updateGaugesLocked 推送账户级指标。调用方必须持有 e.mu。
func (e *PaperEngine) updateGaugesLocked() {
	if e.mon == nil {
		return
	}
	var unrealized float64
	for _, p := range e.positions {
		unrealized += p.UnrealizedPnL
	}
	pending := 0
	for _, o := range e.orders {
		if o.Status == order.StatusPending {
			pending++
		}
	}
	e.mon.UpdateAccount(e.cfg.AccountID,
		e.balance, e.balance+unrealized, unrealized, e.realizedPnL,
		len(e.positions), pending)
}

// AccountSummary 返回账户快照。总权益 = 余额 + 未实现盈亏。
func (e *PaperEngine) AccountSummary() AccountSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	var unrealized float64
	for _, p := range e.positions {
		unrealized += p.UnrealizedPnL
	}
	pending := 0
	for _, o := range e.orders {
		if o.Status == order.StatusPending {
			pending++
		}
	}

	return AccountSummary{
		AccountID:      e.cfg.AccountID,
		InitialBalance: e.cfg.InitialBalance,
		CurrentBalance: e.balance,
		UnrealizedPnL:  unrealized,
		RealizedPnL:    e.realizedPnL,
		TotalEquity:    e.balance + unrealized,
		OpenPositions:  len(e.positions),
		PendingOrders:  pending,
		TotalTrades:    len(e.trades),
	}
}

// Positions 返回持仓快照，按交易对排序。
func (e *PaperEngine) Positions() []inventory.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]inventory.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Orders 返回订单快照，status 为空串时返回全部，按创建先后排序。
func (e *PaperEngine) Orders(status order.Status) []order.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]order.Order, 0, len(e.orders))
	for _, o := range e.orders {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Trades 返回成交记录，最新的在前。limit<=0 取默认 100 条。
func (e *PaperEngine) Trades(symbol string, limit int) []order.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	out := make([]order.Trade, 0, limit)
	for i := len(e.trades) - 1; i >= 0 && len(out) < limit; i-- {
		t := e.trades[i]
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		out = append(out, t)
	}
	return out
}

// LastPrice 返回该交易对最近一条行情价格。
func (e *PaperEngine) LastPrice(symbol string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tk, ok := e.prices.Last(symbol)
	return tk.Price, ok
}

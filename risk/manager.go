package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alkrab112-web/neon-trader-v7/order"
)

// Limits 账户级风控配置。
type Limits struct {
	MaxRiskPerTrade float64 // 单笔风险占余额比例
	MaxDailyLoss    float64 // 日内最大亏损占余额比例
	MaxPositions    int     // 最大同时持仓数
	MaxLeverage     float64 // 预留，暂只通过持仓数限制敞口
}

// DefaultLimits returns the stock paper-trading limits.
func DefaultLimits() Limits {
	return Limits{
		MaxRiskPerTrade: 0.005,
		MaxDailyLoss:    0.02,
		MaxPositions:    10,
		MaxLeverage:     1.0,
	}
}

// Manager 维护日内已实现盈亏并做下单前校验。
// 仓位规模与订单校验本身是纯函数，状态只有日内累计和交易日标记。
type Manager struct {
	mu       sync.Mutex
	limits   Limits
	dailyPnL float64
	day      time.Time // 当前交易日（UTC 零点）
	clock    Clock
}

func NewManager(limits Limits) *Manager {
	m := &Manager{limits: limits, clock: NowUTC}
	m.day = m.clock.Now().UTC().Truncate(24 * time.Hour)
	return m
}

// PositionSize 以固定风险比例推算下单数量。
// 任一价格非正或止损距离为零时返回 0，避免除零和退化止损。
func (m *Manager) PositionSize(balance, entry, stop float64) float64 {
	if entry <= 0 || stop <= 0 {
		return 0
	}
	perUnit := math.Abs(entry - stop)
	if perUnit == 0 {
		return 0
	}
	m.mu.Lock()
	riskAmount := balance * m.limits.MaxRiskPerTrade
	m.mu.Unlock()
	return riskAmount / perUnit
}

// ValidateOrder 下单前校验，按日亏、持仓数、数量、价格的顺序短路返回。
func (m *Manager) ValidateOrder(o *order.Order, balance float64, openPositions int) error {
	m.mu.Lock()
	limits := m.limits
	daily := m.dailyPnL
	m.mu.Unlock()

	if daily <= -(balance * limits.MaxDailyLoss) {
		return fmt.Errorf("%w: daily pnl %.2f, balance %.2f", ErrDailyLossLimit, daily, balance)
	}
	if openPositions >= limits.MaxPositions {
		return fmt.Errorf("%w: %d open, max %d", ErrPositionLimit, openPositions, limits.MaxPositions)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: %.8f", ErrInvalidQuantity, o.Quantity)
	}
	if o.Type.NeedsPrice() && o.Price <= 0 {
		return fmt.Errorf("%w: %s order needs a positive price", ErrInvalidPrice, o.Type)
	}
	return nil
}

// UpdateDailyPnL 累计日内已实现盈亏。
// 首次观察到 UTC 跨日时先清零再累加。
func (m *Manager) UpdateDailyPnL(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := m.clock.Now().UTC().Truncate(24 * time.Hour)
	if today.After(m.day) {
		m.dailyPnL = 0
		m.day = today
	}
	m.dailyPnL += delta
}

// DailyPnL 返回当前日内累计。
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

// SetLimits 热更新风控参数，校验责任在配置层。
func (m *Manager) SetLimits(l Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = l
}

// CurrentLimits 返回当前配置快照。
func (m *Manager) CurrentLimits() Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

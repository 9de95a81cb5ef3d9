package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。
// 账户维度用label区分，一个进程内的多账户引擎共用一个Monitor。
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersPlaced    *prometheus.CounterVec
	ordersFilled    *prometheus.CounterVec
	ordersCancelled *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec

	// 成交指标
	tradesTotal  *prometheus.CounterVec
	tradedVolume *prometheus.CounterVec

	// 账户指标
	balance       *prometheus.GaugeVec
	equity        *prometheus.GaugeVec
	unrealizedPnL *prometheus.GaugeVec
	realizedPnL   *prometheus.GaugeVec
	openPositions *prometheus.GaugeVec
	pendingOrders *prometheus.GaugeVec

	// 行情与策略指标
	ticksTotal   *prometheus.CounterVec
	signalsTotal *prometheus.CounterVec
	tickApply    prometheus.Histogram

	// 行情源连接指标
	feedConnected  prometheus.Gauge
	feedReconnects prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "neontrader",
		Subsystem: "paper",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		ordersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_placed_total",
			Help:      "订单下单总数",
		}, []string{"account"}),
		ordersFilled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_filled_total",
			Help:      "订单成交总数",
		}, []string{"account"}),
		ordersCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_cancelled_total",
			Help:      "订单撤单总数",
		}, []string{"account"}),
		ordersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_rejected_total",
			Help:      "订单拒绝总数",
		}, []string{"account"}),

		tradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trades_total",
			Help:      "成交笔数总数",
		}, []string{"account"}),
		tradedVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "traded_volume_total",
			Help:      "累计成交量",
		}, []string{"account"}),

		balance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "balance",
			Help:      "现金余额",
		}, []string{"account"}),
		equity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "equity",
			Help:      "总权益（余额+未实现盈亏）",
		}, []string{"account"}),
		unrealizedPnL: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "unrealized_pnl",
			Help:      "未实现盈亏",
		}, []string{"account"}),
		realizedPnL: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "realized_pnl",
			Help:      "已实现盈亏",
		}, []string{"account"}),
		openPositions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open_positions",
			Help:      "当前持仓数",
		}, []string{"account"}),
		pendingOrders: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "pending_orders",
			Help:      "当前挂单数",
		}, []string{"account"}),

		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ticks_total",
			Help:      "行情tick总数",
		}, []string{"symbol"}),
		signalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "signals_total",
			Help:      "策略信号总数",
		}, []string{"account", "side"}),
		tickApply: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_apply_seconds",
			Help:      "单次tick处理耗时（秒）",
			Buckets:   []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1},
		}),

		feedConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feed_connected",
			Help:      "行情源连接状态（1=已连接）",
		}),
		feedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feed_reconnects_total",
			Help:      "行情源重连次数",
		}),
	}

	return m
}

// 订单相关方法
func (m *Monitor) RecordOrderPlaced(account string) {
	m.ordersPlaced.WithLabelValues(account).Inc()
}

func (m *Monitor) RecordOrderFilled(account string) {
	m.ordersFilled.WithLabelValues(account).Inc()
}

func (m *Monitor) RecordOrderCancelled(account string) {
	m.ordersCancelled.WithLabelValues(account).Inc()
}

func (m *Monitor) RecordOrderRejected(account string) {
	m.ordersRejected.WithLabelValues(account).Inc()
}

// 成交相关方法
func (m *Monitor) RecordTrade(account string, volume float64) {
	m.tradesTotal.WithLabelValues(account).Inc()
	m.tradedVolume.WithLabelValues(account).Add(volume)
}

// UpdateAccount 刷新账户级指标快照。
func (m *Monitor) UpdateAccount(account string, balance, equity, unrealized, realized float64, openPositions, pendingOrders int) {
	m.balance.WithLabelValues(account).Set(balance)
	m.equity.WithLabelValues(account).Set(equity)
	m.unrealizedPnL.WithLabelValues(account).Set(unrealized)
	m.realizedPnL.WithLabelValues(account).Set(realized)
	m.openPositions.WithLabelValues(account).Set(float64(openPositions))
	m.pendingOrders.WithLabelValues(account).Set(float64(pendingOrders))
}

// 行情与策略相关方法
func (m *Monitor) RecordTick(symbol string) {
	m.ticksTotal.WithLabelValues(symbol).Inc()
}

func (m *Monitor) RecordSignal(account, side string) {
	m.signalsTotal.WithLabelValues(account, side).Inc()
}

func (m *Monitor) ObserveTickApply(seconds float64) {
	m.tickApply.Observe(seconds)
}

// 行情源连接相关方法
func (m *Monitor) SetFeedConnected(connected bool) {
	if connected {
		m.feedConnected.Set(1)
	} else {
		m.feedConnected.Set(0)
	}
}

func (m *Monitor) RecordFeedReconnect() {
	m.feedReconnects.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

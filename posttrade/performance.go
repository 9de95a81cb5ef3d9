package posttrade

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/alkrab112-web/neon-trader-v7/order"
)

const (
	// DefaultMaxSamples 权益采样保留上限
	DefaultMaxSamples = 10000
	// DefaultSampleInterval 默认采样间隔，用于夏普年化
	DefaultSampleInterval = time.Minute
)

// Config 绩效统计配置
type Config struct {
	Account        string
	InitialBalance float64
	MaxSamples     int           // 采样上限，超出时丢弃最旧的
	SampleInterval time.Duration // 采样间隔
}

// Tracker 按账户累计权益采样与成交结果。
// 实现引擎的成交回报接口，平仓成交（已实现盈亏非零）计入胜负。
type Tracker struct {
	mu sync.Mutex

	account    string
	initial    float64
	maxSamples int
	interval   time.Duration

	equity   []float64
	sampleTs []time.Time

	peak        float64
	maxDrawdown float64

	trades   int
	closing  int
	wins     int
	realized float64
}

// Report 绩效报告
type Report struct {
	Account        string
	InitialBalance float64
	FinalEquity    float64
	TotalReturn    float64 // (最终权益-初始)/初始
	TotalTrades    int
	ClosingTrades  int // 产生已实现盈亏的成交
	WinningTrades  int
	WinRate        float64
	MaxDrawdown    float64
	SharpeRatio    float64
	RealizedPnL    float64
}

// NewTracker 创建绩效跟踪器。
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultMaxSamples
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	return &Tracker{
		account:    cfg.Account,
		initial:    cfg.InitialBalance,
		maxSamples: cfg.MaxSamples,
		interval:   cfg.SampleInterval,
		peak:       cfg.InitialBalance,
	}
}

// OnFill 记录一笔成交。realized 非零说明本笔净出了已实现盈亏。
func (t *Tracker) OnFill(_ order.Trade, realized float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.trades++
	t.realized += realized
	if realized == 0 {
		return
	}
	t.closing++
	if realized > 0 {
		t.wins++
	}
}

// SampleEquity 追加一次权益采样并滚动更新峰值回撤。
func (t *Tracker) SampleEquity(equity float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.equity = append(t.equity, equity)
	t.sampleTs = append(t.sampleTs, ts)
	if len(t.equity) > t.maxSamples {
		t.equity = t.equity[len(t.equity)-t.maxSamples:]
		t.sampleTs = t.sampleTs[len(t.sampleTs)-t.maxSamples:]
	}

	if equity > t.peak {
		t.peak = equity
	}
	if t.peak > 0 {
		if dd := (t.peak - equity) / t.peak; dd > t.maxDrawdown {
			t.maxDrawdown = dd
		}
	}
}

// Samples 返回当前采样条数。
func (t *Tracker) Samples() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.equity)
}

// Report 汇总当前绩效。
func (t *Tracker) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	final := t.initial
	if len(t.equity) > 0 {
		final = t.equity[len(t.equity)-1]
	}

	var totalReturn float64
	if t.initial > 0 {
		totalReturn = (final - t.initial) / t.initial
	}

	var winRate float64
	if t.closing > 0 {
		winRate = float64(t.wins) / float64(t.closing)
	}

	return Report{
		Account:        t.account,
		InitialBalance: t.initial,
		FinalEquity:    final,
		TotalReturn:    totalReturn,
		TotalTrades:    t.trades,
		ClosingTrades:  t.closing,
		WinningTrades:  t.wins,
		WinRate:        winRate,
		MaxDrawdown:    t.maxDrawdown,
		SharpeRatio:    t.sharpeLocked(),
		RealizedPnL:    t.realized,
	}
}

// sharpeLocked 逐样本收益率的均值/标准差，按采样频率年化。
// 样本不足两个或方差为零时返回 0。调用方必须持有 t.mu。
func (t *Tracker) sharpeLocked() float64 {
	if len(t.equity) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(t.equity)-1)
	for i := 1; i < len(t.equity); i++ {
		prev := t.equity[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, (t.equity[i]-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))
	if variance == 0 {
		return 0
	}

	samplesPerYear := (365 * 24 * time.Hour).Seconds() / t.interval.Seconds()
	return mean / math.Sqrt(variance) * math.Sqrt(samplesPerYear)
}

// String 渲染文本报告。
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== 绩效报告: %s ===\n", r.Account)
	fmt.Fprintf(&b, "初始资金: %.2f\n", r.InitialBalance)
	fmt.Fprintf(&b, "最终权益: %.2f\n", r.FinalEquity)
	fmt.Fprintf(&b, "总收益率: %.2f%%\n", r.TotalReturn*100)
	fmt.Fprintf(&b, "已实现盈亏: %.2f\n", r.RealizedPnL)
	fmt.Fprintf(&b, "总成交: %d (平仓 %d, 盈利 %d)\n", r.TotalTrades, r.ClosingTrades, r.WinningTrades)
	fmt.Fprintf(&b, "胜率: %.2f%%\n", r.WinRate*100)
	fmt.Fprintf(&b, "最大回撤: %.2f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(&b, "夏普比率: %.2f\n", r.SharpeRatio)
	b.WriteString("================")
	return b.String()
}

package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/alkrab112-web/neon-trader-v7/risk"
	"github.com/alkrab112-web/neon-trader-v7/sim"
	"github.com/alkrab112-web/neon-trader-v7/strategy"
)

// 本地离线模拟：随机游走行情驱动突破策略，信号自动执行，
// 结束后打印绩效报告。不连任何交易所。
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "交易对")
	seed := flag.Int64("seed", time.Now().UnixNano(), "随机种子，固定后结果可复现")
	ticks := flag.Int("ticks", 1000, "行情条数")
	startPrice := flag.Float64("startPrice", 50000, "起始价格")
	volatility := flag.Float64("volatility", 0.002, "单步最大相对波动")
	balance := flag.Float64("balance", 10000, "初始资金")
	commission := flag.Float64("commission", 0, "每笔成交手续费率")
	period := flag.Int("period", 20, "突破回看窗口")
	riskReward := flag.Float64("riskReward", 2, "止盈距离/止损距离")
	riskPerTrade := flag.Float64("riskPerTrade", 0.005, "单笔风险占余额比例")
	maxDailyLoss := flag.Float64("maxDailyLoss", 0.02, "日内最大亏损比例")
	maxPositions := flag.Int("maxPositions", 10, "最大同时持仓数")
	flag.Parse()

	runner, err := sim.Build(sim.Config{
		Account:        "sim",
		InitialBalance: *balance,
		Commission:     *commission,
		Limits: risk.Limits{
			MaxRiskPerTrade: *riskPerTrade,
			MaxDailyLoss:    *maxDailyLoss,
			MaxPositions:    *maxPositions,
			MaxLeverage:     1,
		},
		Strategy: strategy.Config{Period: *period, RiskReward: *riskReward},
	})
	if err != nil {
		log.Fatalf("构建模拟器失败: %v", err)
	}
	defer runner.Registry().StopAll()

	res, err := runner.Run(sim.NewRandomWalk(sim.WalkConfig{
		Symbol:     *symbol,
		Seed:       *seed,
		Ticks:      *ticks,
		StartPrice: *startPrice,
		Volatility: *volatility,
	}))
	if err != nil {
		log.Fatalf("回放失败: %v", err)
	}

	fmt.Printf("seed=%d ticks=%d executions=%d\n", *seed, res.Ticks, len(res.Executions))
	fmt.Println(res.Report.String())
	fmt.Printf("期末余额: %.2f  未实现盈亏: %.2f  持仓: %d  挂单: %d\n",
		res.Summary.CurrentBalance, res.Summary.UnrealizedPnL,
		res.Summary.OpenPositions, res.Summary.PendingOrders)
}

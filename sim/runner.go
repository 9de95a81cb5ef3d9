package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
	"github.com/alkrab112-web/neon-trader-v7/internal/engine"
	"github.com/alkrab112-web/neon-trader-v7/internal/registry"
	"github.com/alkrab112-web/neon-trader-v7/posttrade"
	"github.com/alkrab112-web/neon-trader-v7/risk"
	"github.com/alkrab112-web/neon-trader-v7/strategy"
)

// Config 一次离线模拟的参数，零值字段取默认。
type Config struct {
	Account        string
	InitialBalance float64
	Commission     float64
	Limits         risk.Limits
	Strategy       strategy.Config
	SampleInterval time.Duration
	Logger         *logger.Logger
}

// Result 一次模拟回放的产出。
type Result struct {
	Ticks      int
	Executions []registry.SignalExecution
	Report     posttrade.Report
	Summary    engine.AccountSummary
}

// Runner 把行情源逐条广播进注册表，突破信号即时落单，
// 每条行情之后采样一次权益。
type Runner struct {
	reg     *registry.Registry
	account string
}

// Build 组装一个自动执行信号的模拟 Runner。
func Build(cfg Config) (*Runner, error) {
	if cfg.Account == "" {
		cfg.Account = "sim"
	}
	reg, err := registry.New(registry.Config{
		InitialBalance:  cfg.InitialBalance,
		TradeCommission: cfg.Commission,
		Limits:          cfg.Limits,
		Strategy:        cfg.Strategy,
		AutoExecute:     true,
		SampleInterval:  cfg.SampleInterval,
	}, registry.Components{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	if _, err := reg.GetOrCreate(cfg.Account); err != nil {
		return nil, err
	}
	return &Runner{reg: reg, account: cfg.Account}, nil
}

// Registry 暴露内部注册表，回放结束后可继续查询状态。
func (r *Runner) Registry() *registry.Registry { return r.reg }

// Run 回放行情直到源耗尽。
func (r *Runner) Run(src Source) (*Result, error) {
	if src == nil {
		return nil, errors.New("tick source is required")
	}

	res := &Result{}
	for {
		tick, ok := src.Next()
		if !ok {
			break
		}
		res.Executions = append(res.Executions, r.reg.Broadcast(tick)...)
		r.reg.SampleEquity(tick.Ts)
		res.Ticks++
	}

	report, err := r.reg.Performance(r.account)
	if err != nil {
		return nil, err
	}
	res.Report = report

	eng, err := r.reg.GetOrCreate(r.account)
	if err != nil {
		return nil, err
	}
	res.Summary = eng.AccountSummary()
	return res, nil
}

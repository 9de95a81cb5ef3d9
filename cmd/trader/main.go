package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/alkrab112-web/neon-trader-v7/config"
	"github.com/alkrab112-web/neon-trader-v7/gateway"
	"github.com/alkrab112-web/neon-trader-v7/infrastructure/alert"
	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
	"github.com/alkrab112-web/neon-trader-v7/infrastructure/monitor"
	"github.com/alkrab112-web/neon-trader-v7/internal/app"
	"github.com/alkrab112-web/neon-trader-v7/internal/registry"
	"github.com/alkrab112-web/neon-trader-v7/market"
	"github.com/alkrab112-web/neon-trader-v7/risk"
	"github.com/alkrab112-web/neon-trader-v7/strategy"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "configs/trader.yaml", "配置文件路径")
	account := flag.String("account", "", "覆盖配置中的账户ID")
	initConfig := flag.Bool("init", false, "写出默认配置后退出")
	flag.Parse()

	if *initConfig {
		if err := config.Save(config.Default(), *cfgPath); err != nil {
			log.Fatalf("写默认配置失败: %v", err)
		}
		fmt.Printf("默认配置已写入 %s\n", *cfgPath)
		return
	}

	// .env 不存在不算错误，存在则先于配置加载。
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *account != "" {
		cfg.Account.ID = *account
	}

	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logg.Close()

	mon := monitor.New(monitor.Config{Namespace: cfg.Monitor.Namespace})
	alerts := alert.NewManager([]alert.Channel{alert.NewZapChannel("log", logg)}, time.Minute)

	reg, err := registry.New(registry.Config{
		InitialBalance:  cfg.Account.InitialBalance,
		TradeCommission: cfg.Account.Commission,
		Limits:          riskLimits(cfg.Risk),
		StrategyKind:    cfg.Strategy.Name,
		Strategy: strategy.Config{
			Period:     cfg.Strategy.Period,
			RiskReward: cfg.Strategy.RiskReward,
		},
		AutoExecute:    cfg.Strategy.AutoExecute,
		SampleInterval: cfg.Schedule.EquitySample.Std(),
	}, registry.Components{Logger: logg, Monitor: mon, Alerts: alerts})
	if err != nil {
		log.Fatalf("初始化账户注册表失败: %v", err)
	}
	if _, err := reg.GetOrCreate(cfg.Account.ID); err != nil {
		log.Fatalf("创建默认账户失败: %v", err)
	}

	manager := app.NewManager(logg)

	// 指标与健康检查端点。
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	manager.Register(app.NewHTTPServer("metrics_server", cfg.Monitor.Listen, mux, logg))

	// 配置热更新：风控限额直接下发，其余部分提示需要重启。
	watcher, err := config.NewWatcher(config.WatchConfig{Path: *cfgPath, Logger: logg}, cfg)
	if err != nil {
		log.Fatalf("初始化配置监听失败: %v", err)
	}
	watcher.OnApply(func(old, next config.Config) {
		if next.Risk != old.Risk {
			reg.SetLimits(riskLimits(next.Risk))
		}
		if restartRequired(old, next) {
			logg.Warn("config change needs restart to take effect",
				zap.String("path", *cfgPath))
		}
	})
	manager.Register(&app.Func{
		ComponentName: "config_watcher",
		OnStart:       watcher.Start,
		OnStop:        func(context.Context) error { return watcher.Stop() },
	})

	// 周期任务：权益采样、闲置账户回收、每日绩效汇报。
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if interval := cfg.Schedule.EquitySample.Std(); interval > 0 {
		if _, err := scheduler.AddFunc("@every "+interval.String(), func() {
			reg.SampleEquity(time.Now().UTC())
		}); err != nil {
			log.Fatalf("注册权益采样任务失败: %v", err)
		}
	}
	if interval := cfg.Schedule.IdleEvict.Std(); interval > 0 && cfg.Schedule.IdleAfter > 0 {
		if _, err := scheduler.AddFunc("@every "+interval.String(), func() {
			if n := reg.EvictIdle(cfg.Schedule.IdleAfter.Std()); n > 0 {
				logg.Info("idle accounts evicted", zap.Int("count", n))
			}
		}); err != nil {
			log.Fatalf("注册闲置回收任务失败: %v", err)
		}
	}
	if _, err := scheduler.AddFunc("0 0 * * *", func() {
		for _, id := range reg.Accounts() {
			report, err := reg.Performance(id)
			if err != nil {
				continue
			}
			logg.Info("daily performance report",
				zap.String("account", id),
				zap.Float64("final_equity", report.FinalEquity),
				zap.Float64("total_return", report.TotalReturn),
				zap.Int("total_trades", report.TotalTrades),
				zap.Float64("win_rate", report.WinRate),
				zap.Float64("max_drawdown", report.MaxDrawdown),
				zap.Float64("sharpe", report.SharpeRatio))
		}
	}); err != nil {
		log.Fatalf("注册日报任务失败: %v", err)
	}
	manager.Register(&app.Func{
		ComponentName: "scheduler",
		OnStart: func(context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			done := scheduler.Stop()
			select {
			case <-done.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	// 实时行情：配置了 URL 才接，tick 进注册表广播。
	if cfg.Feed.URL != "" {
		feed, err := gateway.NewFeed(gateway.FeedConfig{
			URL:          cfg.Feed.URL,
			Symbols:      cfg.Feed.Symbols,
			RateLimit:    cfg.Feed.RateLimit,
			ReconnectMax: cfg.Feed.ReconnectMax.Std(),
		}, func(tick market.Tick) {
			reg.Broadcast(tick)
		}, logg, mon)
		if err != nil {
			log.Fatalf("初始化行情源失败: %v", err)
		}
		manager.Register(&app.Func{
			ComponentName: "tick_feed",
			OnStart:       feed.Start,
			OnStop:        feed.Stop,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.StartAll(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	logg.Info("trader started",
		zap.String("account", cfg.Account.ID),
		zap.String("strategy", cfg.Strategy.Name),
		zap.Bool("auto_execute", cfg.Strategy.AutoExecute),
		zap.String("feed", cfg.Feed.URL),
		zap.String("metrics", cfg.Monitor.Listen))

	// systemd 就绪通知与看门狗喂狗。
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go watchdogLoop(ctx, manager, interval)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logg.Info("shutdown signal received", zap.String("signal", sig.String()))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := manager.StopAll(stopCtx); err != nil {
		logg.Warn("components stopped with errors", zap.Error(err))
	}
	reg.StopAll()
	logg.Info("trader stopped")
}

func riskLimits(c config.RiskConfig) risk.Limits {
	return risk.Limits{
		MaxRiskPerTrade: c.MaxRiskPerTrade,
		MaxDailyLoss:    c.MaxDailyLoss,
		MaxPositions:    c.MaxPositions,
		MaxLeverage:     c.MaxLeverage,
	}
}

// restartRequired 判断两份配置在风控之外是否有差异。
// 账户、策略、行情源、监控和日志都在启动时定型，改了只能重启。
func restartRequired(old, next config.Config) bool {
	old.Risk = next.Risk
	return !equalConfig(old, next)
}

func equalConfig(a, b config.Config) bool {
	if a.Account != b.Account || a.Strategy != b.Strategy ||
		a.Monitor != b.Monitor || a.Schedule != b.Schedule {
		return false
	}
	if a.Feed.URL != b.Feed.URL || a.Feed.RateLimit != b.Feed.RateLimit ||
		a.Feed.ReconnectMax != b.Feed.ReconnectMax ||
		!equalStrings(a.Feed.Symbols, b.Feed.Symbols) {
		return false
	}
	if a.Log.Level != b.Log.Level || a.Log.Format != b.Log.Format ||
		a.Log.OutputFile != b.Log.OutputFile || a.Log.ErrorFile != b.Log.ErrorFile ||
		!equalStrings(a.Log.Outputs, b.Log.Outputs) {
		return false
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func watchdogLoop(ctx context.Context, manager *app.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if manager.Health() == nil {
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}
}

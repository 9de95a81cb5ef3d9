package config

import (
	"errors"
	"fmt"
)

// Validate 逐字段校验配置，错误信息带字段路径。
func Validate(cfg Config) error {
	if cfg.Account.ID == "" {
		return errors.New("account.id is required")
	}
	if cfg.Account.InitialBalance < 0 {
		return fmt.Errorf("account.initial_balance must be >= 0, got %v", cfg.Account.InitialBalance)
	}
	if cfg.Account.Commission < 0 || cfg.Account.Commission >= 1 {
		return fmt.Errorf("account.commission must be in [0, 1), got %v", cfg.Account.Commission)
	}

	if cfg.Risk.MaxRiskPerTrade <= 0 || cfg.Risk.MaxRiskPerTrade > 1 {
		return fmt.Errorf("risk.max_risk_per_trade must be in (0, 1], got %v", cfg.Risk.MaxRiskPerTrade)
	}
	if cfg.Risk.MaxDailyLoss <= 0 || cfg.Risk.MaxDailyLoss > 1 {
		return fmt.Errorf("risk.max_daily_loss must be in (0, 1], got %v", cfg.Risk.MaxDailyLoss)
	}
	if cfg.Risk.MaxPositions < 1 {
		return fmt.Errorf("risk.max_positions must be >= 1, got %d", cfg.Risk.MaxPositions)
	}
	if cfg.Risk.MaxLeverage < 1 {
		return fmt.Errorf("risk.max_leverage must be >= 1, got %v", cfg.Risk.MaxLeverage)
	}

	if cfg.Strategy.Name == "" {
		return errors.New("strategy.name is required")
	}
	if cfg.Strategy.Period < 2 {
		return fmt.Errorf("strategy.period must be >= 2, got %d", cfg.Strategy.Period)
	}
	if cfg.Strategy.RiskReward <= 0 {
		return fmt.Errorf("strategy.risk_reward must be > 0, got %v", cfg.Strategy.RiskReward)
	}

	if cfg.Feed.URL != "" {
		if len(cfg.Feed.Symbols) == 0 {
			return errors.New("feed.symbols is required when feed.url is set")
		}
		if cfg.Feed.RateLimit < 0 {
			return fmt.Errorf("feed.rate_limit must be >= 0, got %v", cfg.Feed.RateLimit)
		}
		if cfg.Feed.ReconnectMax < 0 {
			return fmt.Errorf("feed.reconnect_max must be >= 0, got %v", cfg.Feed.ReconnectMax.Std())
		}
	}

	if cfg.Monitor.Listen == "" {
		return errors.New("monitor.listen is required")
	}
	if cfg.Monitor.Namespace == "" {
		return errors.New("monitor.namespace is required")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format)
	}
	if len(cfg.Log.Outputs) == 0 {
		return errors.New("log.outputs is required")
	}

	if cfg.Schedule.EquitySample < 0 {
		return fmt.Errorf("schedule.equity_sample must be >= 0, got %v", cfg.Schedule.EquitySample.Std())
	}
	if cfg.Schedule.IdleEvict < 0 {
		return fmt.Errorf("schedule.idle_evict must be >= 0, got %v", cfg.Schedule.IdleEvict.Std())
	}
	if cfg.Schedule.IdleAfter < 0 {
		return fmt.Errorf("schedule.idle_after must be >= 0, got %v", cfg.Schedule.IdleAfter.Std())
	}
	return nil
}

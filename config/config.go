package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
)

// Duration 支持 "30s"/"1m" 写法的时长字段。
type Duration time.Duration

// Std 转回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config 守护进程的全量运行配置。
type Config struct {
	Account  AccountConfig  `yaml:"account"`
	Risk     RiskConfig     `yaml:"risk"`
	Strategy StrategyConfig `yaml:"strategy"`
	Feed     FeedConfig     `yaml:"feed"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Log      logger.Config  `yaml:"log"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

type AccountConfig struct {
	ID             string  `yaml:"id"`
	InitialBalance float64 `yaml:"initial_balance"`
	Commission     float64 `yaml:"commission"`
}

type RiskConfig struct {
	MaxRiskPerTrade float64 `yaml:"max_risk_per_trade"`
	MaxDailyLoss    float64 `yaml:"max_daily_loss"`
	MaxPositions    int     `yaml:"max_positions"`
	MaxLeverage     float64 `yaml:"max_leverage"`
}

type StrategyConfig struct {
	Name        string  `yaml:"name"`
	Period      int     `yaml:"period"`
	RiskReward  float64 `yaml:"risk_reward"`
	AutoExecute bool    `yaml:"auto_execute"`
}

// FeedConfig 行情源配置，URL 为空表示不接实时行情。
type FeedConfig struct {
	URL          string   `yaml:"url"`
	Symbols      []string `yaml:"symbols"`
	RateLimit    float64  `yaml:"rate_limit"`
	ReconnectMax Duration `yaml:"reconnect_max"`
}

type MonitorConfig struct {
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

// ScheduleConfig 周期任务间隔，零值表示关闭对应任务。
type ScheduleConfig struct {
	EquitySample Duration `yaml:"equity_sample"`
	IdleEvict    Duration `yaml:"idle_evict"`
	IdleAfter    Duration `yaml:"idle_after"`
}

// Default 返回开箱可用的默认配置。
func Default() Config {
	return Config{
		Account: AccountConfig{
			ID:             "default",
			InitialBalance: 10000,
		},
		Risk: RiskConfig{
			MaxRiskPerTrade: 0.005,
			MaxDailyLoss:    0.02,
			MaxPositions:    10,
			MaxLeverage:     1,
		},
		Strategy: StrategyConfig{
			Name:       "breakout",
			Period:     20,
			RiskReward: 2,
		},
		Feed: FeedConfig{
			Symbols:      []string{"BTCUSDT"},
			RateLimit:    20,
			ReconnectMax: Duration(30 * time.Second),
		},
		Monitor: MonitorConfig{
			Listen:    ":9090",
			Namespace: "neontrader",
		},
		Log: logger.Config{
			Level:   "info",
			Format:  "json",
			Outputs: []string{"stdout"},
		},
		Schedule: ScheduleConfig{
			EquitySample: Duration(time.Minute),
			IdleEvict:    Duration(time.Hour),
			IdleAfter:    Duration(24 * time.Hour),
		},
	}
}

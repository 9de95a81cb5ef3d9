package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load 读取 YAML 配置并校验，文件里缺省的字段继承默认值。
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides 加载配置后用 NT_* 环境变量覆盖部分字段，
// 方便容器环境不改文件就切换账户或行情源。
func LoadWithEnvOverrides(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("NT_ACCOUNT_ID"); v != "" {
		cfg.Account.ID = v
	}
	if v := os.Getenv("NT_INITIAL_BALANCE"); v != "" {
		bal, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("NT_INITIAL_BALANCE: %w", err)
		}
		cfg.Account.InitialBalance = bal
	}
	if v := os.Getenv("NT_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("NT_FEED_SYMBOLS"); v != "" {
		var symbols []string
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				symbols = append(symbols, s)
			}
		}
		cfg.Feed.Symbols = symbols
	}
	if v := os.Getenv("NT_MONITOR_LISTEN"); v != "" {
		cfg.Monitor.Listen = v
	}
	if v := os.Getenv("NT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, Validate(cfg)
}

// Save 把配置写成 YAML 文件。
func Save(cfg Config, path string) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

package logger

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装zap日志器，给交易链路提供结构化日志
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var cores []zapcore.Core

	if slices.Contains(cfg.Outputs, "stdout") {
		ws, _, err := zap.Open("stdout")
		if err != nil {
			return nil, fmt.Errorf("open stdout sink failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), ws, level))
	}

	// 文件一律落 json，方便采集
	if slices.Contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		ws, _, err := zap.Open(cfg.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(newEncoder("json"), ws, level))
	}

	// 错误日志单独文件，只收 error 及以上
	if cfg.ErrorFile != "" {
		ws, _, err := zap.Open(cfg.ErrorFile)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(newEncoder("json"), ws, zapcore.ErrorLevel))
	}

	zl := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: zl, config: cfg}, nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == "console" {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(ec)
}

// Nop 返回不输出任何内容的Logger，测试用
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(anyFields(fields)...), config: l.config}
}

// LogOrder 记录订单事件
func (l *Logger) LogOrder(event, account, orderID string, fields map[string]interface{}) {
	fs := []zap.Field{
		zap.String("event", event),
		zap.String("account", account),
		zap.String("order_id", orderID),
		stamp(),
	}
	l.Info("order_event", append(fs, anyFields(fields)...)...)
}

// LogTrade 记录成交事件
func (l *Logger) LogTrade(account, tradeID string, fields map[string]interface{}) {
	fs := []zap.Field{
		zap.String("account", account),
		zap.String("trade_id", tradeID),
		stamp(),
	}
	l.Info("trade_event", append(fs, anyFields(fields)...)...)
}

// LogSignal 记录策略信号事件
func (l *Logger) LogSignal(account, symbol string, fields map[string]interface{}) {
	fs := []zap.Field{
		zap.String("account", account),
		zap.String("symbol", symbol),
		stamp(),
	}
	l.Info("signal_event", append(fs, anyFields(fields)...)...)
}

// LogRisk 记录风控事件
func (l *Logger) LogRisk(event, account string, fields map[string]interface{}) {
	fs := []zap.Field{
		zap.String("event", event),
		zap.String("account", account),
		stamp(),
	}
	l.Warn("risk_event", append(fs, anyFields(fields)...)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	fs := []zap.Field{
		zap.String("error", err.Error()),
		stamp(),
	}
	l.Error("error_event", append(fs, anyFields(context)...)...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}

// stamp 与各下游日志管线对齐的事件时间戳字段。
func stamp() zap.Field {
	return zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano))
}

func anyFields(m map[string]interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(m))
	for k, v := range m {
		fs = append(fs, zap.Any(k, v))
	}
	return fs
}

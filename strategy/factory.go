package strategy

import "fmt"

// Generator 信号生成器的通用能力：吞价格、出信号。
type Generator interface {
	UpdatePrice(symbol string, price float64)
	Signal(symbol string, price float64) (*Signal, bool)
	Reset(symbol string)
}

// Kind 标识生成器类型。
type Kind string

const KindBreakout Kind = "breakout"

// Factory creates generator instances based on configuration.
type Factory struct{}

// NewFactory creates a new Factory.
func NewFactory() *Factory { return &Factory{} }

// Create builds a generator for the named kind.
func (f *Factory) Create(kind string, cfg Config) (Generator, error) {
	switch Kind(kind) {
	case KindBreakout:
		return NewBreakout(cfg)
	default:
		return nil, fmt.Errorf("unknown strategy kind: %q", kind)
	}
}

package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/alkrab112-web/neon-trader-v7/order"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func TestPositionSize(t *testing.T) {
	m := NewManager(DefaultLimits())

	// 10000 * 0.005 = 50 风险额度，单位风险 |100-95| = 5。
	if got := m.PositionSize(10000, 100, 95); got != 10 {
		t.Fatalf("PositionSize = %f, want 10", got)
	}

	cases := []struct {
		name                 string
		balance, entry, stop float64
	}{
		{"zero entry", 10000, 0, 95},
		{"negative entry", 10000, -1, 95},
		{"zero stop", 10000, 100, 0},
		{"stop equals entry", 10000, 100, 100},
	}
	for _, c := range cases {
		if got := m.PositionSize(c.balance, c.entry, c.stop); got != 0 {
			t.Fatalf("%s: PositionSize = %f, want 0", c.name, got)
		}
	}
}

func TestValidateOrderDailyLossGate(t *testing.T) {
	m := NewManager(DefaultLimits())
	o := order.New("BTCUSDT", order.SideBuy, order.TypeMarket, 1, 0, 0, time.Now())

	if err := m.ValidateOrder(o, 10000, 0); err != nil {
		t.Fatalf("fresh account must pass: %v", err)
	}

	m.UpdateDailyPnL(-200) // 10000 * 0.02
	err := m.ValidateOrder(o, 10000, 0)
	if !errors.Is(err, ErrDailyLossLimit) {
		t.Fatalf("expected ErrDailyLossLimit, got %v", err)
	}
}

func TestValidateOrderPositionLimit(t *testing.T) {
	l := DefaultLimits()
	l.MaxPositions = 2
	m := NewManager(l)
	o := order.New("BTCUSDT", order.SideBuy, order.TypeMarket, 1, 0, 0, time.Now())

	if err := m.ValidateOrder(o, 10000, 1); err != nil {
		t.Fatalf("below limit must pass: %v", err)
	}
	if err := m.ValidateOrder(o, 10000, 2); !errors.Is(err, ErrPositionLimit) {
		t.Fatalf("expected ErrPositionLimit, got %v", err)
	}
}

func TestValidateOrderQuantityAndPrice(t *testing.T) {
	m := NewManager(DefaultLimits())
	now := time.Now()

	bad := order.New("BTCUSDT", order.SideBuy, order.TypeMarket, 0, 0, 0, now)
	if err := m.ValidateOrder(bad, 10000, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	limitNoPrice := order.New("BTCUSDT", order.SideBuy, order.TypeLimit, 1, 0, 0, now)
	if err := m.ValidateOrder(limitNoPrice, 10000, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}

	stopLimitNoPrice := order.New("BTCUSDT", order.SideSell, order.TypeStopLimit, 1, 0, 90, now)
	if err := m.ValidateOrder(stopLimitNoPrice, 10000, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("stop_limit needs price, got %v", err)
	}

	// market/stop 单不携带限价。
	stop := order.New("BTCUSDT", order.SideSell, order.TypeStop, 1, 0, 90, now)
	if err := m.ValidateOrder(stop, 10000, 0); err != nil {
		t.Fatalf("stop order without limit price must pass: %v", err)
	}
}

func TestDailyPnLResetOnUTCDayRollover(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)}
	m := NewManager(DefaultLimits())
	m.clock = clk
	m.day = clk.t.Truncate(24 * time.Hour)

	m.UpdateDailyPnL(-200)
	o := order.New("BTCUSDT", order.SideBuy, order.TypeMarket, 1, 0, 0, clk.t)
	if err := m.ValidateOrder(o, 10000, 0); !errors.Is(err, ErrDailyLossLimit) {
		t.Fatalf("expected gate closed, got %v", err)
	}

	// 跨过 UTC 零点后第一次更新先清零。
	clk.t = time.Date(2024, 3, 2, 0, 30, 0, 0, time.UTC)
	m.UpdateDailyPnL(-1)
	if got := m.DailyPnL(); got != -1 {
		t.Fatalf("DailyPnL after rollover = %f, want -1", got)
	}
	if err := m.ValidateOrder(o, 10000, 0); err != nil {
		t.Fatalf("gate must reopen after rollover: %v", err)
	}
}

func TestSetLimits(t *testing.T) {
	m := NewManager(DefaultLimits())
	l := Limits{MaxRiskPerTrade: 0.01, MaxDailyLoss: 0.05, MaxPositions: 3, MaxLeverage: 2}
	m.SetLimits(l)
	if got := m.CurrentLimits(); got != l {
		t.Fatalf("CurrentLimits = %+v, want %+v", got, l)
	}
	if got := m.PositionSize(10000, 100, 90); got != 10 {
		t.Fatalf("PositionSize with updated limits = %f, want 10", got)
	}
}

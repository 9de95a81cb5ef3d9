package market

import (
	"sort"
	"sync"
	"time"
)

// Tick 一条行情：交易对、价格、时间。
type Tick struct {
	Symbol string
	Price  float64
	Ts     time.Time
}

// Table 维护每个交易对的最新行情。
// 引擎内嵌一张表，行情只经由引擎写入。
type Table struct {
	mu   sync.RWMutex
	last map[string]Tick
}

func NewTable() *Table {
	return &Table{last: make(map[string]Tick)}
}

// Update 记录最新行情。
func (t *Table) Update(tk Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[tk.Symbol] = tk
}

// Last 返回最近一条行情，没有则第二个返回值为 false。
func (t *Table) Last(symbol string) (Tick, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tk, ok := t.last[symbol]
	return tk, ok
}

// Symbols 返回当前有行情的交易对，已排序。
func (t *Table) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.last))
	for s := range t.last {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Staleness 返回距离上次更新的时间间隔；如无数据返回正无穷。
func (t *Table) Staleness(symbol string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tk, ok := t.last[symbol]
	if !ok {
		return time.Hour * 24 * 365
	}
	return time.Since(tk.Ts)
}

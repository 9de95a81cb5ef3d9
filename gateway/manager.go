package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Manager 按账户管理场所适配器。
type Manager struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewManager() *Manager {
	return &Manager{adapters: make(map[string]Adapter)}
}

// Add 挂载账户的适配器，重复挂载时覆盖旧的。
func (m *Manager) Add(accountID string, a Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters[accountID] = a
}

// Remove 卸载账户的适配器。
func (m *Manager) Remove(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[accountID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAdapter, accountID)
	}
	delete(m.adapters, accountID)
	return nil
}

// Get 返回账户的适配器。
func (m *Manager) Get(accountID string) (Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, accountID)
	}
	return a, nil
}

// List 返回挂载了适配器的账户，已排序。
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.adapters))
	for id := range m.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// snapshot 复制挂载表，遍历调用不持锁。
func (m *Manager) snapshot() map[string]Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Adapter, len(m.adapters))
	for id, a := range m.adapters {
		out[id] = a
	}
	return out
}

// TestAll 并发检查所有适配器的连通性，返回每个账户的结果。
func (m *Manager) TestAll(ctx context.Context) map[string]error {
	snap := m.snapshot()
	results := make(map[string]error, len(snap))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for id, a := range snap {
		wg.Add(1)
		go func(id string, a Adapter) {
			defer wg.Done()
			err := a.TestConnection(ctx)
			mu.Lock()
			results[id] = err
			mu.Unlock()
		}(id, a)
	}
	wg.Wait()
	return results
}

// Balances 汇总各账户余额，取数失败的账户单独记入错误表。
func (m *Manager) Balances(ctx context.Context) (map[string]float64, map[string]error) {
	snap := m.snapshot()
	balances := make(map[string]float64, len(snap))
	failures := make(map[string]error)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for id, a := range snap {
		wg.Add(1)
		go func(id string, a Adapter) {
			defer wg.Done()
			bal, err := a.Balance(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[id] = err
				return
			}
			balances[id] = bal
		}(id, a)
	}
	wg.Wait()
	return balances, failures
}

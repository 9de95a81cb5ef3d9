package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
)

// Component 可启动可停止的后台组件。
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() error
}

// Func 把一对启动/停止函数包装成组件，
// 适合 cron、行情源这类已有自己生命周期方法的对象。
type Func struct {
	ComponentName string
	OnStart       func(ctx context.Context) error
	OnStop        func(ctx context.Context) error
}

func (f *Func) Name() string { return f.ComponentName }

func (f *Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f *Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}

func (f *Func) Health() error { return nil }

// Manager 统一管理后台组件：按注册顺序启动，逆序停止。
type Manager struct {
	log *logger.Logger

	mu         sync.Mutex
	components []Component
}

func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{log: log}
}

func (m *Manager) Register(c Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, c)
}

// StartAll 启动全部组件，任一失败则逆序停掉已启动的再返回。
func (m *Manager) StartAll(ctx context.Context) error {
	components := m.snapshot()

	for i, c := range components {
		if err := c.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := components[j].Stop(ctx); stopErr != nil {
					m.log.Warn("rollback stop failed",
						zap.String("component", components[j].Name()),
						zap.Error(stopErr))
				}
			}
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
		m.log.Info("component started", zap.String("component", c.Name()))
	}
	return nil
}

// StopAll 逆序停止全部组件，全部都会被尝试，返回最后一个错误。
func (m *Manager) StopAll(ctx context.Context) error {
	components := m.snapshot()

	var lastErr error
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(ctx); err != nil {
			m.log.Warn("component stop failed",
				zap.String("component", components[i].Name()),
				zap.Error(err))
			lastErr = err
			continue
		}
		m.log.Info("component stopped", zap.String("component", components[i].Name()))
	}
	return lastErr
}

// Health 返回第一个不健康组件的错误。
func (m *Manager) Health() error {
	for _, c := range m.snapshot() {
		if err := c.Health(); err != nil {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
	}
	return nil
}

func (m *Manager) snapshot() []Component {
	m.mu.Lock()
	defer m.mu.Unlock()
	components := make([]Component, len(m.components))
	copy(components, m.components)
	return components
}

package alert

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// 告警级别
const (
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

// Alert 一条告警。Account 为空表示进程级事件（行情断流、组件启停失败等）。
type Alert struct {
	Level     string                 // INFO, WARNING, ERROR, CRITICAL
	Account   string                 // 产生告警的账户
	Message   string                 // 告警消息
	Timestamp time.Time              // 告警时间
	Fields    map[string]interface{} // 附加字段
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 告警管理器，限流后扇出到所有通道。
// 限流键包含账户，一个账户的触线告警不会压掉其他账户的同类告警。
// 同名通道重复注册时后注册的生效。
type Manager struct {
	channels map[string]Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// Throttler 告警限流器。now 可注入，限流窗口的过期行为不依赖真实时钟。
type Throttler struct {
	seen     map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		seen:     make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow 检查是否允许发送，同一key在间隔内只放行一次。
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.seen[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.seen[key] = now
	return true
}

// Reset 重置指定key的限流记录
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, key)
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.seen)
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	m := &Manager{
		channels: make(map[string]Channel, len(channels)),
		throttle: NewThrottler(throttleInterval),
	}
	for _, ch := range channels {
		m.channels[ch.Name()] = ch
	}
	return m
}

// SendAlert 发送告警。被限流时静默忽略；全部通道失败才返回错误。
func (m *Manager) SendAlert(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	key := fmt.Sprintf("%s:%s:%s", alert.Level, alert.Account, alert.Message)
	if !m.throttle.Allow(key) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	delivered := 0
	var lastErr error
	for name, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", name, err)
			continue
		}
		delivered++
	}
	if delivered == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// SendInfo 发送该账户的INFO级别告警
func (m *Manager) SendInfo(account, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelInfo, Account: account, Message: message, Fields: fields})
}

// SendWarning 发送该账户的WARNING级别告警
func (m *Manager) SendWarning(account, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelWarning, Account: account, Message: message, Fields: fields})
}

// SendError 发送该账户的ERROR级别告警
func (m *Manager) SendError(account, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelError, Account: account, Message: message, Fields: fields})
}

// SendCritical 发送该账户的CRITICAL级别告警
func (m *Manager) SendCritical(account, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelCritical, Account: account, Message: message, Fields: fields})
}

// AddChannel 注册告警通道，同名覆盖
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// RemoveChannel 按名称移除告警通道
func (m *Manager) RemoveChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

// GetChannels 获取所有通道名称，按名称排序
func (m *Manager) GetChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResetThrottle 清空限流器
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}

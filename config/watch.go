package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
)

const defaultCooldown = 5 * time.Second

// WatchConfig 热更新监听参数。
type WatchConfig struct {
	Path     string
	Cooldown time.Duration // 两次重载的最小间隔，默认 5 秒
	Logger   *logger.Logger
}

// Watcher 监听配置文件变更：变更后重新加载并校验，
// 通过校验才回调应用器，非法文件一律拒绝并保留当前配置。
type Watcher struct {
	cfg WatchConfig
	log *logger.Logger
	fsw *fsnotify.Watcher

	mu       sync.Mutex
	current  Config
	last     time.Time
	appliers []func(old, next Config)
	started  bool
	cancel   context.CancelFunc

	done chan struct{}
}

func NewWatcher(cfg WatchConfig, current Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("config path is required")
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		cfg:     cfg,
		log:     cfg.Logger,
		fsw:     fsw,
		current: current,
		done:    make(chan struct{}),
	}, nil
}

// OnApply 注册配置变更回调，需在 Start 之前调用。
func (w *Watcher) OnApply(fn func(old, next Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appliers = append(w.appliers, fn)
}

// Current 返回当前生效的配置。
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start 开始监听。监听的是配置文件所在目录，
// 编辑器原子替换（写临时文件再改名）也能收到事件。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("watcher already started")
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	dir := filepath.Dir(w.cfg.Path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	go w.loop(ctx)
	return nil
}

// Stop 停止监听并等待后台协程退出。
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	started := w.started
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := w.fsw.Close()
	if started {
		<-w.done
	}
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	target := filepath.Clean(w.cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if time.Since(w.last) < w.cfg.Cooldown {
		w.mu.Unlock()
		return
	}
	w.last = time.Now()
	w.mu.Unlock()

	next, err := LoadWithEnvOverrides(w.cfg.Path)
	if err != nil {
		w.log.Warn("config reload rejected",
			zap.String("path", w.cfg.Path),
			zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = next
	appliers := make([]func(old, next Config), len(w.appliers))
	copy(appliers, w.appliers)
	w.mu.Unlock()

	for _, fn := range appliers {
		fn(old, next)
	}
	w.log.Info("config reloaded", zap.String("path", w.cfg.Path))
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
	"github.com/alkrab112-web/neon-trader-v7/infrastructure/monitor"
	"github.com/alkrab112-web/neon-trader-v7/market"
)

// ErrNotTrade 消息不是成交推送（订阅确认等），调用侧直接忽略。
var ErrNotTrade = errors.New("not a trade message")

const (
	feedReadTimeout     = 30 * time.Second
	feedInitialBackoff  = time.Second
	defaultReconnectMax = 30 * time.Second
)

// TickHandler 接收解析后的行情。
type TickHandler func(market.Tick)

// FeedConfig 行情源配置。
type FeedConfig struct {
	URL          string // wss 端点，组合流路径自动拼接
	Symbols      []string
	RateLimit    float64       // 每秒放行的 tick 数，0 表示不限
	ReconnectMax time.Duration // 重连退避上限
}

// Feed 订阅组合成交流，把解析后的行情交给处理函数。
// 断线自动重连，退避翻倍直到上限；限流丢弃超速的 tick 而不是排队。
type Feed struct {
	cfg     FeedConfig
	handler TickHandler
	log     *logger.Logger
	mon     *monitor.Monitor
	limiter *rate.Limiter
	dialer  *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewFeed(cfg FeedConfig, handler TickHandler, log *logger.Logger, mon *monitor.Monitor) (*Feed, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed url is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("at least one symbol is required")
	}
	if handler == nil {
		return nil, errors.New("tick handler is required")
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if log == nil {
		log = logger.Nop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Feed{
		cfg:     cfg,
		handler: handler,
		log:     log,
		mon:     mon,
		limiter: limiter,
		dialer:  websocket.DefaultDialer,
	}, nil
}

// Start 建立连接并在后台读取，重复启动报错。
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return errors.New("feed already started")
	}
	wsURL, err := f.streamURL()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.started = true

	go f.run(runCtx, wsURL)
	return nil
}

// Stop 断开连接并等待读取退出。未启动时直接返回。
func (f *Feed) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = false
	f.cancel()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	done := f.done
	f.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// streamURL 把配置的符号拼成组合流地址。
func (f *Feed) streamURL() (string, error) {
	u, err := url.Parse(f.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/stream"
	}
	streams := make([]string, 0, len(f.cfg.Symbols))
	for _, s := range f.cfg.Symbols {
		streams = append(streams, strings.ToLower(s)+"@trade")
	}
	// 组合流参数不做转义，@ 和 / 在 query 中是合法字符
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// run 连接与重连主循环。
func (f *Feed) run(ctx context.Context, wsURL string) {
	defer close(f.done)
	backoff := feedInitialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, resp, err := f.dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			if resp != nil {
				_ = resp.Body.Close()
			}
			f.log.Warn("feed dial failed",
				zap.String("url", wsURL),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > f.cfg.ReconnectMax {
				backoff = f.cfg.ReconnectMax
			}
			if f.mon != nil {
				f.mon.RecordFeedReconnect()
			}
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		if f.mon != nil {
			f.mon.SetFeedConnected(true)
		}
		f.log.Info("feed connected",
			zap.String("url", wsURL),
			zap.Strings("symbols", f.cfg.Symbols))
		backoff = feedInitialBackoff

		f.readLoop(conn)

		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		if f.mon != nil {
			f.mon.SetFeedConnected(false)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		f.log.Warn("feed disconnected, reconnecting",
			zap.Duration("retry_in", backoff))
		if f.mon != nil {
			f.mon.RecordFeedReconnect()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// readLoop 读消息直到连接断开。
func (f *Feed) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		f.dispatch(msg)
	}
}

// dispatch 解析一条消息并限流投递。
func (f *Feed) dispatch(raw []byte) {
	tick, err := ParseCombinedTrade(raw)
	if err != nil {
		if !errors.Is(err, ErrNotTrade) {
			f.log.Warn("feed message dropped", zap.Error(err))
		}
		return
	}
	if f.limiter != nil && !f.limiter.Allow() {
		return
	}
	f.handler(tick)
}

// CombinedMessage 组合流的外层包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// TradeEvent 成交推送的核心字段。
type TradeEvent struct {
	Event     string      `json:"e"`
	Symbol    string      `json:"s"`
	Price     json.Number `json:"p"`
	TradeTime int64       `json:"T"` // 毫秒
}

// ParseCombinedTrade 解析组合流的成交消息，裸消息同样接受。
// 订阅确认等非成交消息返回 ErrNotTrade。
func ParseCombinedTrade(raw []byte) (market.Tick, error) {
	var msg CombinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return market.Tick{}, fmt.Errorf("parse feed message: %w", err)
	}
	data := []byte(msg.Data)
	if len(data) == 0 {
		data = raw
	}

	var ev TradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return market.Tick{}, fmt.Errorf("parse trade event: %w", err)
	}
	if ev.Event != "trade" || ev.Symbol == "" {
		return market.Tick{}, ErrNotTrade
	}

	price, err := ev.Price.Float64()
	if err != nil {
		return market.Tick{}, fmt.Errorf("parse trade price: %w", err)
	}
	if price <= 0 {
		return market.Tick{}, fmt.Errorf("non-positive trade price %v for %s", ev.Price, ev.Symbol)
	}

	ts := time.Now().UTC()
	if ev.TradeTime > 0 {
		ts = time.UnixMilli(ev.TradeTime).UTC()
	}
	return market.Tick{Symbol: ev.Symbol, Price: price, Ts: ts}, nil
}

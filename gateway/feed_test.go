package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
	"github.com/alkrab112-web/neon-trader-v7/market"
)

func TestParseCombinedTrade(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		symbol  string
		price   float64
		wantErr error
	}{
		{
			name:   "组合流成交",
			raw:    `{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"50000.5","T":1717243200000}}`,
			symbol: "BTCUSDT",
			price:  50000.5,
		},
		{
			name:   "裸成交消息",
			raw:    `{"e":"trade","s":"ETHUSDT","p":"3000","T":1717243200000}`,
			symbol: "ETHUSDT",
			price:  3000,
		},
		{name: "订阅确认", raw: `{"result":null,"id":1}`, wantErr: ErrNotTrade},
		{name: "非成交事件", raw: `{"stream":"btcusdt@depth","data":{"e":"depthUpdate","s":"BTCUSDT"}}`, wantErr: ErrNotTrade},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tick, err := ParseCombinedTrade([]byte(tc.raw))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse err: %v", err)
			}
			if tick.Symbol != tc.symbol || tick.Price != tc.price {
				t.Fatalf("unexpected tick: %+v", tick)
			}
			want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
			if !tick.Ts.Equal(want) {
				t.Fatalf("ts = %v, want %v", tick.Ts, want)
			}
		})
	}
}

func TestParseCombinedTradeRejectsBadInput(t *testing.T) {
	if _, err := ParseCombinedTrade([]byte(`{"e":"trade","s":"BTCUSDT","p":"-1"}`)); err == nil {
		t.Fatal("expected error for non-positive price")
	}
	if _, err := ParseCombinedTrade([]byte(`{"e":"trade","s":"BTCUSDT","p":"abc"}`)); err == nil {
		t.Fatal("expected error for unparseable price")
	}
	if _, err := ParseCombinedTrade([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestNewFeedValidation(t *testing.T) {
	handler := func(market.Tick) {}
	if _, err := NewFeed(FeedConfig{Symbols: []string{"BTCUSDT"}}, handler, nil, nil); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewFeed(FeedConfig{URL: "wss://x"}, handler, nil, nil); err == nil {
		t.Fatal("expected error for missing symbols")
	}
	if _, err := NewFeed(FeedConfig{URL: "wss://x", Symbols: []string{"BTCUSDT"}}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestStreamURL(t *testing.T) {
	f, err := NewFeed(FeedConfig{
		URL:     "wss://stream.example.com:9443",
		Symbols: []string{"BTCUSDT", "ethusdt"},
	}, func(market.Tick) {}, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}

	got, err := f.streamURL()
	if err != nil {
		t.Fatalf("streamURL: %v", err)
	}
	want := "wss://stream.example.com:9443/stream?streams=btcusdt@trade/ethusdt@trade"
	if got != want {
		t.Fatalf("url = %s, want %s", got, want)
	}
}

func TestFeedDeliversTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := []string{
		`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"100.5","T":1717243200000}}`,
		`{"result":null,"id":1}`,
		`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"101.5","T":1717243201000}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, fr := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(fr)); err != nil {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ticks := make(chan market.Tick, 16)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	f, err := NewFeed(FeedConfig{URL: wsURL, Symbols: []string{"BTCUSDT"}}, func(tk market.Tick) {
		select {
		case ticks <- tk:
		default:
		}
	}, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	var got []market.Tick
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case tk := <-ticks:
			got = append(got, tk)
		case <-deadline:
			t.Fatalf("timed out waiting for ticks, got %d", len(got))
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got[0].Symbol != "BTCUSDT" || got[0].Price != 100.5 {
		t.Fatalf("first tick = %+v", got[0])
	}
	if got[1].Price != 101.5 {
		t.Fatalf("second tick = %+v", got[1])
	}

	// Stop 幂等
	if err := f.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestFeedRateLimitDropsBurst(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 10; i++ {
			msg := fmt.Sprintf(`{"e":"trade","s":"BTCUSDT","p":"%d","T":1717243200000}`, 100+i)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	var (
		mu    sync.Mutex
		count int
	)
	first := make(chan struct{}, 1)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	f, err := NewFeed(FeedConfig{URL: wsURL, Symbols: []string{"BTCUSDT"}, RateLimit: 1}, func(market.Tick) {
		mu.Lock()
		count++
		mu.Unlock()
		select {
		case first <- struct{}{}:
		default:
		}
	}, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first tick")
	}
	time.Sleep(300 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count < 1 || count >= 10 {
		t.Fatalf("delivered %d ticks, limiter should drop most of the burst", count)
	}
}

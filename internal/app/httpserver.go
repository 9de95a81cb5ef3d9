package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/alkrab112-web/neon-trader-v7/infrastructure/logger"
)

// HTTPServer 把 net/http 服务器接入生命周期管理。
// 先同步绑定端口再后台 Serve，端口冲突在 Start 阶段就能暴露。
type HTTPServer struct {
	name    string
	addr    string
	handler http.Handler
	log     *logger.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func NewHTTPServer(name, addr string, handler http.Handler, log *logger.Logger) *HTTPServer {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPServer{name: name, addr: addr, handler: handler, log: log}
}

func (s *HTTPServer) Name() string { return s.name }

func (s *HTTPServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%s listen %s: %w", s.name, s.addr, err)
	}
	srv := &http.Server{Handler: s.handler}
	s.ln = ln
	s.srv = srv

	go func() {
		s.log.Info(s.name+" listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(s.name+" serve failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown: %w", s.name, err)
	}
	return nil
}

func (s *HTTPServer) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return fmt.Errorf("%s not started", s.name)
	}
	return nil
}

// Addr 返回实际监听地址，Start 之后有效。
// 配置里写 ":0" 时可用它拿到真实端口。
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server 管理监听、身份分配与房间 Tick 循环的生命周期
type Server struct {
	cfg     Config
	log     *zap.SugaredLogger
	metrics *Metrics
	room    *Room

	nextID   atomic.Uint64 // 身份单调递增，进程内不复用
	active   atomic.Int64
	upgrader websocket.Upgrader
}

func NewServer(cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	metrics := &Metrics{}
	return &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		room:    NewRoom(cfg.RoomConfig(), log.Named("room"), metrics),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 无鉴权设计：允许所有来源
				return true
			},
		},
	}
}

func (s *Server) Room() *Room { return s.room }

func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler WebSocket 接入与管理/监控接口
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run 绑定监听地址并运行到 ctx 取消；绑定失败直接返回错误
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上运行 HTTP 服务与 Tick 循环
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.room.Run(ctx)
	})
	g.Go(func() error {
		s.log.Infow("listening", "addr", ln.Addr().String(), "protocol_id", s.cfg.ProtocolID, "tick_hz", s.cfg.TickHz)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) reserveSlot() bool {
	for {
		n := s.active.Load()
		if n >= int64(s.cfg.MaxClients) {
			return false
		}
		if s.active.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Server) releaseSlot() { s.active.Add(-1) }

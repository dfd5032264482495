package server

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arenasync/protocol"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	maxFrameSize = 64 << 10
)

// ClientConn 一个 WebSocket 连接上的两个逻辑通道：可靠队列与不可靠队列
type ClientConn struct {
	id         protocol.ClientID
	ws         *websocket.Conn
	reliable   chan []byte
	unreliable chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	log        *zap.SugaredLogger
}

func NewClientConn(id protocol.ClientID, ws *websocket.Conn, reliableQueue, unreliableQueue int, log *zap.SugaredLogger) *ClientConn {
	return &ClientConn{
		id:         id,
		ws:         ws,
		reliable:   make(chan []byte, reliableQueue),
		unreliable: make(chan []byte, unreliableQueue),
		done:       make(chan struct{}),
		log:        log,
	}
}

// SendReliable 压入可靠队列；队列满说明对端严重落后，按传输故障处理
func (c *ClientConn) SendReliable(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.reliable <- frame:
		return nil
	default:
		return ErrReliableOverflow
	}
}

// SendUnreliable 压入不可靠队列（非阻塞，满则丢弃）
func (c *ClientConn) SendUnreliable(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.unreliable <- frame:
		return nil
	default:
		// 为了实时性丢弃本帧快照，下一 Tick 的快照会覆盖
		return ErrUnreliableDropped
	}
}

// Close 通知写协程结束，可重复调用
func (c *ClientConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *ClientConn) write(msgType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(msgType, data)
}

// writePump 独立协程，可靠帧优先写出；是唯一写 WS 的协程
func (c *ClientConn) writePump() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	for {
		// 先清空可靠队列，保证其不被快照饿死
		select {
		case msg := <-c.reliable:
			if err := c.write(websocket.BinaryMessage, msg); err != nil {
				c.Close()
				return
			}
			continue
		default:
		}

		select {
		case <-c.done:
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.reliable:
			if err := c.write(websocket.BinaryMessage, msg); err != nil {
				c.Close()
				return
			}
		case msg := <-c.unreliable:
			if err := c.write(websocket.BinaryMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump 读取客户端帧并移交房间；退出时通知房间在 Tick 线程中移除该玩家
func (c *ClientConn) readPump(room *Room) {
	var reason error
	defer func() {
		c.Close()
		room.RequestLeave(c.id, reason)
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = &TransportError{ID: c.id, Err: err}
				c.log.Debugw("read failed", "client", c.id, "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		room.OnInput(c.id, payload)
	}
}

func checkProtocol(r *http.Request, want uint64) error {
	raw := r.URL.Query().Get(protocol.ProtocolQueryParam)
	if raw == "" {
		return fmt.Errorf("missing %s query parameter", protocol.ProtocolQueryParam)
	}
	got, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid protocol id %q", raw)
	}
	if got != want {
		return fmt.Errorf("protocol mismatch: client %d, server %d", got, want)
	}
	return nil
}

// HandleWS WebSocket 接入：/ws?protocol=<id>
// 协议不一致在升级前以 400 拒绝，满员返回 503；分配的身份通过响应头返回
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := checkProtocol(r, s.cfg.ProtocolID); err != nil {
		s.metrics.IncRejectedHandshake()
		s.log.Infow("handshake rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.reserveSlot() {
		s.metrics.IncRejectedHandshake()
		s.log.Warnw("server full", "remote", r.RemoteAddr, "max_clients", s.cfg.MaxClients)
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	id := protocol.ClientID(s.nextID.Add(1))
	hdr := http.Header{}
	hdr.Set(protocol.HeaderClientID, strconv.FormatUint(uint64(id), 10))
	hdr.Set(protocol.HeaderTickHz, strconv.Itoa(s.cfg.TickHz))
	ws, err := s.upgrader.Upgrade(w, r, hdr)
	if err != nil {
		s.releaseSlot()
		s.log.Warnw("upgrade error", "remote", r.RemoteAddr, "err", err)
		return
	}

	conn := NewClientConn(id, ws, s.cfg.ReliableQueue, s.cfg.UnreliableQueue, s.log)
	if err := s.room.Connect(id, conn); err != nil {
		s.releaseSlot()
		_ = ws.Close()
		return
	}
	s.log.Debugw("transport connected", "client", id, "remote", r.RemoteAddr)

	go conn.writePump()
	go func() {
		defer s.releaseSlot()
		conn.readPump(s.room)
	}()
}

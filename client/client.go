// Package client 连接 arenasync 服务端：发送本地输入，接收生命周期事件与状态快照
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"arenasync/protocol"
)

// Client 管理到服务端的 WebSocket 连接
// 网络读协程只负责解码与入队；名单由调用 Poll 的协程独占
type Client struct {
	id     protocol.ClientID
	tickHz int
	conn   *websocket.Conn
	log    *zap.SugaredLogger

	lifecycle chan protocol.LifecycleEvent
	snapshots chan protocol.Snapshot // size-1 buffered; latest wins
	roster    *Roster

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Dial 握手并启动读协程；协议不一致时服务端在升级前拒绝
func Dial(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	conn, resp, err := websocket.Dial(ctx, cfg.URL(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", cfg.ServerAddr, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.ServerAddr, err)
	}

	id, err := strconv.ParseUint(resp.Header.Get(protocol.HeaderClientID), 10, 64)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "missing client id")
		return nil, fmt.Errorf("handshake: bad %s header: %w", protocol.HeaderClientID, err)
	}
	tickHz, _ := strconv.Atoi(resp.Header.Get(protocol.HeaderTickHz))
	conn.SetReadLimit(1 << 20)

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:        protocol.ClientID(id),
		tickHz:    tickHz,
		conn:      conn,
		log:       log,
		lifecycle: make(chan protocol.LifecycleEvent, 256),
		snapshots: make(chan protocol.Snapshot, 1),
		roster:    NewRoster(),
		ctx:       cctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	log.Infow("connected", "server", cfg.ServerAddr, "client", c.id, "tick_hz", tickHz)
	go c.readLoop()
	return c, nil
}

func (c *Client) ID() protocol.ClientID { return c.id }

// TickHz 服务端 Tick 频率（握手时获得，仅供参考）
func (c *Client) TickHz() int { return c.tickHz }

func (c *Client) Roster() *Roster { return c.roster }

// Done 连接结束时关闭
func (c *Client) Done() <-chan struct{} { return c.done }

// Err 读协程退出的原因
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SendInput 走可靠有序通道发送最新输入
func (c *Client) SendInput(ctx context.Context, in protocol.PlayerInput) error {
	frame, err := protocol.EncodeFrame(protocol.ReliableOrdered, in)
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("send input: %w", err)
	}
	return nil
}

// Poll 先应用所有待处理的生命周期事件，再应用最新快照。非阻塞
func (c *Client) Poll() (events int, snapshotApplied bool) {
	for _, ev := range drainChan(c.lifecycle) {
		c.roster.ApplyLifecycle(ev)
		events++
	}
	select {
	case s := <-c.snapshots:
		snapshotApplied = c.roster.ApplySnapshot(s)
	default:
	}
	return events, snapshotApplied
}

// Close 正常关闭连接并等待读协程退出
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.setErr(err)
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		ch, payload, err := protocol.Unframe(data)
		if err != nil {
			c.log.Debugw("dropping malformed frame", "err", err)
			continue
		}
		msg, err := protocol.Decode(payload)
		if err != nil {
			c.log.Debugw("dropping malformed message", "channel", ch, "err", err)
			continue
		}
		switch m := msg.(type) {
		case protocol.LifecycleEvent:
			// 可靠通道不丢弃：队列满时阻塞读协程
			select {
			case c.lifecycle <- m:
			case <-c.ctx.Done():
				return
			}
		case protocol.Snapshot:
			select { // drain stale, keep the newest tick
			case old := <-c.snapshots:
				if old.Tick > m.Tick {
					m = old
				}
			default:
			}
			c.snapshots <- m
		default:
			c.log.Debugw("unexpected message from server", "kind", msg.Kind())
		}
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

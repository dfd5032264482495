package server

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"arenasync/protocol"
)

// ErrRoomClosed 房间的 Tick 循环已退出
var ErrRoomClosed = errors.New("room closed")

// Peer Tick 循环向某个客户端发送数据的出口（由网络写协程实现）
type Peer interface {
	// SendReliable 失败即视为传输故障
	SendReliable(frame []byte) error
	// SendUnreliable 队列满时返回 ErrUnreliableDropped，可忽略
	SendUnreliable(frame []byte) error
	Close() error
}

// RoomConfig 房间运行参数
type RoomConfig struct {
	TickHz          int
	MoveSpeed       float32
	CatchupMaxTicks int
	EventQueue      int
	InputQueue      int
}

func (c RoomConfig) withDefaults() RoomConfig {
	if c.TickHz <= 0 {
		c.TickHz = protocol.DefaultTickHz
	}
	if c.MoveSpeed <= 0 {
		c.MoveSpeed = protocol.PlayerMoveSpeed
	}
	if c.CatchupMaxTicks <= 0 {
		c.CatchupMaxTicks = 4
	}
	if c.EventQueue <= 0 {
		c.EventQueue = 256
	}
	if c.InputQueue <= 0 {
		c.InputQueue = 1024
	}
	return c
}

// Tuning 可热更新的模拟参数
type Tuning struct {
	MoveSpeed float32 `json:"moveSpeed"`
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
)

// transportEvent 网络协程交给 Tick 循环的连接/断开事件
type transportEvent struct {
	kind   eventKind
	id     protocol.ClientID
	peer   Peer
	reason error
}

// inboundFrame 网络协程收到的原始字节，解码在 Tick 内完成
type inboundFrame struct {
	id    protocol.ClientID
	frame []byte
}

// Room 房间世界：权威状态只由 Tick 循环读写，网络协程通过通道移交事件
type Room struct {
	cfg     RoomConfig
	log     *zap.SugaredLogger
	metrics *Metrics

	world     *World
	peers     map[protocol.ClientID]Peer
	failed    []transportEvent // 本 Tick 发送失败的连接，下一 Tick 按断开处理
	tick      uint64
	moveSpeed float32

	events  chan transportEvent
	inputs  chan inboundFrame
	control chan Tuning
	tuning  atomic.Pointer[Tuning]
	done    chan struct{}

	connMu sync.RWMutex // shutdown 持写锁，保证关闭后不再有连接进入队列
	closed bool
}

// NewRoom 创建房间；log/metrics 为空时使用空实现
func NewRoom(cfg RoomConfig, log *zap.SugaredLogger, metrics *Metrics) *Room {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	r := &Room{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		world:     NewWorld(),
		peers:     make(map[protocol.ClientID]Peer),
		moveSpeed: cfg.MoveSpeed,
		events:    make(chan transportEvent, cfg.EventQueue),
		inputs:    make(chan inboundFrame, cfg.InputQueue),
		control:   make(chan Tuning, 4),
		done:      make(chan struct{}),
	}
	r.tuning.Store(&Tuning{MoveSpeed: cfg.MoveSpeed})
	return r
}

func (r *Room) Config() RoomConfig { return r.cfg }

// Connect 在 Tick 线程中登记新连接（队列满时阻塞，不丢弃）
func (r *Room) Connect(id protocol.ClientID, peer Peer) error {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	if r.closed {
		return ErrRoomClosed
	}
	select {
	case r.events <- transportEvent{kind: evConnect, id: id, peer: peer}:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// RequestLeave 请求在 Tick 线程中移除玩家，重复调用无副作用
func (r *Room) RequestLeave(id protocol.ClientID, reason error) {
	select {
	case r.events <- transportEvent{kind: evDisconnect, id: id, reason: reason}:
	case <-r.done:
	}
}

// OnInput 入站输入帧（不立即生效），等下一次 Tick 解码处理
func (r *Room) OnInput(id protocol.ClientID, frame []byte) {
	select {
	case r.inputs <- inboundFrame{id: id, frame: frame}:
	case <-r.done:
	}
}

// UpdateTuning 提交参数更新，在下一次 Tick 开始时生效
func (r *Room) UpdateTuning(t Tuning) error {
	if t.MoveSpeed <= 0 {
		return fmt.Errorf("moveSpeed must be positive, got %v", t.MoveSpeed)
	}
	select {
	case r.control <- t:
		return nil
	case <-r.done:
		return ErrRoomClosed
	default:
		return errors.New("tuning update already pending")
	}
}

// Tuning 当前生效的参数（可在任意协程读取）
func (r *Room) Tuning() Tuning {
	return *r.tuning.Load()
}

// Step 执行一次 Tick：生命周期 → 输入 → 积分 → 广播
func (r *Room) Step(dt time.Duration) {
	r.tick++
	r.applyControl()
	r.processLifecycle()
	r.processInputs()
	r.simulate(dt)
	r.broadcastSnapshot()
	r.metrics.SetPlayers(r.world.Len())
}

func (r *Room) applyControl() {
	for {
		select {
		case t := <-r.control:
			r.moveSpeed = t.MoveSpeed
			r.tuning.Store(&t)
			r.log.Infow("tuning applied", "move_speed", t.MoveSpeed, "tick", r.tick)
		default:
			return
		}
	}
}

func (r *Room) simulate(dt time.Duration) {
	secs := float32(dt.Seconds())
	r.world.Each(func(p *PlayerState) {
		Integrate(p, r.moveSpeed, secs)
	})
}

// shutdown 关闭所有连接，Tick 循环退出时调用
func (r *Room) shutdown() {
	close(r.done)
	// 等待正在入队的 Connect 返回；此后的 Connect 一律失败
	r.connMu.Lock()
	r.closed = true
	r.connMu.Unlock()

	for id, peer := range r.peers {
		_ = peer.Close()
		delete(r.peers, id)
	}
	// 还在队列里、没来得及登记的连接
	for {
		select {
		case ev := <-r.events:
			if ev.kind == evConnect && ev.peer != nil {
				_ = ev.peer.Close()
			}
		default:
			return
		}
	}
}

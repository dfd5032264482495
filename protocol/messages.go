package protocol

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Kind 消息类型标签，编码为帧内第一个字节
type Kind uint8

const (
	KindInput Kind = iota + 1
	KindLifecycle
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindLifecycle:
		return "lifecycle"
	case KindSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message 可被编解码的消息
type Message interface {
	Kind() Kind
}

// Orientation 视角朝向（弧度），pitch 的裁剪由客户端负责
type Orientation struct {
	_msgpack struct{} `msgpack:",as_array"`

	Yaw   float32
	Pitch float32
	Roll  float32
}

// Quat 按 YXZ 欧拉顺序转换为四元数
func (o Orientation) Quat() mgl32.Quat {
	return mgl32.AnglesToQuat(o.Yaw, o.Pitch, o.Roll, mgl32.YXZ)
}

// PlayerInput 客户端最新的输入意图（无序列号，新值直接覆盖旧值）
type PlayerInput struct {
	_msgpack struct{} `msgpack:",as_array"`

	Forward  bool
	Backward bool
	Left     bool
	Right    bool
	Jump     bool
	Camera   Orientation
}

func (PlayerInput) Kind() Kind { return KindInput }

// EventType 生命周期事件类型
type EventType uint8

const (
	EventConnected EventType = iota + 1
	EventDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// LifecycleEvent 连接/断开通知，走可靠有序通道
type LifecycleEvent struct {
	_msgpack struct{} `msgpack:",as_array"`

	Type EventType
	ID   ClientID
}

func (LifecycleEvent) Kind() Kind { return KindLifecycle }

func Connected(id ClientID) LifecycleEvent {
	return LifecycleEvent{Type: EventConnected, ID: id}
}

func Disconnected(id ClientID) LifecycleEvent {
	return LifecycleEvent{Type: EventDisconnected, ID: id}
}

// PlayerSnapshot 单个玩家在某一 Tick 的位置与朝向
type PlayerSnapshot struct {
	_msgpack struct{} `msgpack:",as_array"`

	ID          ClientID
	Position    mgl32.Vec3
	Orientation Orientation
}

// Snapshot 全量状态快照，每 Tick 走不可靠通道广播一次
// Tick 单调递增，客户端据此丢弃乱序到达的旧快照
type Snapshot struct {
	_msgpack struct{} `msgpack:",as_array"`

	Tick    uint64
	Players []PlayerSnapshot
}

func (Snapshot) Kind() Kind { return KindSnapshot }

package server

import (
	"github.com/go-gl/mathgl/mgl32"

	"arenasync/protocol"
)

// SpawnPoint 新玩家的出生位置
var SpawnPoint = mgl32.Vec3{0, 0.5, 0}

// Transform 服务端权威的位置与旋转
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
}

// PlayerState 房间内的玩家实体（服务端权威状态）
type PlayerState struct {
	ID     protocol.ClientID
	Entity EntityID

	Transform   Transform
	Orientation protocol.Orientation // 上一次积分时采用的朝向，快照直接使用
	Input       protocol.PlayerInput // 最新输入，在下一次 Tick 生效
}

func newPlayerState(id protocol.ClientID, e EntityID) *PlayerState {
	return &PlayerState{
		ID:     id,
		Entity: e,
		Transform: Transform{
			Translation: SpawnPoint,
			Rotation:    mgl32.QuatIdent(),
		},
	}
}

// snapshot 转为广播用的轻量状态
func (p *PlayerState) snapshot() protocol.PlayerSnapshot {
	return protocol.PlayerSnapshot{
		ID:          p.ID,
		Position:    p.Transform.Translation,
		Orientation: p.Orientation,
	}
}

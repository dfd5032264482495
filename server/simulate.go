package server

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"arenasync/protocol"
)

// DiagonalFactor 斜向移动修正，使斜向速度等于轴向速度
const DiagonalFactor = float32(1 / math.Sqrt2)

var upAxis = mgl32.Vec3{0, 1, 0}

func axis(pos, neg bool) float32 {
	var v float32
	if pos {
		v++
	}
	if neg {
		v--
	}
	return v
}

// MoveIntent 平面移动意图 (right-left, 0, backward-forward)，斜向时已修正为单位长度
func MoveIntent(in protocol.PlayerInput) mgl32.Vec3 {
	d := mgl32.Vec3{axis(in.Right, in.Left), 0, axis(in.Backward, in.Forward)}
	if d[0] != 0 && d[2] != 0 {
		d = d.Mul(DiagonalFactor)
	}
	return d
}

// Integrate 按最新输入推进一个玩家；dt 为距上一 Tick 的秒数
func Integrate(p *PlayerState, speed, dt float32) {
	in := p.Input
	d := MoveIntent(in)
	if d[0] != 0 || d[2] != 0 {
		// 只按 yaw 旋转，pitch/roll 不影响平移方向
		move := mgl32.QuatRotate(in.Camera.Yaw, upAxis).Rotate(d)
		p.Transform.Translation = p.Transform.Translation.Add(move.Mul(speed * dt))
	}
	p.Orientation = in.Camera
	p.Transform.Rotation = in.Camera.Quat()
}

package client

import (
	"github.com/go-gl/mathgl/mgl32"

	"arenasync/protocol"
)

// RemotePlayer 客户端本地对某个玩家的表示
type RemotePlayer struct {
	ID          protocol.ClientID
	Position    mgl32.Vec3
	Orientation protocol.Orientation
	Rotation    mgl32.Quat
}

// Roster 客户端侧的名单镜像，只由调用 Poll 的协程访问
type Roster struct {
	players  map[protocol.ClientID]*RemotePlayer
	lastTick uint64
	applied  bool
}

func NewRoster() *Roster {
	return &Roster{players: make(map[protocol.ClientID]*RemotePlayer)}
}

// ApplyLifecycle 处理连接/断开事件
func (r *Roster) ApplyLifecycle(ev protocol.LifecycleEvent) {
	switch ev.Type {
	case protocol.EventConnected:
		if _, ok := r.players[ev.ID]; !ok {
			r.players[ev.ID] = &RemotePlayer{ID: ev.ID, Rotation: mgl32.QuatIdent()}
		}
	case protocol.EventDisconnected:
		delete(r.players, ev.ID)
	}
}

// ApplySnapshot 应用快照位置；Tick 不比上一次新的快照直接丢弃并返回 false
func (r *Roster) ApplySnapshot(s protocol.Snapshot) bool {
	if r.applied && s.Tick <= r.lastTick {
		return false
	}
	r.applied = true
	r.lastTick = s.Tick
	for _, ps := range s.Players {
		p, ok := r.players[ps.ID]
		if !ok {
			// 尚未收到 Connected 的玩家先忽略
			continue
		}
		p.Position = ps.Position
		p.Orientation = ps.Orientation
		p.Rotation = ps.Orientation.Quat()
	}
	return true
}

func (r *Roster) Player(id protocol.ClientID) (RemotePlayer, bool) {
	p, ok := r.players[id]
	if !ok {
		return RemotePlayer{}, false
	}
	return *p, true
}

func (r *Roster) Len() int { return len(r.players) }

func (r *Roster) IDs() []protocol.ClientID {
	ids := make([]protocol.ClientID, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	return ids
}

// LastTick 最近一次应用的快照 Tick
func (r *Roster) LastTick() uint64 { return r.lastTick }

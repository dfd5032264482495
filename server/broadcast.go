package server

import (
	"errors"

	"arenasync/protocol"
)

func (r *Room) buildSnapshot() protocol.Snapshot {
	s := protocol.Snapshot{
		Tick:    r.tick,
		Players: make([]protocol.PlayerSnapshot, 0, r.world.Len()),
	}
	r.world.Each(func(p *PlayerState) {
		s.Players = append(s.Players, p.snapshot())
	})
	return s
}

// broadcastSnapshot 将全量快照走不可靠通道发给所有玩家，不确认不重传
func (r *Room) broadcastSnapshot() {
	if len(r.peers) == 0 {
		return
	}
	frame, err := protocol.EncodeFrame(protocol.Unreliable, r.buildSnapshot())
	if err != nil {
		r.log.Errorw("encode snapshot", "tick", r.tick, "err", err)
		return
	}
	for id, peer := range r.peers {
		err := peer.SendUnreliable(frame)
		switch {
		case err == nil:
			r.metrics.IncSnapshotSent()
		case errors.Is(err, ErrUnreliableDropped):
			r.metrics.IncSnapshotDropped()
		default:
			r.fail(id, err)
		}
	}
}

// broadcastReliable 走可靠通道发给所有当前连接
func (r *Room) broadcastReliable(msg protocol.Message) {
	frame, err := protocol.EncodeFrame(protocol.ReliableOrdered, msg)
	if err != nil {
		r.log.Errorw("encode reliable broadcast", "kind", msg.Kind(), "err", err)
		return
	}
	for id, peer := range r.peers {
		r.sendReliable(id, peer, frame)
	}
}

func (r *Room) sendReliable(id protocol.ClientID, peer Peer, frame []byte) {
	if err := peer.SendReliable(frame); err != nil {
		r.fail(id, err)
	}
}

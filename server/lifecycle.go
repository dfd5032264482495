package server

import (
	"errors"

	"arenasync/protocol"
)

// processLifecycle 处理上一 Tick 的发送故障与当前排队的连接/断开事件
func (r *Room) processLifecycle() {
	failed := r.failed
	r.failed = nil
	for _, ev := range failed {
		r.handleDisconnect(ev.id, ev.reason)
	}

	// 只处理进入本阶段时已在队列中的事件
	n := len(r.events)
	for i := 0; i < n; i++ {
		ev := <-r.events
		switch ev.kind {
		case evConnect:
			r.handleConnect(ev.id, ev.peer)
		case evDisconnect:
			r.handleDisconnect(ev.id, ev.reason)
		}
	}
}

func (r *Room) handleConnect(id protocol.ClientID, peer Peer) {
	if _, err := r.world.Spawn(id); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			r.metrics.IncDuplicateConnect()
			r.log.Warnw("duplicate connect ignored", "client", id)
			if existing, ok := r.peers[id]; ok && existing != peer && peer != nil {
				_ = peer.Close()
			}
			return
		}
		r.log.Errorw("spawn failed", "client", id, "err", err)
		return
	}

	// 向新玩家逐个补发已有玩家的 Connected，便于其重建名单
	for _, other := range r.world.Lobby().IDs() {
		if other == id {
			continue
		}
		frame, err := protocol.EncodeFrame(protocol.ReliableOrdered, protocol.Connected(other))
		if err != nil {
			r.log.Errorw("encode roster replay", "err", err)
			continue
		}
		r.sendReliable(id, peer, frame)
	}

	r.peers[id] = peer
	r.metrics.IncConnect()
	r.log.Infow("player connected", "client", id, "players", r.world.Len())
	r.broadcastReliable(protocol.Connected(id))
}

// handleDisconnect 对未知身份是 no-op，保证断开幂等
func (r *Room) handleDisconnect(id protocol.ClientID, reason error) {
	if _, err := r.world.Despawn(id); err != nil {
		r.log.Debugw("disconnect for unknown client ignored", "client", id)
		return
	}
	if peer, ok := r.peers[id]; ok {
		_ = peer.Close()
		delete(r.peers, id)
	}
	r.metrics.IncDisconnect()
	if errors.Is(reason, ErrTransportFailure) {
		r.metrics.IncTransportFailure()
		r.log.Warnw("player dropped", "client", id, "err", reason, "players", r.world.Len())
	} else {
		r.log.Infow("player disconnected", "client", id, "players", r.world.Len())
	}
	r.broadcastReliable(protocol.Disconnected(id))
}

// fail 记录发送故障，下一 Tick 折叠为断开
func (r *Room) fail(id protocol.ClientID, err error) {
	for _, ev := range r.failed {
		if ev.id == id {
			return
		}
	}
	r.failed = append(r.failed, transportEvent{
		kind:   evDisconnect,
		id:     id,
		reason: &TransportError{ID: id, Err: err},
	})
}

package server

import (
	"fmt"

	"arenasync/protocol"
)

// processInputs 非阻塞地处理当前排队的全部输入帧，同一玩家后到的输入覆盖先到的
func (r *Room) processInputs() {
	n := len(r.inputs)
	for i := 0; i < n; i++ {
		r.applyInput(<-r.inputs)
	}
}

func (r *Room) applyInput(in inboundFrame) {
	input, err := decodeInputFrame(in.frame)
	if err != nil {
		r.metrics.IncMalformed()
		r.log.Debugw("dropping malformed input", "client", in.id, "err", err)
		return
	}
	p, ok := r.world.Player(in.id)
	if !ok {
		// 断开后迟到或连接尚未完成的输入，直接丢弃
		r.metrics.IncStaleInput()
		return
	}
	p.Input = input
	r.metrics.IncAccepted()
}

func decodeInputFrame(frame []byte) (protocol.PlayerInput, error) {
	ch, payload, err := protocol.Unframe(frame)
	if err != nil {
		return protocol.PlayerInput{}, err
	}
	if ch != protocol.ReliableOrdered {
		return protocol.PlayerInput{}, fmt.Errorf("%w: input on %s channel", protocol.ErrMalformedMessage, ch)
	}
	return protocol.DecodeInput(payload)
}

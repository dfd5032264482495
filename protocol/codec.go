package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformedMessage 负载无法解码（截断、损坏或未知类型）
var ErrMalformedMessage = errors.New("malformed message")

var _ msgpack.CustomDecoder = (*Snapshot)(nil)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// Encode 编码为 [kind][msgpack body]
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("encode: nil message")
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Kind()))
	if err := msgpack.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return buf.Bytes(), nil
}

// Decode 解码任意消息；失败时返回包装了 ErrMalformedMessage 的错误，不会 panic
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, malformed("empty payload")
	}
	switch Kind(b[0]) {
	case KindInput:
		var in PlayerInput
		if err := decodeBody(b[1:], &in); err != nil {
			return nil, err
		}
		return in, nil
	case KindLifecycle:
		var ev LifecycleEvent
		if err := decodeBody(b[1:], &ev); err != nil {
			return nil, err
		}
		if ev.Type != EventConnected && ev.Type != EventDisconnected {
			return nil, malformed("unknown lifecycle event %d", uint8(ev.Type))
		}
		return ev, nil
	case KindSnapshot:
		var s Snapshot
		if err := decodeBody(b[1:], &s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, malformed("unknown kind %d", b[0])
	}
}

// DecodeInput 仅接受输入消息
// 先检查类型字节，其他类型的消息体不做解码
func DecodeInput(b []byte) (PlayerInput, error) {
	if len(b) == 0 {
		return PlayerInput{}, malformed("empty payload")
	}
	if Kind(b[0]) != KindInput {
		return PlayerInput{}, malformed("expected %s, got %s", KindInput, Kind(b[0]))
	}
	var in PlayerInput
	if err := decodeBody(b[1:], &in); err != nil {
		return PlayerInput{}, err
	}
	return in, nil
}

// minPlayerSnapshotSize 一个玩家条目至少占用的字节数：
// 数组头、id、位置(数组头+3)、朝向(数组头+3)，每项至少 1 字节
const minPlayerSnapshotSize = 10

// maxSnapshotPlayers 无法得知剩余字节数时的上限
const maxSnapshotPlayers = 1 << 16

// DecodeMsgpack 按剩余字节数校验玩家数组长度后再分配，防止伪造的长度头耗尽内存
func (s *Snapshot) DecodeMsgpack(d *msgpack.Decoder) error {
	n, err := d.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("snapshot: expected 2 fields, got %d", n)
	}
	if s.Tick, err = d.DecodeUint64(); err != nil {
		return err
	}
	n, err = d.DecodeArrayLen()
	if err != nil {
		return err
	}
	switch {
	case n < 0:
		s.Players = nil
		return nil
	case n > maxPlayersIn(d):
		return fmt.Errorf("snapshot: %d players cannot fit in the remaining payload", n)
	}
	s.Players = make([]PlayerSnapshot, n)
	for i := range s.Players {
		if err := d.Decode(&s.Players[i]); err != nil {
			return err
		}
	}
	return nil
}

func maxPlayersIn(d *msgpack.Decoder) int {
	if r, ok := d.Buffered().(interface{ Len() int }); ok {
		return r.Len() / minPlayerSnapshotSize
	}
	return maxSnapshotPlayers
}

func decodeBody(body []byte, v any) error {
	if len(body) == 0 {
		return malformed("missing body")
	}
	r := bytes.NewReader(body)
	if err := msgpack.NewDecoder(r).Decode(v); err != nil {
		return malformed("%v", err)
	}
	if r.Len() != 0 {
		return malformed("%d trailing bytes", r.Len())
	}
	return nil
}

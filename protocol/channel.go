package protocol

// Channel 同一连接上的逻辑通道
type Channel uint8

const (
	// ReliableOrdered 可靠有序：输入帧与生命周期事件
	ReliableOrdered Channel = iota
	// Unreliable 尽力而为：状态快照，可丢弃
	Unreliable
)

func (c Channel) String() string {
	switch c {
	case ReliableOrdered:
		return "reliable"
	case Unreliable:
		return "unreliable"
	default:
		return "unknown"
	}
}

// Frame 在编码后的消息前加通道字节
func Frame(ch Channel, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(ch))
	return append(out, payload...)
}

// Unframe 拆出通道字节与消息负载
func Unframe(b []byte) (Channel, []byte, error) {
	if len(b) < 2 {
		return 0, nil, malformed("frame too short (%d bytes)", len(b))
	}
	ch := Channel(b[0])
	if ch != ReliableOrdered && ch != Unreliable {
		return 0, nil, malformed("unknown channel %d", b[0])
	}
	return ch, b[1:], nil
}

// EncodeFrame 编码消息并加上通道字节
func EncodeFrame(ch Channel, msg Message) ([]byte, error) {
	payload, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return Frame(ch, payload), nil
}

// Package protocol 定义客户端与服务端共享的消息类型、常量与二进制编解码
package protocol

const (
	// DefaultPort 服务端默认监听端口
	DefaultPort = 9080
	// ProtocolID 协议版本标识，握手时双方必须一致
	ProtocolID uint64 = 1
	// DefaultTickHz 服务端默认 Tick 频率
	DefaultTickHz = 128
	// PlayerMoveSpeed 玩家移动速度（单位/秒）
	PlayerMoveSpeed float32 = 5.0
)

// 握手参数与响应头
const (
	ProtocolQueryParam = "protocol"
	HeaderClientID     = "X-Client-Id"
	HeaderTickHz       = "X-Tick-Hz"
)

// ClientID 连接身份，由传输层在连接时分配，连接存活期间唯一
type ClientID uint64

package server

import (
	"errors"
	"fmt"

	"arenasync/protocol"
)

var (
	// ErrUnknownIdentity 操作的身份没有存活的 PlayerState
	ErrUnknownIdentity = errors.New("unknown client identity")
	// ErrDuplicateIdentity 身份已存在于 Lobby
	ErrDuplicateIdentity = errors.New("duplicate client identity")
	// ErrTransportFailure 底层连接错误，按隐式断开处理
	ErrTransportFailure = errors.New("transport failure")
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")
	// ErrReliableOverflow 可靠通道发送队列已满（对端严重落后）
	ErrReliableOverflow = errors.New("reliable send queue full")
	// ErrUnreliableDropped 不可靠通道队列满，快照被丢弃（不是故障）
	ErrUnreliableDropped = errors.New("unreliable frame dropped")
)

// TransportError 某个客户端的传输层故障
type TransportError struct {
	ID  protocol.ClientID
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client %d: transport failure: %v", e.ID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransportFailure }

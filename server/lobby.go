package server

import (
	"fmt"

	"arenasync/protocol"
)

// EntityID 模拟实体句柄
type EntityID uint32

// Lobby 客户端身份 → 实体句柄的映射
type Lobby struct {
	players map[protocol.ClientID]EntityID
}

func NewLobby() *Lobby {
	return &Lobby{players: make(map[protocol.ClientID]EntityID)}
}

// Insert 身份已存在时返回 ErrDuplicateIdentity
func (l *Lobby) Insert(id protocol.ClientID, e EntityID) error {
	if _, ok := l.players[id]; ok {
		return fmt.Errorf("insert client %d: %w", id, ErrDuplicateIdentity)
	}
	l.players[id] = e
	return nil
}

// Remove 返回被移除的实体；身份不存在时返回 ErrUnknownIdentity
func (l *Lobby) Remove(id protocol.ClientID) (EntityID, error) {
	e, ok := l.players[id]
	if !ok {
		return 0, fmt.Errorf("remove client %d: %w", id, ErrUnknownIdentity)
	}
	delete(l.players, id)
	return e, nil
}

func (l *Lobby) Lookup(id protocol.ClientID) (EntityID, bool) {
	e, ok := l.players[id]
	return e, ok
}

func (l *Lobby) Len() int { return len(l.players) }

// Range 遍历顺序不保证；fn 返回 false 时停止
func (l *Lobby) Range(fn func(id protocol.ClientID, e EntityID) bool) {
	for id, e := range l.players {
		if !fn(id, e) {
			return
		}
	}
}

// IDs 当前所有身份（无序）
func (l *Lobby) IDs() []protocol.ClientID {
	ids := make([]protocol.ClientID, 0, len(l.players))
	for id := range l.players {
		ids = append(ids, id)
	}
	return ids
}

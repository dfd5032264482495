package server

import (
	"fmt"

	"arenasync/protocol"
)

// World 由 Tick 循环独占：Lobby 与全部 PlayerState
type World struct {
	lobby      *Lobby
	entities   map[EntityID]*PlayerState
	nextEntity EntityID
}

func NewWorld() *World {
	return &World{
		lobby:      NewLobby(),
		entities:   make(map[EntityID]*PlayerState),
		nextEntity: 1,
	}
}

// Spawn 为身份创建 PlayerState 并登记到 Lobby
func (w *World) Spawn(id protocol.ClientID) (*PlayerState, error) {
	if _, ok := w.lobby.Lookup(id); ok {
		return nil, fmt.Errorf("spawn client %d: %w", id, ErrDuplicateIdentity)
	}
	e := w.nextEntity
	w.nextEntity++
	if err := w.lobby.Insert(id, e); err != nil {
		return nil, err
	}
	p := newPlayerState(id, e)
	w.entities[e] = p
	return p, nil
}

// Despawn 从 Lobby 移除并销毁实体
func (w *World) Despawn(id protocol.ClientID) (*PlayerState, error) {
	e, err := w.lobby.Remove(id)
	if err != nil {
		return nil, err
	}
	p := w.entities[e]
	delete(w.entities, e)
	return p, nil
}

func (w *World) Player(id protocol.ClientID) (*PlayerState, bool) {
	e, ok := w.lobby.Lookup(id)
	if !ok {
		return nil, false
	}
	p, ok := w.entities[e]
	return p, ok
}

// Each 遍历所有存活玩家（无序）
func (w *World) Each(fn func(p *PlayerState)) {
	for _, p := range w.entities {
		fn(p)
	}
}

func (w *World) Len() int { return w.lobby.Len() }

func (w *World) Lobby() *Lobby { return w.lobby }

// CheckInvariants 校验 Lobby 与实体集合之间是双射
func (w *World) CheckInvariants() error {
	if w.lobby.Len() != len(w.entities) {
		return fmt.Errorf("lobby has %d entries but %d entities are live", w.lobby.Len(), len(w.entities))
	}
	seen := make(map[EntityID]protocol.ClientID, len(w.entities))
	var err error
	w.lobby.Range(func(id protocol.ClientID, e EntityID) bool {
		if other, dup := seen[e]; dup {
			err = fmt.Errorf("clients %d and %d share entity %d", other, id, e)
			return false
		}
		seen[e] = id
		p, ok := w.entities[e]
		if !ok {
			err = fmt.Errorf("client %d maps to dead entity %d", id, e)
			return false
		}
		if p.ID != id || p.Entity != e {
			err = fmt.Errorf("entity %d belongs to client %d, lobby says %d", e, p.ID, id)
			return false
		}
		return true
	})
	return err
}

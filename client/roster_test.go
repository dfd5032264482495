package client

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"arenasync/protocol"
)

func TestRosterLifecycle(t *testing.T) {
	r := NewRoster()
	r.ApplyLifecycle(protocol.Connected(1))
	r.ApplyLifecycle(protocol.Connected(2))
	r.ApplyLifecycle(protocol.Connected(2))
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	r.ApplyLifecycle(protocol.Disconnected(1))
	r.ApplyLifecycle(protocol.Disconnected(1))
	if _, ok := r.Player(1); ok {
		t.Fatalf("player 1 still present")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

func TestRosterSnapshotOrdering(t *testing.T) {
	r := NewRoster()
	r.ApplyLifecycle(protocol.Connected(1))

	snap := func(tick uint64, x float32) protocol.Snapshot {
		return protocol.Snapshot{Tick: tick, Players: []protocol.PlayerSnapshot{
			{ID: 1, Position: mgl32.Vec3{x, 0.5, 0}, Orientation: protocol.Orientation{Yaw: x}},
			{ID: 9, Position: mgl32.Vec3{100, 0, 0}},
		}}
	}

	if !r.ApplySnapshot(snap(5, 1)) {
		t.Fatalf("first snapshot rejected")
	}
	if r.ApplySnapshot(snap(4, 2)) || r.ApplySnapshot(snap(5, 3)) {
		t.Fatalf("stale snapshot applied")
	}
	p, _ := r.Player(1)
	if p.Position.X() != 1 || r.LastTick() != 5 {
		t.Fatalf("position %v tick %d, want x=1 tick 5", p.Position, r.LastTick())
	}
	if !p.Rotation.ApproxEqualThreshold(protocol.Orientation{Yaw: 1}.Quat(), 1e-6) {
		t.Fatalf("rotation = %v", p.Rotation)
	}
	if _, ok := r.Player(9); ok {
		t.Fatalf("snapshot created a player without Connected")
	}
	if !r.ApplySnapshot(snap(6, 4)) {
		t.Fatalf("newer snapshot rejected")
	}
	if p, _ := r.Player(1); p.Position.X() != 4 {
		t.Fatalf("position = %v, want x=4", p.Position)
	}
}

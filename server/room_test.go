package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap/zaptest"

	"arenasync/protocol"
)

const tickDt = time.Second / 128

type fakePeer struct {
	reliable       [][]byte
	unreliable     [][]byte
	closed         bool
	failReliable   error
	dropUnreliable bool
}

func newFakePeer() *fakePeer { return &fakePeer{} }

func (f *fakePeer) SendReliable(b []byte) error {
	if f.failReliable != nil {
		return f.failReliable
	}
	f.reliable = append(f.reliable, b)
	return nil
}

func (f *fakePeer) SendUnreliable(b []byte) error {
	if f.dropUnreliable {
		return ErrUnreliableDropped
	}
	f.unreliable = append(f.unreliable, b)
	return nil
}

func (f *fakePeer) Close() error {
	f.closed = true
	return nil
}

func (f *fakePeer) events(t *testing.T) []protocol.LifecycleEvent {
	t.Helper()
	var out []protocol.LifecycleEvent
	for _, b := range f.reliable {
		ch, payload, err := protocol.Unframe(b)
		if err != nil || ch != protocol.ReliableOrdered {
			t.Fatalf("bad reliable frame: ch=%v err=%v", ch, err)
		}
		msg, err := protocol.Decode(payload)
		if err != nil {
			t.Fatalf("decode reliable: %v", err)
		}
		out = append(out, msg.(protocol.LifecycleEvent))
	}
	return out
}

func (f *fakePeer) lastSnapshot(t *testing.T) protocol.Snapshot {
	t.Helper()
	if len(f.unreliable) == 0 {
		t.Fatalf("no snapshot received")
	}
	ch, payload, err := protocol.Unframe(f.unreliable[len(f.unreliable)-1])
	if err != nil || ch != protocol.Unreliable {
		t.Fatalf("bad unreliable frame: ch=%v err=%v", ch, err)
	}
	msg, err := protocol.Decode(payload)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return msg.(protocol.Snapshot)
}

func newTestRoom(t *testing.T) (*Room, *Metrics) {
	t.Helper()
	m := &Metrics{}
	r := NewRoom(RoomConfig{TickHz: 128, MoveSpeed: protocol.PlayerMoveSpeed}, zaptest.NewLogger(t).Sugar(), m)
	return r, m
}

func inputFrame(t *testing.T, in protocol.PlayerInput) []byte {
	t.Helper()
	b, err := protocol.EncodeFrame(protocol.ReliableOrdered, in)
	if err != nil {
		t.Fatalf("encode input: %v", err)
	}
	return b
}

func connect(t *testing.T, r *Room, id protocol.ClientID) *fakePeer {
	t.Helper()
	p := newFakePeer()
	if err := r.Connect(id, p); err != nil {
		t.Fatalf("connect %d: %v", id, err)
	}
	return p
}

func TestRosterReplayOnJoin(t *testing.T) {
	r, _ := newTestRoom(t)
	existing := map[protocol.ClientID]*fakePeer{}
	for id := protocol.ClientID(1); id <= 3; id++ {
		existing[id] = connect(t, r, id)
	}
	r.Step(tickDt)
	for _, p := range existing {
		p.reliable = nil
	}

	newcomer := connect(t, r, 4)
	r.Step(tickDt)

	got := map[protocol.ClientID]int{}
	for _, ev := range newcomer.events(t) {
		if ev.Type != protocol.EventConnected {
			t.Fatalf("newcomer got %v, want only connected events", ev.Type)
		}
		got[ev.ID]++
	}
	if len(newcomer.reliable) != 4 {
		t.Fatalf("newcomer received %d reliable messages, want 4", len(newcomer.reliable))
	}
	for id := protocol.ClientID(1); id <= 4; id++ {
		if got[id] != 1 {
			t.Fatalf("newcomer saw Connected{%d} %d times, want 1", id, got[id])
		}
	}

	for id, p := range existing {
		evs := p.events(t)
		if len(evs) != 1 || evs[0] != protocol.Connected(4) {
			t.Fatalf("peer %d got %v, want single Connected{4}", id, evs)
		}
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	r, m := newTestRoom(t)
	a := connect(t, r, 1)
	b := connect(t, r, 2)
	r.Step(tickDt)
	b.reliable = nil

	r.RequestLeave(1, nil)
	r.Step(tickDt)
	r.RequestLeave(1, nil)
	r.RequestLeave(1, &TransportError{ID: 1, Err: errors.New("reset")})
	r.Step(tickDt)

	if !a.closed {
		t.Fatalf("disconnected peer was not closed")
	}
	if _, ok := r.world.Player(1); ok {
		t.Fatalf("player 1 still live")
	}
	if r.world.Len() != 1 {
		t.Fatalf("lobby len = %d, want 1", r.world.Len())
	}
	evs := b.events(t)
	if len(evs) != 1 || evs[0] != protocol.Disconnected(1) {
		t.Fatalf("remaining peer got %v, want single Disconnected{1}", evs)
	}
	if m.Disconnects != 1 || m.TransportFailures != 0 {
		t.Fatalf("disconnects=%d transport_failures=%d, want 1 and 0", m.Disconnects, m.TransportFailures)
	}
	if err := r.world.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestDuplicateConnectIgnored(t *testing.T) {
	r, m := newTestRoom(t)
	first := connect(t, r, 1)
	r.Step(tickDt)
	second := connect(t, r, 1)
	r.Step(tickDt)

	if r.world.Len() != 1 {
		t.Fatalf("lobby len = %d, want 1", r.world.Len())
	}
	if r.peers[1] != Peer(first) {
		t.Fatalf("original peer replaced by duplicate")
	}
	if !second.closed {
		t.Fatalf("duplicate peer left open")
	}
	if m.DuplicateConnects != 1 {
		t.Fatalf("duplicate_connects = %d, want 1", m.DuplicateConnects)
	}
}

func TestDeterministicIntegration(t *testing.T) {
	r, _ := newTestRoom(t)
	const yaw = float32(0.6)
	connect(t, r, 1)
	r.OnInput(1, inputFrame(t, protocol.PlayerInput{Right: true, Camera: protocol.Orientation{Yaw: yaw}}))

	const steps = 256 // 2s
	for i := 0; i < steps; i++ {
		r.Step(tickDt)
	}
	seconds := float32(steps) * float32(tickDt.Seconds())

	p, _ := r.world.Player(1)
	disp := p.Transform.Translation.Sub(SpawnPoint)
	rightAxis := mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0}).Rotate(mgl32.Vec3{1, 0, 0})
	along := disp.Dot(rightAxis)
	want := protocol.PlayerMoveSpeed * seconds
	if !mgl32.FloatEqualThreshold(along, want, 1e-3) {
		t.Fatalf("displacement along right axis = %v, want %v", along, want)
	}
	ortho := disp.Sub(rightAxis.Mul(along))
	if ortho.Len() > 1e-3 {
		t.Fatalf("orthogonal displacement = %v, want ~0", ortho)
	}
	if !p.Transform.Rotation.ApproxEqualThreshold(mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0}), 1e-5) {
		t.Fatalf("rotation = %v, want yaw-only rotation", p.Transform.Rotation)
	}
}

func TestDiagonalMovementSpeed(t *testing.T) {
	r, _ := newTestRoom(t)
	connect(t, r, 1)
	r.OnInput(1, inputFrame(t, protocol.PlayerInput{Right: true, Backward: true, Camera: protocol.Orientation{Yaw: -1.1}}))

	const steps = 128
	for i := 0; i < steps; i++ {
		r.Step(tickDt)
	}
	p, _ := r.world.Player(1)
	got := p.Transform.Translation.Sub(SpawnPoint).Len()
	want := protocol.PlayerMoveSpeed * float32(steps) * float32(tickDt.Seconds())
	if !mgl32.FloatEqualThreshold(got, want, 1e-3) {
		t.Fatalf("diagonal displacement = %v, want %v (not %v)", got, want, want*1.41421356)
	}
}

func TestLatestInputWins(t *testing.T) {
	r, m := newTestRoom(t)
	connect(t, r, 1)
	r.Step(tickDt)

	first := protocol.PlayerInput{Forward: true, Camera: protocol.Orientation{Pitch: 0.4}}
	second := protocol.PlayerInput{Right: true, Camera: protocol.Orientation{Roll: 0.2}}
	r.OnInput(1, inputFrame(t, first))
	r.OnInput(1, inputFrame(t, second))
	r.Step(tickDt)

	p, _ := r.world.Player(1)
	if p.Input != second {
		t.Fatalf("stored input = %#v, want %#v", p.Input, second)
	}
	if p.Orientation != second.Camera {
		t.Fatalf("orientation = %#v, want %#v", p.Orientation, second.Camera)
	}
	pos := p.Transform.Translation
	wantX := SpawnPoint.X() + protocol.PlayerMoveSpeed*float32(tickDt.Seconds())
	if !mgl32.FloatEqualThreshold(pos.X(), wantX, 1e-6) || pos.Z() != SpawnPoint.Z() {
		t.Fatalf("position = %v, want x=%v z=%v", pos, wantX, SpawnPoint.Z())
	}
	if m.InputsAccepted != 2 {
		t.Fatalf("inputs_accepted = %d, want 2", m.InputsAccepted)
	}
}

func TestStaleInputDiscarded(t *testing.T) {
	r, m := newTestRoom(t)
	connect(t, r, 1)
	r.Step(tickDt)
	r.RequestLeave(1, nil)
	r.Step(tickDt)

	r.OnInput(1, inputFrame(t, protocol.PlayerInput{Forward: true}))
	r.Step(tickDt)

	if r.world.Len() != 0 {
		t.Fatalf("stale input resurrected a lobby entry")
	}
	if m.StaleInputs != 1 {
		t.Fatalf("stale_inputs = %d, want 1", m.StaleInputs)
	}
	if err := r.world.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestMalformedInputDropped(t *testing.T) {
	r, m := newTestRoom(t)
	connect(t, r, 1)
	r.OnInput(1, inputFrame(t, protocol.PlayerInput{Left: true}))
	r.Step(tickDt)

	good := inputFrame(t, protocol.PlayerInput{Right: true})
	r.OnInput(1, good[:len(good)-2])
	r.OnInput(1, []byte{})
	snap, err := protocol.EncodeFrame(protocol.Unreliable, protocol.PlayerInput{Right: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r.OnInput(1, snap)
	r.Step(tickDt)

	p, _ := r.world.Player(1)
	if !p.Input.Left || p.Input.Right {
		t.Fatalf("malformed frames changed stored input: %#v", p.Input)
	}
	if m.MalformedMessages != 3 {
		t.Fatalf("malformed_messages = %d, want 3", m.MalformedMessages)
	}
}

func TestSnapshotBroadcastEveryTick(t *testing.T) {
	r, m := newTestRoom(t)
	a := connect(t, r, 1)
	b := connect(t, r, 2)
	r.Step(tickDt)
	r.Step(tickDt)

	for _, p := range []*fakePeer{a, b} {
		if len(p.unreliable) != 2 {
			t.Fatalf("peer got %d snapshots, want 2", len(p.unreliable))
		}
		s := p.lastSnapshot(t)
		if s.Tick != 2 {
			t.Fatalf("snapshot tick = %d, want 2", s.Tick)
		}
		ids := map[protocol.ClientID]bool{}
		for _, ps := range s.Players {
			ids[ps.ID] = true
			if ps.Position != SpawnPoint {
				t.Fatalf("player %d position = %v, want spawn", ps.ID, ps.Position)
			}
		}
		if len(s.Players) != 2 || !ids[1] || !ids[2] {
			t.Fatalf("snapshot players = %v, want ids 1 and 2", s.Players)
		}
	}

	b.dropUnreliable = true
	r.Step(tickDt)
	if m.SnapshotsDropped != 1 || r.world.Len() != 2 {
		t.Fatalf("dropped=%d players=%d, want 1 dropped and no disconnect", m.SnapshotsDropped, r.world.Len())
	}
}

func TestTransportFailureDisconnectsOnlyThatPeer(t *testing.T) {
	r, m := newTestRoom(t)
	a := connect(t, r, 1)
	b := connect(t, r, 2)
	r.Step(tickDt)
	a.reliable = nil

	b.failReliable = ErrReliableOverflow
	c := connect(t, r, 3)
	r.Step(tickDt) // Connected{3} 发给 b 失败
	if r.world.Len() != 3 {
		t.Fatalf("failure must be folded into the next tick, players = %d", r.world.Len())
	}
	r.Step(tickDt)

	if _, ok := r.world.Player(2); ok {
		t.Fatalf("failing peer still connected")
	}
	if !b.closed {
		t.Fatalf("failing peer not closed")
	}
	if r.world.Len() != 2 {
		t.Fatalf("players = %d, want 2", r.world.Len())
	}
	for name, p := range map[string]*fakePeer{"a": a, "c": c} {
		found := false
		for _, ev := range p.events(t) {
			if ev == protocol.Disconnected(2) {
				found = true
			}
		}
		if !found {
			t.Fatalf("peer %s did not receive Disconnected{2}", name)
		}
	}
	if m.TransportFailures != 1 {
		t.Fatalf("transport_failures = %d, want 1", m.TransportFailures)
	}
}

func TestUpdateTuningAppliesNextTick(t *testing.T) {
	r, _ := newTestRoom(t)
	if err := r.UpdateTuning(Tuning{MoveSpeed: -1}); err == nil {
		t.Fatalf("negative move speed accepted")
	}
	if err := r.UpdateTuning(Tuning{MoveSpeed: 10}); err != nil {
		t.Fatalf("UpdateTuning: %v", err)
	}
	if got := r.Tuning().MoveSpeed; got != protocol.PlayerMoveSpeed {
		t.Fatalf("tuning applied before tick: %v", got)
	}

	connect(t, r, 1)
	r.OnInput(1, inputFrame(t, protocol.PlayerInput{Backward: true}))
	r.Step(tickDt)
	if got := r.Tuning().MoveSpeed; got != 10 {
		t.Fatalf("tuning = %v, want 10", got)
	}
	p, _ := r.world.Player(1)
	wantZ := SpawnPoint.Z() + 10*float32(tickDt.Seconds())
	if !mgl32.FloatEqualThreshold(p.Transform.Translation.Z(), wantZ, 1e-6) {
		t.Fatalf("z = %v, want %v", p.Transform.Translation.Z(), wantZ)
	}
}

func TestShutdownClosesEveryAcceptedPeer(t *testing.T) {
	for round := 0; round < 20; round++ {
		r := NewRoom(RoomConfig{TickHz: 1000}, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() { errc <- r.Run(ctx) }()

		peers := make([]*fakePeer, 64)
		accepted := make([]bool, len(peers))
		var wg sync.WaitGroup
		for i := range peers {
			peers[i] = newFakePeer()
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				accepted[i] = r.Connect(protocol.ClientID(i+1), peers[i]) == nil
			}(i)
		}
		cancel()
		wg.Wait()
		if err := <-errc; err != nil {
			t.Fatalf("run: %v", err)
		}

		for i, p := range peers {
			if accepted[i] && !p.closed {
				t.Fatalf("round %d: peer %d accepted but left open after shutdown", round, i+1)
			}
		}
		if err := r.Connect(1000, newFakePeer()); !errors.Is(err, ErrRoomClosed) {
			t.Fatalf("connect after shutdown err = %v, want ErrRoomClosed", err)
		}
	}
}

func TestForgedSnapshotOnInputPathIsDropped(t *testing.T) {
	r, m := newTestRoom(t)
	connect(t, r, 1)
	r.Step(tickDt)

	// 可靠通道上的快照消息，玩家数组长度头声称 1<<30 个条目
	frame := []byte{byte(protocol.ReliableOrdered), byte(protocol.KindSnapshot), 0x92, 0x01, 0xdd, 0x40, 0x00, 0x00, 0x00}
	r.OnInput(1, frame)
	r.Step(tickDt)

	if m.MalformedMessages != 1 {
		t.Fatalf("malformed_messages = %d, want 1", m.MalformedMessages)
	}
	if r.world.Len() != 1 {
		t.Fatalf("sender disconnected by malformed input")
	}
}
